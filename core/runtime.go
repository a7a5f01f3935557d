package orchestration

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/events"
	"github.com/koscakluka/ema-live/core/live"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// loopEvent is everything the control loop consumes. Events produced by
// session helpers carry the epoch they belong to; the loop drops events from
// superseded sessions.
type loopEvent interface{ isLoopEvent() }

type startRequest struct {
	ctx    context.Context
	result chan error
}

type abortStart struct{ result chan error }

type stopRequest struct{ done chan struct{} }

type sessionReady struct {
	epoch   uint64
	session live.Session
	capture *capturePipeline
}

type sessionFailed struct {
	epoch uint64
	err   error
}

type remoteEvent struct {
	epoch uint64
	event events.Event
}

type remoteError struct {
	epoch uint64
	err   error
}

type remoteClosed struct{ epoch uint64 }

type unitEnded struct {
	epoch uint64
	id    uint64
}

type toolResult struct {
	epoch    uint64
	response live.ToolResponse
}

func (startRequest) isLoopEvent()  {}
func (abortStart) isLoopEvent()    {}
func (stopRequest) isLoopEvent()   {}
func (sessionReady) isLoopEvent()  {}
func (sessionFailed) isLoopEvent() {}
func (remoteEvent) isLoopEvent()   {}
func (remoteError) isLoopEvent()   {}
func (remoteClosed) isLoopEvent()  {}
func (unitEnded) isLoopEvent()     {}
func (toolResult) isLoopEvent()    {}

// sessionRuntime is the single control loop. Everything below the mailbox is
// owned by the loop goroutine and needs no locking.
type sessionRuntime struct {
	o *Orchestrator

	// The mailbox is unbounded so transport and device callbacks never block
	// on the loop, which may itself be waiting for them to return.
	mailboxMu sync.Mutex
	mailbox   []loopEvent
	signal    chan struct{}
	ended     atomic.Bool

	closeCh chan struct{}
	done    chan struct{}
	endOnce sync.Once

	status     SessionStatus
	flow       SessionStatus
	sessionID  string
	errMessage string

	transcripts transcriptAccumulator
	scheduler   *playbackScheduler

	sessionCtx    context.Context
	cancelSession context.CancelFunc
	session       live.Session
	pipeline      *capturePipeline
	established   bool

	pendingStart chan error
	startedAt    time.Time
	// replies are released only after the state they report was published.
	replies []func()
}

func newSessionRuntime(o *Orchestrator) *sessionRuntime {
	return &sessionRuntime{
		o:         o,
		signal:    make(chan struct{}, 1),
		closeCh:   make(chan struct{}),
		done:      make(chan struct{}),
		status:    StatusIdle,
		flow:      StatusListening,
		scheduler: newPlaybackScheduler(),
	}
}

func (r *sessionRuntime) start() { go r.run() }

func (r *sessionRuntime) end() {
	r.endOnce.Do(func() {
		r.ended.Store(true)
		close(r.closeCh)
	})
	<-r.done
}

// post queues an event for the loop. It reports false once the loop ended.
func (r *sessionRuntime) post(event loopEvent) bool {
	r.mailboxMu.Lock()
	if r.ended.Load() {
		r.mailboxMu.Unlock()
		return false
	}
	r.mailbox = append(r.mailbox, event)
	r.mailboxMu.Unlock()

	select {
	case r.signal <- struct{}{}:
	default:
	}
	return true
}

func (r *sessionRuntime) drain() []loopEvent {
	r.mailboxMu.Lock()
	defer r.mailboxMu.Unlock()
	queued := r.mailbox
	r.mailbox = nil
	return queued
}

func (r *sessionRuntime) run() {
	defer close(r.done)

	for {
		select {
		case <-r.signal:
			for _, event := range r.drain() {
				r.handle(event)
			}
		case <-r.closeCh:
			r.mailboxMu.Lock()
			r.ended.Store(true)
			r.mailboxMu.Unlock()

			for _, event := range r.drain() {
				r.handle(event)
			}
			if r.status.IsActive() {
				r.teardown()
				r.status = StatusIdle
				r.publish()
			}
			r.reply()
			return
		}
	}
}

func (r *sessionRuntime) handle(event loopEvent) {
	switch event := event.(type) {
	case startRequest:
		r.handleStart(event)
	case abortStart:
		r.handleAbortStart(event)
	case stopRequest:
		r.handleStop(event)
	case sessionReady:
		r.handleReady(event)
	case sessionFailed:
		if r.current(event.epoch) {
			r.fail(event.err)
		}
	case remoteEvent:
		if r.current(event.epoch) {
			r.handleRemote(event.event)
		}
	case remoteError:
		if r.current(event.epoch) {
			r.fail(&TransportError{Op: transportOpSession, Err: event.err})
		}
	case remoteClosed:
		r.handleRemoteClosed(event)
	case unitEnded:
		if r.current(event.epoch) && r.scheduler.ended(event.id) {
			r.resumeListeningIfIdle()
		}
	case toolResult:
		r.handleToolResult(event)
	default:
		logger.Warn("unhandled loop event", "type", event)
		return
	}
	r.publish()
	r.reply()
}

func (r *sessionRuntime) reply() {
	for _, reply := range r.replies {
		reply()
	}
	r.replies = nil
}

func (r *sessionRuntime) current(epoch uint64) bool {
	return r.status.IsActive() && epoch == r.o.epoch.Load()
}

func (r *sessionRuntime) handleStart(req startRequest) {
	if r.status.IsActive() {
		req.result <- ErrSessionActive
		return
	}
	if err := req.ctx.Err(); err != nil {
		req.result <- err
		return
	}
	if r.o.connector == nil {
		req.result <- ErrNoConnector
		return
	}
	if !r.o.devices.hasMicrophone() {
		req.result <- ErrNoMicrophone
		return
	}

	epoch := r.o.epoch.Add(1)
	r.transcripts.reset()
	r.o.tools.reset()
	r.errMessage = ""
	r.sessionID = uuid.NewString()
	r.flow = StatusListening
	r.status = StatusConnecting
	r.pendingStart = req.result
	r.startedAt = time.Now()
	r.sessionCtx, r.cancelSession = context.WithCancel(r.o.baseContext)
	r.publish()

	output, err := r.o.devices.openOutput(r.sessionCtx)
	if err != nil {
		r.fail(err)
		return
	}
	if output != nil {
		r.scheduler.attach(output)
	}

	config := r.o.liveConfig
	config.Tools = append(slices.Clone(config.Tools), r.o.tools.declarations()...)
	go r.establish(r.sessionCtx, epoch, config)
}

func (r *sessionRuntime) handleAbortStart(req abortStart) {
	if r.pendingStart != req.result {
		return
	}
	r.status = StatusClosing
	r.publish()
	r.teardown()
	r.status = StatusIdle
	sessionsTotal.WithLabelValues(sessionOutcomeStopped).Inc()
}

func (r *sessionRuntime) handleStop(req stopRequest) {
	r.replies = append(r.replies, func() { close(req.done) })
	// Idle stays idle and error stays terminal until the next start.
	if !r.status.IsActive() {
		return
	}

	r.status = StatusClosing
	r.publish()
	r.teardown()
	r.status = StatusIdle
	sessionsTotal.WithLabelValues(sessionOutcomeStopped).Inc()
}

// establish runs the handshake and microphone acquisition off the loop.
func (r *sessionRuntime) establish(ctx context.Context, epoch uint64, config live.Config) {
	ctx, span := tracer.Start(ctx, "establish session",
		trace.WithAttributes(attribute.String("live.model", config.Model)),
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	// muted silences this attempt's callbacks once it closes its own session,
	// so the close is not reported as a remote fault.
	var muted atomic.Bool
	callbacks := live.Callbacks{
		OnMessage: func(event events.Event) {
			if !muted.Load() {
				r.post(remoteEvent{epoch: epoch, event: event})
			}
		},
		OnError: func(err error) {
			if !muted.Load() {
				r.post(remoteError{epoch: epoch, err: err})
			}
		},
		OnClose: func() {
			if !muted.Load() {
				r.post(remoteClosed{epoch: epoch})
			}
		},
	}

	abandon := func(session live.Session, err error) {
		muted.Store(true)
		if session != nil {
			if closeErr := session.Close(); closeErr != nil {
				logger.Warn("failed to close abandoned session", "error", closeErr)
			}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.post(sessionFailed{epoch: epoch, err: err})
		}
	}

	session, err := r.o.connector.Open(ctx, config, callbacks)
	if err != nil {
		abandon(nil, &TransportError{Op: transportOpOpen, Err: err})
		return
	}
	if isNilInterface(session) {
		abandon(nil, &TransportError{Op: transportOpOpen, Err: live.ErrSessionClosed})
		return
	}

	stillWanted := func() bool { return ctx.Err() == nil && r.o.epoch.Load() == epoch }
	pipeline, err := r.o.capture.acquire(ctx, r.o.devices.microphone, stillWanted, func(mic audio.Microphone) *capturePipeline {
		return newCapturePipeline(mic, r.o.captureWindow, session.SendAudioFrame)
	})
	if errors.Is(err, ErrSessionStopped) {
		abandon(session, nil)
		return
	}
	if err != nil {
		abandon(session, err)
		return
	}

	if !r.post(sessionReady{epoch: epoch, session: session, capture: pipeline}) {
		_ = r.o.capture.release(pipeline)
		abandon(session, nil)
	}
}

func (r *sessionRuntime) handleReady(ready sessionReady) {
	if !r.current(ready.epoch) || r.status != StatusConnecting {
		r.releaseStale(ready)
		return
	}

	r.session = ready.session
	r.pipeline = ready.capture
	r.established = true
	sessionsActive.Inc()
	handshakeDuration.Observe(time.Since(r.startedAt).Seconds())

	if deferred := r.o.tools.deferred; len(deferred) > 0 {
		r.o.tools.deferred = nil
		r.sendToolResponses(deferred...)
	}

	if r.o.tools.pending > 0 {
		r.status = StatusSearching
	} else {
		r.status = r.flow
	}

	logger.Info("live session established", "session_id", r.sessionID)
	r.resolveStart(nil)
}

func (r *sessionRuntime) releaseStale(ready sessionReady) {
	if err := r.o.capture.release(ready.capture); err != nil {
		logger.Warn("failed to release stale microphone", "error", err)
	}
	if ready.session != nil {
		if err := ready.session.Close(); err != nil {
			logger.Warn("failed to close stale session", "error", err)
		}
	}
}

func (r *sessionRuntime) handleRemoteClosed(closed remoteClosed) {
	if !r.current(closed.epoch) {
		return
	}
	if r.status == StatusConnecting {
		r.fail(&TransportError{Op: transportOpOpen, Err: live.ErrSessionClosed})
		return
	}

	logger.Info("live session closed by remote", "session_id", r.sessionID)
	r.teardown()
	r.status = StatusIdle
	sessionsTotal.WithLabelValues(sessionOutcomeClosed).Inc()
}

func (r *sessionRuntime) handleRemote(event events.Event) {
	switch event := event.(type) {
	case events.ToolCall:
		started := r.o.tools.dispatch(r.sessionCtx, event, r.toolDone(r.o.epoch.Load()))
		// While connecting, handleReady picks searching up from the
		// pending count.
		if started > 0 && r.status.isFlow() {
			r.status = StatusSearching
		}
	case events.InputTranscription:
		r.transcripts.appendUser(event.Text)
		r.setFlow(StatusListening)
	case events.OutputTranscription:
		r.transcripts.appendAgent(event.Text)
		r.setFlow(StatusSpeaking)
	case events.InlineAudio:
		epoch := r.o.epoch.Load()
		_, ok, err := r.scheduler.schedule(event.Data, func(id uint64) {
			r.post(unitEnded{epoch: epoch, id: id})
		})
		if err != nil {
			logger.Warn("dropping inline audio", "mime_type", event.MIMEType, "error", err)
			return
		}
		if ok {
			r.setFlow(StatusSpeaking)
		}
	case events.TurnComplete:
		if committed := r.transcripts.commit(); len(committed) > 0 {
			logger.Debug("turn committed", "entries", len(committed))
		}
	case events.Interrupted:
		stopped := r.scheduler.interrupt()
		interruptions.Inc()
		logger.Debug("agent interrupted", "stopped_units", stopped)
		r.setFlow(StatusListening)
	default:
		logger.Warn("unhandled remote event", "kind", event.Kind())
	}
}

func (r *sessionRuntime) toolDone(epoch uint64) func(live.ToolResponse) {
	return func(response live.ToolResponse) {
		r.post(toolResult{epoch: epoch, response: response})
	}
}

func (r *sessionRuntime) handleToolResult(result toolResult) {
	if !r.current(result.epoch) {
		return
	}

	tools := r.o.tools
	if tools.pending > 0 {
		tools.pending--
	}

	if r.session == nil {
		tools.deferred = append(tools.deferred, result.response)
		return
	}
	r.sendToolResponses(result.response)

	if tools.pending == 0 && r.status == StatusSearching {
		r.status = r.flow
	}
	r.resumeListeningIfIdle()
}

func (r *sessionRuntime) sendToolResponses(responses ...live.ToolResponse) {
	if err := r.session.SendToolResponse(responses...); err != nil {
		logger.Warn("failed to send tool response", "count", len(responses), "error", err)
	}
}

// setFlow records the listening/speaking display state. The visible status
// only follows while it is itself a flow state.
func (r *sessionRuntime) setFlow(status SessionStatus) {
	r.flow = status
	if r.status.isFlow() {
		r.status = status
	}
}

// resumeListeningIfIdle re-reads the live scheduled set and pending lookups
// rather than anything captured when a unit was scheduled.
func (r *sessionRuntime) resumeListeningIfIdle() {
	if r.flow == StatusSpeaking && r.scheduler.idle() && r.o.tools.pending == 0 {
		r.setFlow(StatusListening)
	}
}

// fail tears the session down and parks in error until the next start.
func (r *sessionRuntime) fail(err error) {
	logger.Error("live session failed", "session_id", r.sessionID, "error", err)

	r.resolveStart(err)
	r.teardown()
	r.status = StatusError
	r.errMessage = userMessage(err)
	sessionsTotal.WithLabelValues(sessionOutcomeFailed).Inc()
}

// teardown releases in reverse acquisition order: microphone, remote
// session, pending tool work, playback. Errors are logged and swallowed.
func (r *sessionRuntime) teardown() {
	r.o.epoch.Add(1)
	if r.cancelSession != nil {
		r.cancelSession()
		r.cancelSession = nil
	}

	var errs []error
	if r.pipeline != nil {
		errs = append(errs, r.o.capture.release(r.pipeline))
		r.pipeline = nil
	} else if held := r.o.capture.holding(); held != nil {
		errs = append(errs, r.o.capture.release(held))
	}

	if r.session != nil {
		errs = append(errs, r.session.Close())
		r.session = nil
	}

	r.o.tools.reset()

	if output := r.scheduler.detach(); output != nil {
		errs = append(errs, output.Close())
	}

	if err := errors.Join(errs...); err != nil {
		logger.Warn("errors during session teardown", "session_id", r.sessionID, "error", err)
	}

	if r.established {
		r.established = false
		sessionsActive.Dec()
	}
	r.flow = StatusListening
	r.resolveStart(ErrSessionStopped)
}

func (r *sessionRuntime) resolveStart(err error) {
	if r.pendingStart == nil {
		return
	}
	result := r.pendingStart
	r.pendingStart = nil
	r.replies = append(r.replies, func() { result <- err })
}

func (r *sessionRuntime) publish() {
	r.o.publish(Snapshot{
		SessionID:          r.sessionID,
		Status:             r.status,
		Transcripts:        r.transcripts.entries,
		Pending:            r.transcripts.pending(),
		ErrorMessage:       r.errMessage,
		ScheduledUnits:     r.scheduler.pendingUnits(),
		ToolLookupsPending: r.o.tools.pending,
	})
}
