package statusserver

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/koscakluka/ema-live/internal/statusserver"

var logger = otelslog.NewLogger(scopeName)
