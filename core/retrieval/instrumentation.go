package retrieval

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-live/core/retrieval"

var logger = otelslog.NewLogger(scopeName)
