package http

import (
	"net/http"

	"github.com/AlibekovAA/webpush-relay/internal/common/constants"
	"github.com/AlibekovAA/webpush-relay/internal/common/httpmetrics"
	"github.com/AlibekovAA/webpush-relay/internal/common/logger"
)

func BuildBaseHandler(log *logger.Logger, handler http.Handler) http.Handler {
	metrics := httpmetrics.New()
	recovery := RecoveryMiddleware(log)
	traceID := TraceIDMiddleware
	maxRequestSize := MaxRequestSizeMiddleware(constants.DefaultMaxRequestSize)

	return SecurityHeadersMiddleware(recovery(traceID(maxRequestSize(metrics.Wrap(handler)))))
}
