package server

import (
	"net/http"

	slogctx "github.com/veqryn/slog-context"

	"github.com/guilherme-hl1ma/project-library-oauth/internal/config"
)

// pingHandlerFunc answers liveness probes. Tracing and the request meters
// come from the shared middleware.
func pingHandlerFunc(_ *config.Config) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()

		slogctx.Debug(ctx, "Handling ping request")

		w.Header().Set("Content-Type", "application/json")

		if _, err := w.Write([]byte(`{ "result": "ping" }`)); err != nil {
			slogctx.Error(ctx, "Failed to write ping response", "error", err)
		}
	}
}
