package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"helpdesk/backend/features/knowledge"
	"helpdesk/backend/internal/middleware"
)

type StatsProvider interface {
	GetStats(ctx context.Context) (knowledge.Stats, error)
}

type Handler struct {
	stats StatsProvider
}

func NewHandler(s StatsProvider) *Handler {
	return &Handler{stats: s}
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	stats, err := h.stats.GetStats(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load stats", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to load stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": stats}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
