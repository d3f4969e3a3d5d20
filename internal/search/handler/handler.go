package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pubrec/internal/platform/middleware"
	"pubrec/internal/search"
	dErrors "pubrec/pkg/domain-errors"
	"pubrec/pkg/platform/httputil"
	"pubrec/pkg/roles"
)

//go:generate mockgen -source=handler.go -destination=mocks/search-mocks.go -package=mocks Engine

// Engine runs a parsed search under a caller's role set.
type Engine interface {
	Search(ctx context.Context, q search.Query, caller roles.Set) ([]search.DatasetResult, error)
}

type Handler struct {
	engine Engine
	log    *slog.Logger
}

func New(engine Engine, log *slog.Logger) *Handler {
	return &Handler{engine: engine, log: log}
}

// Register wires the read path: GET /search.
func (h *Handler) Register(r chi.Router) {
	r.Get("/search", h.handleSearch)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q, err := search.ParseQuery(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	caller := middleware.CallerRoles(ctx)
	results, err := h.engine.Search(ctx, q, caller)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.log.Error("search failed",
				"request_id", middleware.GetRequestID(ctx),
				"error", err.Error(),
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, results)
}
