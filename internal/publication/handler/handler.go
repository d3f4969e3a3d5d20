package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"pubrec/internal/records"
	dErrors "pubrec/pkg/domain-errors"
	"pubrec/pkg/platform/httputil"
)

//go:generate mockgen -source=handler.go -destination=mocks/publication-mocks.go -package=mocks Service

// Service defines the publication operations the handler exposes.
type Service interface {
	Publish(ctx context.Context, schema records.SchemaName, id uuid.UUID) (*records.MasterRecord, error)
	Unpublish(ctx context.Context, schema records.SchemaName, id uuid.UUID) (*records.MasterRecord, error)
	Delete(ctx context.Context, schema records.SchemaName, id uuid.UUID) (*records.MasterRecord, error)
}

type Handler struct {
	service Service
	log     *slog.Logger
}

func New(service Service, log *slog.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// Register wires the publication routes: PUT /{schema}/{id}/publish,
// PUT /{schema}/{id}/unpublish, DELETE /{schema}/{id}.
func (h *Handler) Register(r chi.Router) {
	r.Put("/{schema}/{id}/publish", h.handlePublish)
	r.Put("/{schema}/{id}/unpublish", h.handleUnpublish)
	r.Delete("/{schema}/{id}", h.handleDelete)
}

// tagState echoes the record's tag arrays after a successful transition.
type tagState struct {
	ID         string   `json:"_id"`
	SchemaName string   `json:"_schemaName"`
	Read       []string `json:"read"`
	Write      []string `json:"write"`
	IsDeleted  bool     `json:"isDeleted"`
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Publish)
}

func (h *Handler) handleUnpublish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Unpublish)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Delete)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request,
	op func(context.Context, records.SchemaName, uuid.UUID) (*records.MasterRecord, error)) {

	schema := records.SchemaName(chi.URLParam(r, "schema"))
	if !records.IsMasterSchema(schema) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown schema: "+string(schema)))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid record id"))
		return
	}

	rec, err := op(r.Context(), schema, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, tagState{
		ID:         rec.ID.String(),
		SchemaName: string(rec.SchemaName),
		Read:       rec.Read.Strings(),
		Write:      rec.Write.Strings(),
		IsDeleted:  rec.IsDeleted,
	})
}
