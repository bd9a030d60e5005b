package gatelog

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/factory-console/internal"
	"github.com/frahmantamala/factory-console/internal/transport"
	"github.com/frahmantamala/factory-console/pkg/logger"
)

type ServiceAPI interface {
	Create(dto CreateEntryDTO, actorID, actorName string) (*SecurityEntry, error)
	Get(id string) (*SecurityEntry, error)
	MarkExit(id string) (*SecurityEntry, error)
	List(filter ListFilter) []SecurityEntry
	Autofill(fragment string, subType SubType) AutofillResult
	AttachPhoto(id string, dto AttachPhotoDTO) (*SecurityEntry, error)
	Stats() Stats
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto CreateEntryDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := h.Service.Create(dto, principal.ID, principal.Name)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, entry)
}

// ListEntries filters via query parameters: window (today|all), activity
// (active|completed), category, subType and q for free text.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Window:   q.Get("window"),
		Activity: q.Get("activity"),
		Category: Category(q.Get("category")),
		SubType:  SubType(q.Get("subType")),
		Query:    q.Get("q"),
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": h.Service.List(filter),
	})
}

func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.Service.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) MarkExit(w http.ResponseWriter, r *http.Request) {
	entry, err := h.Service.MarkExit(chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) AttachPhoto(w http.ResponseWriter, r *http.Request) {
	var dto AttachPhotoDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := h.Service.AttachPhoto(chi.URLParam(r, "id"), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, entry)
}

// Autofill answers ?name=<fragment>&subType=<type> with a staff prefill.
func (h *Handler) Autofill(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.WriteJSON(w, http.StatusOK, h.Service.Autofill(q.Get("name"), SubType(q.Get("subType"))))
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, h.Service.Stats())
}
