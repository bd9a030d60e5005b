package identity

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
	Authenticate(dto LoginDTO) (*AuthResponse, error)
	Logout()
	CurrentSession() *Session
	Directory() []User
	GetUser(id string) (*User, error)
	CreateUser(dto CreateUserDTO) (*User, error)
	UpdateUser(id string, dto UpdateUserDTO, actorID string) (*User, error)
	DeleteUser(id string) error
	LockAccess(userID string) error
	UnlockAccess(userID string) error
	Requests() []AdminRequest
	RequestApproval(requesterID, requesterName string, dto RequestApprovalDTO) (*AdminRequest, error)
	ResolveRequest(id string, approve bool) (*AdminRequest, error)
	HasApprovedRequest(t RequestType, targetID string) bool
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	Tokens  *SessionTokenGenerator
}

func NewHandler(svc ServiceAPI, tokens *SessionTokenGenerator) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
		Tokens:      tokens,
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.Service.Authenticate(dto)
	if err != nil {
		h.Logger.Warn("login failed", "username", dto.Username, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.Service.Logout()
	w.WriteHeader(http.StatusNoContent)
}

// GetSession returns the persisted session record so a restarted client can
// rehydrate without forcing a fresh login.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, h.Service.CurrentSession())
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"users": h.Service.Directory(),
	})
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Service.GetUser(chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var dto CreateUserDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.Service.CreateUser(dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	h.WriteJSON(w, http.StatusCreated, user)
}

// UpdateUser applies a partial update. Edits to the master admin by a
// non-primary actor must be cleared through an approved EDIT_ADMIN request.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")

	var dto UpdateUserDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	target, err := h.Service.GetUser(id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	if target.IsMasterAdmin && !principal.IsMasterAdmin && !h.Service.HasApprovedRequest(RequestEditAdmin, id) {
		h.HandleServiceError(w, internal.ErrUnauthorizedAccess)
		return
	}

	user, err := h.Service.UpdateUser(id, dto, principal.ID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, user)
}

// DeleteUser removes a record. Non-primary actors need an approved
// DELETE_MEMBER request for this target; locked users are barred outright.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if principal.IsMasterLocked {
		h.HandleServiceError(w, internal.ErrAccessLocked)
		return
	}

	id := chi.URLParam(r, "id")
	if !principal.IsMasterAdmin && !h.Service.HasApprovedRequest(RequestDeleteMember, id) {
		h.HandleServiceError(w, internal.ErrUnauthorizedAccess)
		return
	}

	if err := h.Service.DeleteUser(id); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) LockAccess(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.LockAccess(chi.URLParam(r, "id")); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UnlockAccess(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.PrincipalFromContext(r.Context())
	if !ok || !principal.IsMasterAdmin {
		h.HandleServiceError(w, internal.ErrUnauthorizedAccess)
		return
	}
	if err := h.Service.UnlockAccess(chi.URLParam(r, "id")); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"requests": h.Service.Requests(),
	})
}

func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto RequestApprovalDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	request, err := h.Service.RequestApproval(principal.ID, principal.Name, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, request)
}

// ResolveRequest lets the primary admin approve or reject a PENDING request.
func (h *Handler) ResolveRequest(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.PrincipalFromContext(r.Context())
	if !ok || !principal.IsMasterAdmin {
		h.HandleServiceError(w, internal.ErrUnauthorizedAccess)
		return
	}

	var dto ResolveRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	request, err := h.Service.ResolveRequest(chi.URLParam(r, "id"), dto.Approve)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, request)
}

// AuthMiddleware validates the bearer token and re-reads the user from the
// directory, so deactivations and segment edits apply to the next request.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.WriteError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		claims, err := h.Tokens.Validate(token)
		if err != nil {
			h.Logger.Warn("token validation failed", "error", err)
			h.WriteError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		user, err := h.Service.GetUser(claims.UserID)
		if err != nil || !user.IsActive {
			h.WriteError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		principal := &internal.Principal{
			ID:             user.ID,
			Username:       user.Username,
			Name:           user.FullName(),
			Segments:       user.AssignedSegments,
			IsMasterAdmin:  user.IsMasterAdmin,
			IsMasterLocked: user.IsMasterLocked,
		}

		next.ServeHTTP(w, r.WithContext(internal.ContextWithPrincipal(r.Context(), principal)))
	})
}
