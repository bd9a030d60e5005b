package access

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/factory-console/internal"
	"github.com/frahmantamala/factory-console/internal/identity"
	"github.com/frahmantamala/factory-console/internal/transport"
	"github.com/frahmantamala/factory-console/pkg/logger"
)

type DirectoryAPI interface {
	Directory() []identity.User
}

type Handler struct {
	*transport.BaseHandler
	Users DirectoryAPI
}

func NewHandler(users DirectoryAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Users:       users,
	}
}

type segmentView struct {
	Name     string `json:"name"`
	Route    string `json:"route"`
	Baseline bool   `json:"baseline"`
}

// ListSegments returns the navigation set with resolved routes.
func (h *Handler) ListSegments(w http.ResponseWriter, r *http.Request) {
	all := AllSegments(h.Users.Directory())

	views := make([]segmentView, 0, len(all))
	for _, s := range all {
		views = append(views, segmentView{Name: s, Route: RouteFor(s), Baseline: IsBaseline(s)})
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"segments": views})
}

// CheckAccess answers whether the caller may enter ?segment=<name>, and
// where to go instead when not.
func (h *Handler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	segment := r.URL.Query().Get("segment")
	if segment == "" {
		h.WriteError(w, http.StatusBadRequest, "segment query parameter is required")
		return
	}

	principal, _ := internal.PrincipalFromContext(r.Context())
	h.WriteJSON(w, http.StatusOK, AuthorizePrincipal(principal, segment))
}

// RequireSegment guards a route subtree: callers without the segment (and
// without Master) are turned away with their redirect target.
func RequireSegment(segment string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := internal.PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			decision := AuthorizePrincipal(principal, segment)
			if !decision.Allowed {
				logger.From(r.Context()).Warn("segment access denied",
					"user_id", principal.ID,
					"segment", segment,
					"redirect_to", decision.RedirectTo)
				w.Header().Set("X-Redirect-To", decision.RedirectTo)
				http.Error(w, "Forbidden: segment not assigned", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
