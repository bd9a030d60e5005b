// Package access decides which dashboard segments a session may reach.
// Segments are an open set: a fixed baseline of known dashboards plus any
// custom segment string assigned to a user, which becomes routable through a
// generic fallback path.
package access

import (
	"net/url"

	"github.com/frahmantamala/factory-console/internal"
	"github.com/frahmantamala/factory-console/internal/identity"
)

const (
	SegmentSalesTeam    = "Sales Team"
	SegmentInventory    = "Inventory"
	SegmentAccounting   = "Accounting"
	SegmentProduction   = "Production"
	SegmentDispatch     = "Dispatch"
	SegmentSecurity     = "Security"
	SegmentMaster       = "Master"
	SegmentStatusOfTask = "Status of Task"

	LoginRoute = "/login"
)

// BaselineSegments is the closed set of dashboards every deployment knows
// about, in navigation order.
var BaselineSegments = []string{
	SegmentSalesTeam,
	SegmentInventory,
	SegmentAccounting,
	SegmentProduction,
	SegmentDispatch,
	SegmentSecurity,
	SegmentMaster,
	SegmentStatusOfTask,
}

var segmentRoutes = map[string]string{
	SegmentSalesTeam:    "/sales",
	SegmentInventory:    "/inventory",
	SegmentAccounting:   "/accounting",
	SegmentProduction:   "/production",
	SegmentDispatch:     "/dispatch",
	SegmentSecurity:     "/security",
	SegmentMaster:       "/master",
	SegmentStatusOfTask: "/tasks",
}

// RouteFor is total over the open segment set: baseline names resolve to
// their canonical route, everything else to the generic fallback.
func RouteFor(segment string) string {
	if route, ok := segmentRoutes[segment]; ok {
		return route
	}
	return "/segment/" + url.PathEscape(segment)
}

// IsBaseline reports whether the segment belongs to the fixed baseline set.
func IsBaseline(segment string) bool {
	_, ok := segmentRoutes[segment]
	return ok
}

// Decision is the outcome of an authorization check. When Allowed is false,
// RedirectTo names the route the caller should be sent to instead.
type Decision struct {
	Allowed    bool   `json:"allowed"`
	RedirectTo string `json:"redirectTo,omitempty"`
}

// Authorize decides whether the session may enter the requested segment. A
// holder of the Master segment is allowed everywhere; otherwise membership
// in the assigned set decides, and denials redirect to the user's first
// assigned segment. Unauthenticated sessions always redirect to login.
func Authorize(session *identity.Session, segment string) Decision {
	if session == nil || !session.IsAuthenticated || session.User == nil {
		return Decision{Allowed: false, RedirectTo: LoginRoute}
	}

	user := session.User
	if user.HasSegment(SegmentMaster) || user.HasSegment(segment) {
		return Decision{Allowed: true}
	}

	if len(user.AssignedSegments) == 0 {
		return Decision{Allowed: false, RedirectTo: LoginRoute}
	}
	return Decision{Allowed: false, RedirectTo: RouteFor(user.AssignedSegments[0])}
}

// AuthorizePrincipal applies the same rule to a request principal, used by
// the route-level guard.
func AuthorizePrincipal(p *internal.Principal, segment string) Decision {
	if p == nil {
		return Decision{Allowed: false, RedirectTo: LoginRoute}
	}
	if p.HasSegment(SegmentMaster) || p.HasSegment(segment) {
		return Decision{Allowed: true}
	}
	if len(p.Segments) == 0 {
		return Decision{Allowed: false, RedirectTo: LoginRoute}
	}
	return Decision{Allowed: false, RedirectTo: RouteFor(p.Segments[0])}
}

// AllSegments is the navigation set: the baseline plus every segment string
// assigned to any user, deduplicated in first-seen order.
func AllSegments(directory []identity.User) []string {
	seen := make(map[string]bool, len(BaselineSegments))
	all := make([]string, 0, len(BaselineSegments))

	for _, s := range BaselineSegments {
		seen[s] = true
		all = append(all, s)
	}
	for i := range directory {
		for _, s := range directory[i].AssignedSegments {
			if !seen[s] {
				seen[s] = true
				all = append(all, s)
			}
		}
	}
	return all
}
