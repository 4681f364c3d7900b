package access

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
)

// PermissionGroupRole selects which membership list of a permission group
// counts for a rule.
type PermissionGroupRole string

// the supported permission group roles
const (
	// RoleAny accepts administrators as well as ordinary members
	RoleAny PermissionGroupRole = "any"
	// RoleMember accepts ordinary members only
	RoleMember PermissionGroupRole = "member"
	// RoleAdmin accepts administrators only
	RoleAdmin PermissionGroupRole = "admin"
)

// Memberships is the permission-group snapshot of one user, as reported by
// the external identity service. The snapshot is authoritative for the
// lifetime of the request it was fetched in.
type Memberships struct {
	AdministratedPermissionGroups []string `json:"administrated_permission_groups"`
	MemberedPermissionGroups      []string `json:"membered_permission_groups"`
}

// CheckedGroups returns the group ids that count for the requested role.
func (m *Memberships) CheckedGroups(role PermissionGroupRole) []string {
	if m == nil {
		return nil
	}
	var checked []string
	if role == RoleAdmin || role == RoleAny {
		checked = append(checked, m.AdministratedPermissionGroups...)
	}
	if role == RoleMember || role == RoleAny {
		checked = append(checked, m.MemberedPermissionGroups...)
	}
	return checked
}

// GroupService fetches the permission-group memberships for a subject from
// the external identity service. Implementations are network-latent; a nil
// result with a nil error means the service does not know the subject.
type GroupService interface {
	PermissionGroups(ctx context.Context, subject string) (*Memberships, error)
}

// GroupServiceFunc is an adapter to use ordinary functions as GroupService.
type GroupServiceFunc func(ctx context.Context, subject string) (*Memberships, error)

// PermissionGroups calls f.
func (f GroupServiceFunc) PermissionGroups(ctx context.Context, subject string) (*Memberships, error) {
	return f(ctx, subject)
}

type groupResult struct {
	memberships *Memberships
	err         error
}

// GroupResolver memoizes the identity-service lookup for one request.
//
// The fetch happens at most once per subject and resolver, no matter how
// many rule nodes ask for it. This is a correctness contract, not an
// optimization: all rule evaluations within one request must observe the
// same membership snapshot. Errors are memoized as well, so a failing
// identity service is not hammered by a deep rule tree.
//
// A resolver must not be shared across requests.
type GroupResolver struct {
	service GroupService

	mutex   sync.Mutex
	results map[string]groupResult
}

// NewGroupResolver creates a resolver for one request.
func NewGroupResolver(service GroupService) *GroupResolver {
	return &GroupResolver{
		service: service,
		results: make(map[string]groupResult),
	}
}

// Lookup returns the membership snapshot for the subject, fetching it on
// first use and returning the memoized snapshot afterwards.
func (g *GroupResolver) Lookup(ctx context.Context, subject string) (*Memberships, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if result, ok := g.results[subject]; ok {
		return result.memberships, result.err
	}
	memberships, err := g.service.PermissionGroups(ctx, subject)
	g.results[subject] = groupResult{memberships: memberships, err: err}
	return memberships, err
}

// ContextWithGroups returns a new context with this resolver added to it
func ContextWithGroups(ctx context.Context, resolver *GroupResolver) context.Context {
	return context.WithValue(ctx, contextKeyGroups, resolver)
}

// GroupsFromContext retrieves the group resolver from the context
func GroupsFromContext(ctx context.Context) *GroupResolver {
	resolver, ok := ctx.Value(contextKeyGroups).(*GroupResolver)
	if ok {
		return resolver
	}
	return nil
}

// NewGroupMiddleware returns a middleware handler that equips every request
// with a fresh group resolver. Each request gets its own memo, so there is
// no stale-membership leakage between users.
func NewGroupMiddleware(service GroupService) mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := ContextWithGroups(r.Context(), NewGroupResolver(service))
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
