/*Package access provides the visibility and permission decision engine
for the sensorhub catalogue.

The engine is a small combinator algebra: ObjectRestriction is a boolean
predicate over a catalogue entity, Permissions pairs a request-level check
with an object-level check, and both compose with explicit left-to-right
short-circuit evaluation. Concrete rules combine local entity state
(visibility, creator) with permission-group memberships fetched from the
external identity service, at most once per request.
*/
package access

import (
	"context"

	"github.com/google/uuid"
)

// contextKey is the type for context keys. Go linter does not like plain strings
type contextKey string

// the predefined context keys
const (
	contextKeyUser   contextKey = "_user_"
	contextKeyGroups contextKey = "_permission_groups_"
)

// User is the authenticated caller of the current request.
//
// A nil *User means the request is anonymous. Middleware adds the user to
// the request context with ContextWithUser; rule evaluation retrieves it
// with UserFromContext.
type User struct {
	// ID is the account id in the catalogue database.
	ID uuid.UUID `json:"id"`
	// Subject is the caller's identity at the external identity provider.
	// It is the key for permission-group lookups.
	Subject string `json:"subject"`
	// Superuser grants unrestricted access to all catalogue entities.
	Superuser bool `json:"superuser"`
}

// ContextWithUser returns a new context with this user added to it
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, contextKeyUser, user)
}

// UserFromContext retrieves the current user from the context. It returns
// nil for anonymous requests.
func UserFromContext(ctx context.Context) *User {
	user, ok := ctx.Value(contextKeyUser).(*User)
	if ok {
		return user
	}
	return nil
}
