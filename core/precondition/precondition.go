/*Package precondition provides state-consistency checks for catalogue
state transitions.

A Precondition is not an authorization rule: it answers whether an entity
is in a state that allows a transition, and reports the first obstacle it
finds as a Conflict value instead of a boolean. Preconditions compose with
And; the composed check returns the first violation in composition order,
or nil when all composed checks are satisfied. Composition order is an
observable contract because it decides which violation message the caller
surfaces.
*/
package precondition

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Conflict describes why a state transition cannot proceed. Callers map it
// to HTTP 409, using the message verbatim.
type Conflict struct {
	Message string
}

// Error implements the error interface.
func (c *Conflict) Error() string {
	return c.Message
}

// Conflictf creates a conflict with a formatted message.
func Conflictf(format string, args ...interface{}) *Conflict {
	return &Conflict{Message: fmt.Sprintf(format, args...)}
}

// Precondition checks whether the entity with the given id allows a state
// transition. It returns a non-nil Conflict when the transition is blocked,
// and an error only when the check itself could not be performed (for
// example a failing database query). Errors propagate unchanged.
type Precondition func(ctx context.Context, id uuid.UUID) (*Conflict, error)

// ViolatedBy evaluates the precondition against the entity id.
func (p Precondition) ViolatedBy(ctx context.Context, id uuid.UUID) (*Conflict, error) {
	return p(ctx, id)
}

// And combines two preconditions. The receiver is evaluated first; if it
// reports a violation or fails, that result is returned and other is not
// evaluated. Otherwise the result of other is returned.
func (p Precondition) And(other Precondition) Precondition {
	return func(ctx context.Context, id uuid.UUID) (*Conflict, error) {
		conflict, err := p(ctx, id)
		if err != nil || conflict != nil {
			return conflict, err
		}
		return other(ctx, id)
	}
}
