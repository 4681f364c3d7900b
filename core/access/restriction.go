package access

import (
	"context"

	"github.com/google/uuid"
)

// Entity is the surface the access rules need from a catalogue object.
// Devices, platforms and configurations implement it.
type Entity interface {
	// IsPublic reports whether the entity is visible to everybody.
	IsPublic() bool
	// IsInternal reports whether the entity is visible to any
	// authenticated user.
	IsInternal() bool
	// IsPrivate reports whether the entity is visible to its creator only.
	// Exactly one of the three visibility states is true at any time.
	IsPrivate() bool
	// CreatedBy returns the account id of the creator, if recorded.
	CreatedBy() (uuid.UUID, bool)
	// AuthorizationGroups returns the permission-group ids that govern this
	// entity. Devices and platforms can have several, configurations have
	// at most one, and the result may be empty.
	AuthorizationGroups() []string
}

// ObjectRestriction is a boolean predicate over a catalogue entity.
//
// Restrictions compose with Or and And. Composition evaluates the left
// operand first and short-circuits; this order is part of the contract,
// because leaf rules may trigger a call to the external identity service
// that a short-circuit avoids. Errors from such calls propagate unchanged,
// they are never converted into a deny.
type ObjectRestriction func(ctx context.Context, object Entity) (bool, error)

// Evaluate applies the restriction to the object.
func (r ObjectRestriction) Evaluate(ctx context.Context, object Entity) (bool, error) {
	return r(ctx, object)
}

// Or returns a restriction which passes if either operand passes. The
// receiver is evaluated first; other is not evaluated when the receiver
// passes or fails with an error.
func (r ObjectRestriction) Or(other ObjectRestriction) ObjectRestriction {
	return func(ctx context.Context, object Entity) (bool, error) {
		ok, err := r(ctx, object)
		if err != nil || ok {
			return ok, err
		}
		return other(ctx, object)
	}
}

// And returns a restriction which passes if both operands pass. The
// receiver is evaluated first; other is not evaluated when the receiver
// denies or fails with an error.
func (r ObjectRestriction) And(other ObjectRestriction) ObjectRestriction {
	return func(ctx context.Context, object Entity) (bool, error) {
		ok, err := r(ctx, object)
		if err != nil || !ok {
			return ok, err
		}
		return other(ctx, object)
	}
}
