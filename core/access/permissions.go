package access

import "context"

// Permissions pairs a request-level check with an object-level check.
//
// HasPermission answers whether the request may proceed at all, without a
// concrete entity at hand. HasObjectPermission answers whether the request
// may act on one concrete entity. Callers are expected to check
// HasPermission first; the object rules are nevertheless written to deny
// rather than misbehave when a caller skips that step.
type Permissions struct {
	requestRule func(ctx context.Context) (bool, error)
	objectRule  ObjectRestriction
}

// HasPermission evaluates the request-level rule.
func (p Permissions) HasPermission(ctx context.Context) (bool, error) {
	return p.requestRule(ctx)
}

// HasObjectPermission evaluates the object-level rule against the entity.
func (p Permissions) HasObjectPermission(ctx context.Context, object Entity) (bool, error) {
	return p.objectRule(ctx, object)
}

// And combines two permission sets. The request rules evaluate receiver
// first, the object rules evaluate other first; both short-circuit on the
// first deny or error.
func (p Permissions) And(other Permissions) Permissions {
	return Permissions{
		requestRule: func(ctx context.Context) (bool, error) {
			ok, err := p.requestRule(ctx)
			if err != nil || !ok {
				return ok, err
			}
			return other.requestRule(ctx)
		},
		objectRule: other.objectRule.And(p.objectRule),
	}
}

// RequireUserForRequest returns permissions that demand an authenticated
// user for the request and accept any object. It is the head of every
// permission chain for mutating operations.
func RequireUserForRequest() Permissions {
	return Permissions{
		requestRule: func(ctx context.Context) (bool, error) {
			return UserFromContext(ctx) != nil, nil
		},
		objectRule: func(ctx context.Context, object Entity) (bool, error) {
			return true, nil
		},
	}
}

// RestrictObjectTo lifts an object restriction into permissions whose
// request-level check always passes. Alternative object-level rules are
// composed with ObjectRestriction.Or before lifting; Permissions itself
// has no Or.
func RestrictObjectTo(restriction ObjectRestriction) Permissions {
	return Permissions{
		requestRule: func(ctx context.Context) (bool, error) {
			return true, nil
		},
		objectRule: restriction,
	}
}
