package access

import (
	"context"
	"fmt"
)

// SuperUser passes when the current user is a superuser.
func SuperUser() ObjectRestriction {
	return func(ctx context.Context, object Entity) (bool, error) {
		user := UserFromContext(ctx)
		return user != nil && user.Superuser, nil
	}
}

// AnyUser passes when the request carries any authenticated user.
func AnyUser() ObjectRestriction {
	return func(ctx context.Context, object Entity) (bool, error) {
		return UserFromContext(ctx) != nil, nil
	}
}

// PublicEntity passes when the entity is publicly visible.
func PublicEntity() ObjectRestriction {
	return func(ctx context.Context, object Entity) (bool, error) {
		return object.IsPublic(), nil
	}
}

// InternalEntity passes when the entity is visible to authenticated users.
func InternalEntity() ObjectRestriction {
	return func(ctx context.Context, object Entity) (bool, error) {
		return object.IsInternal(), nil
	}
}

// OwnerOfPrivateEntity passes when the entity is private and was created by
// the current user.
func OwnerOfPrivateEntity() ObjectRestriction {
	return func(ctx context.Context, object Entity) (bool, error) {
		user := UserFromContext(ctx)
		if user == nil || !object.IsPrivate() {
			return false, nil
		}
		createdBy, ok := object.CreatedBy()
		return ok && createdBy == user.ID, nil
	}
}

// NoPrivateEntity passes when the entity is not private. Group-based rules
// are meaningless for private entities; composing this rule in front of
// RoleInPermissionGroup skips the identity-service lookup for them.
func NoPrivateEntity() ObjectRestriction {
	return func(ctx context.Context, object Entity) (bool, error) {
		return !object.IsPrivate(), nil
	}
}

// RoleInPermissionGroup passes when the current user holds the requested
// role in at least one of the entity's permission groups.
//
// The membership snapshot is fetched lazily from the identity service
// through the request's group resolver, at most once per request. A failing
// fetch propagates as an error through the whole rule tree; it is never
// silently treated as a deny.
func RoleInPermissionGroup(role PermissionGroupRole) ObjectRestriction {
	return func(ctx context.Context, object Entity) (bool, error) {
		user := UserFromContext(ctx)
		if user == nil {
			return false, nil
		}
		resolver := GroupsFromContext(ctx)
		if resolver == nil {
			return false, fmt.Errorf("no group resolver in request context")
		}
		memberships, err := resolver.Lookup(ctx, user.Subject)
		if err != nil {
			return false, fmt.Errorf("cannot resolve permission groups for %s: %w", user.Subject, err)
		}
		if memberships == nil {
			return false, nil
		}
		checked := memberships.CheckedGroups(role)
		if len(checked) == 0 {
			return false, nil
		}
		groups := make(map[string]struct{}, len(checked))
		for _, group := range checked {
			groups[group] = struct{}{}
		}
		for _, group := range object.AuthorizationGroups() {
			if _, ok := groups[group]; ok {
				return true, nil
			}
		}
		return false, nil
	}
}
