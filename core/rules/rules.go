/*Package rules assembles the permission and precondition trees for every
catalogue operation.

The trees are built once at startup and evaluated fresh per request
against the current user, the request's group resolver and the concrete
entity. Archiving a device or platform requires an authenticated user who
is a superuser, the owner of a private entity, or an administrator of one
of the entity's permission groups. Configurations have no private state
and no owner bypass; their single permission group decides. Restoring
needs the same permissions but has no preconditions.
*/
package rules

import (
	"time"

	"github.com/relabs-tech/sensorhub/core/access"
	"github.com/relabs-tech/sensorhub/core/catalog"
	"github.com/relabs-tech/sensorhub/core/precondition"
)

// Set bundles the assembled rule trees per catalogue operation.
type Set struct {
	ViewDevicePermissions        access.Permissions
	ViewPlatformPermissions      access.Permissions
	ViewConfigurationPermissions access.Permissions

	ArchiveDevicePermissions        access.Permissions
	RestoreDevicePermissions        access.Permissions
	ArchivePlatformPermissions      access.Permissions
	RestorePlatformPermissions      access.Permissions
	ArchiveConfigurationPermissions access.Permissions
	RestoreConfigurationPermissions access.Permissions

	ArchiveDevicePreconditions        precondition.Precondition
	ArchivePlatformPreconditions      precondition.Precondition
	ArchiveConfigurationPreconditions precondition.Precondition
}

// New assembles the rule set against the given store. The now function is
// the reference time for the mount and location consistency checks; pass
// time.Now in production.
func New(store catalog.Store, now func() time.Time) *Set {
	// The entity is readable when it is public, or internal and the
	// request is authenticated, or the caller holds any group role. The
	// cheap local checks come first so anonymous reads of public entities
	// never touch the identity service.
	view := access.RestrictObjectTo(
		access.PublicEntity().
			Or(access.InternalEntity().And(access.AnyUser())).
			Or(access.SuperUser()).
			Or(access.OwnerOfPrivateEntity()).
			Or(access.NoPrivateEntity().And(access.RoleInPermissionGroup(access.RoleAny))),
	)

	// Mutating a device or platform requires admin rights in one of its
	// groups, with bypasses for superusers and owners of private entities.
	manageGrouped := access.RequireUserForRequest().And(
		access.RestrictObjectTo(
			access.SuperUser().
				Or(access.OwnerOfPrivateEntity()).
				Or(access.NoPrivateEntity().And(access.RoleInPermissionGroup(access.RoleAdmin))),
		),
	)

	// Configurations: no owner bypass and no private carve-out.
	manageConfiguration := access.RequireUserForRequest().And(
		access.RestrictObjectTo(
			access.SuperUser().
				Or(access.RoleInPermissionGroup(access.RoleAdmin)),
		),
	)

	return &Set{
		ViewDevicePermissions:        view,
		ViewPlatformPermissions:      view,
		ViewConfigurationPermissions: view,

		ArchiveDevicePermissions:        manageGrouped,
		RestoreDevicePermissions:        manageGrouped,
		ArchivePlatformPermissions:      manageGrouped,
		RestorePlatformPermissions:      manageGrouped,
		ArchiveConfigurationPermissions: manageConfiguration,
		RestoreConfigurationPermissions: manageConfiguration,

		ArchiveDevicePreconditions: precondition.DeviceMountsFinished(store, now),

		ArchivePlatformPreconditions: precondition.PlatformMountsFinished(store, now).
			And(precondition.DeviceMountsBelowPlatformFinished(store, now)).
			And(precondition.PlatformMountsBelowPlatformFinished(store, now)),

		ArchiveConfigurationPreconditions: precondition.ConfigurationDeviceMountsFinished(store, now).
			And(precondition.ConfigurationPlatformMountsFinished(store, now)).
			And(precondition.ConfigurationStaticLocationsFinished(store, now)).
			And(precondition.ConfigurationDynamicLocationsFinished(store, now)),
	}
}
