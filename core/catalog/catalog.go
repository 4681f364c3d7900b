/*Package catalog defines the entities of the sensorhub metadata catalogue:
devices, platforms, configurations, sites, and the mount and location
actions that tie them together, plus the store interfaces to read them.
*/
package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Visibility is the visibility state of a catalogue entity. Exactly one
// state applies at any time.
type Visibility string

// all visibility states
const (
	// VisibilityPublic entities are readable without authentication
	VisibilityPublic Visibility = "public"
	// VisibilityInternal entities are readable by any authenticated user
	VisibilityInternal Visibility = "internal"
	// VisibilityPrivate entities are readable by their creator only.
	// Configurations never carry this state.
	VisibilityPrivate Visibility = "private"
)

// Device is a sensor in the catalogue.
type Device struct {
	ID          uuid.UUID  `json:"id"`
	ShortName   string     `json:"short_name"`
	Description string     `json:"description,omitempty"`
	Visibility  Visibility `json:"visibility"`
	CreatedByID *uuid.UUID `json:"created_by_id,omitempty"`
	// GroupIDs are the permission groups that govern mutations of this
	// device. A device can belong to several groups.
	GroupIDs  []string  `json:"group_ids"`
	Archived  bool      `json:"archived"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsPublic implements access.Entity
func (d *Device) IsPublic() bool { return d.Visibility == VisibilityPublic }

// IsInternal implements access.Entity
func (d *Device) IsInternal() bool { return d.Visibility == VisibilityInternal }

// IsPrivate implements access.Entity
func (d *Device) IsPrivate() bool { return d.Visibility == VisibilityPrivate }

// CreatedBy implements access.Entity
func (d *Device) CreatedBy() (uuid.UUID, bool) {
	if d.CreatedByID == nil {
		return uuid.UUID{}, false
	}
	return *d.CreatedByID, true
}

// AuthorizationGroups implements access.Entity
func (d *Device) AuthorizationGroups() []string { return d.GroupIDs }

// IsArchived returns the archive state
func (d *Device) IsArchived() bool { return d.Archived }

// Platform is a carrier for devices, such as a station, a buoy or a drone.
type Platform struct {
	ID          uuid.UUID  `json:"id"`
	ShortName   string     `json:"short_name"`
	Description string     `json:"description,omitempty"`
	Visibility  Visibility `json:"visibility"`
	CreatedByID *uuid.UUID `json:"created_by_id,omitempty"`
	GroupIDs    []string   `json:"group_ids"`
	Archived    bool       `json:"archived"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsPublic implements access.Entity
func (p *Platform) IsPublic() bool { return p.Visibility == VisibilityPublic }

// IsInternal implements access.Entity
func (p *Platform) IsInternal() bool { return p.Visibility == VisibilityInternal }

// IsPrivate implements access.Entity
func (p *Platform) IsPrivate() bool { return p.Visibility == VisibilityPrivate }

// CreatedBy implements access.Entity
func (p *Platform) CreatedBy() (uuid.UUID, bool) {
	if p.CreatedByID == nil {
		return uuid.UUID{}, false
	}
	return *p.CreatedByID, true
}

// AuthorizationGroups implements access.Entity
func (p *Platform) AuthorizationGroups() []string { return p.GroupIDs }

// IsArchived returns the archive state
func (p *Platform) IsArchived() bool { return p.Archived }

// Configuration is a deployment of devices and platforms, optionally
// located at a site. Configurations have no private visibility state and
// are governed by at most one permission group.
type Configuration struct {
	ID          uuid.UUID  `json:"id"`
	Label       string     `json:"label"`
	Visibility  Visibility `json:"visibility"`
	CreatedByID *uuid.UUID `json:"created_by_id,omitempty"`
	// PermissionGroup is the single owning permission group, empty when
	// the configuration is not governed by a group.
	PermissionGroup string     `json:"permission_group,omitempty"`
	SiteID          *uuid.UUID `json:"site_id,omitempty"`
	Archived        bool       `json:"archived"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsPublic implements access.Entity
func (c *Configuration) IsPublic() bool { return c.Visibility == VisibilityPublic }

// IsInternal implements access.Entity
func (c *Configuration) IsInternal() bool { return c.Visibility == VisibilityInternal }

// IsPrivate implements access.Entity; configurations are never private.
func (c *Configuration) IsPrivate() bool { return false }

// CreatedBy implements access.Entity
func (c *Configuration) CreatedBy() (uuid.UUID, bool) {
	if c.CreatedByID == nil {
		return uuid.UUID{}, false
	}
	return *c.CreatedByID, true
}

// AuthorizationGroups implements access.Entity
func (c *Configuration) AuthorizationGroups() []string {
	if c.PermissionGroup == "" {
		return nil
	}
	return []string{c.PermissionGroup}
}

// IsArchived returns the archive state
func (c *Configuration) IsArchived() bool { return c.Archived }

// Site is a physical location that configurations can be assigned to.
type Site struct {
	ID       uuid.UUID `json:"id"`
	Label    string    `json:"label"`
	Archived bool      `json:"archived"`
}

// DeviceMountAction records that a device is mounted in a configuration,
// optionally below a parent platform, for a period of time. A nil EndDate
// means the mount is still open.
type DeviceMountAction struct {
	ID               uuid.UUID  `json:"id"`
	ConfigurationID  uuid.UUID  `json:"configuration_id"`
	DeviceID         uuid.UUID  `json:"device_id"`
	ParentPlatformID *uuid.UUID `json:"parent_platform_id,omitempty"`
	BeginDate        time.Time  `json:"begin_date"`
	EndDate          *time.Time `json:"end_date,omitempty"`
}

// PlatformMountAction records that a platform is mounted in a
// configuration, optionally below a parent platform.
type PlatformMountAction struct {
	ID               uuid.UUID  `json:"id"`
	ConfigurationID  uuid.UUID  `json:"configuration_id"`
	PlatformID       uuid.UUID  `json:"platform_id"`
	ParentPlatformID *uuid.UUID `json:"parent_platform_id,omitempty"`
	BeginDate        time.Time  `json:"begin_date"`
	EndDate          *time.Time `json:"end_date,omitempty"`
}

// LocationAction records where a configuration is located for a period of
// time. Static locations are fixed coordinates, dynamic locations are
// bound to live data streams.
type LocationAction struct {
	ID              uuid.UUID  `json:"id"`
	ConfigurationID uuid.UUID  `json:"configuration_id"`
	BeginDate       time.Time  `json:"begin_date"`
	EndDate         *time.Time `json:"end_date,omitempty"`
}

// EntityStore provides read and archive-state access to the catalogue
// entities.
type EntityStore interface {
	GetDevice(ctx context.Context, id uuid.UUID) (*Device, error)
	GetPlatform(ctx context.Context, id uuid.UUID) (*Platform, error)
	GetConfiguration(ctx context.Context, id uuid.UUID) (*Configuration, error)
	SetDeviceArchived(ctx context.Context, id uuid.UUID, archived bool) error
	SetPlatformArchived(ctx context.Context, id uuid.UUID, archived bool) error
	SetConfigurationArchived(ctx context.Context, id uuid.UUID, archived bool) error
}

// MountStore provides read access to mount actions. All results are
// ordered by begin date, then id, so that the first reported consistency
// violation is deterministic.
type MountStore interface {
	DeviceMountsOfDevice(ctx context.Context, deviceID uuid.UUID) ([]DeviceMountAction, error)
	DeviceMountsOfConfiguration(ctx context.Context, configurationID uuid.UUID) ([]DeviceMountAction, error)
	DeviceMountsBelowPlatform(ctx context.Context, platformID uuid.UUID) ([]DeviceMountAction, error)
	PlatformMountsOfPlatform(ctx context.Context, platformID uuid.UUID) ([]PlatformMountAction, error)
	PlatformMountsOfConfiguration(ctx context.Context, configurationID uuid.UUID) ([]PlatformMountAction, error)
	PlatformMountsBelowPlatform(ctx context.Context, platformID uuid.UUID) ([]PlatformMountAction, error)
}

// LocationStore provides read access to location actions, ordered like
// MountStore results.
type LocationStore interface {
	StaticLocationsOfConfiguration(ctx context.Context, configurationID uuid.UUID) ([]LocationAction, error)
	DynamicLocationsOfConfiguration(ctx context.Context, configurationID uuid.UUID) ([]LocationAction, error)
}

// SiteStore resolves the site a configuration is assigned to. A nil site
// with a nil error means the configuration has no site.
type SiteStore interface {
	SiteOfConfiguration(ctx context.Context, configurationID uuid.UUID) (*Site, error)
}

// Store bundles all catalogue store interfaces.
type Store interface {
	EntityStore
	MountStore
	LocationStore
	SiteStore
}

// ErrNotFound is returned by stores when an entity does not exist.
type ErrNotFound struct {
	Resource string
	ID       uuid.UUID
}

func (e ErrNotFound) Error() string {
	return e.Resource + " " + e.ID.String() + " not found"
}
