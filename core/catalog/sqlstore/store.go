// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*Package sqlstore implements the catalogue stores on postgres.

All result sets that feed the consistency preconditions are ordered by
begin date, then id, so the first violation reported for an entity is
deterministic.
*/
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/relabs-tech/sensorhub/core/access"
	"github.com/relabs-tech/sensorhub/core/catalog"
	"github.com/relabs-tech/sensorhub/core/csql"
)

// Store is the postgres implementation of catalog.Store.
type Store struct {
	db *csql.DB
}

// New creates the store and the catalogue tables if they do not exist yet.
func New(db *csql.DB) *Store {
	if db == nil {
		panic("DB is missing")
	}
	s := &Store{db: db}
	s.createTables()
	return s
}

func (s *Store) createTables() {
	schema := s.db.Schema
	_, err := s.db.Exec(`
CREATE table IF NOT EXISTS ` + schema + `."account"
(account_id uuid NOT NULL DEFAULT uuid_generate_v4() PRIMARY KEY,
subject varchar NOT NULL UNIQUE,
superuser boolean NOT NULL DEFAULT false);

CREATE table IF NOT EXISTS ` + schema + `."site"
(site_id uuid NOT NULL DEFAULT uuid_generate_v4() PRIMARY KEY,
label varchar NOT NULL DEFAULT '',
archived boolean NOT NULL DEFAULT false);

CREATE table IF NOT EXISTS ` + schema + `."device"
(device_id uuid NOT NULL DEFAULT uuid_generate_v4() PRIMARY KEY,
short_name varchar NOT NULL DEFAULT '',
description varchar NOT NULL DEFAULT '',
visibility varchar NOT NULL DEFAULT 'internal',
created_by uuid,
group_ids text[] NOT NULL DEFAULT '{}',
archived boolean NOT NULL DEFAULT false,
updated_at timestamp NOT NULL DEFAULT now());

CREATE table IF NOT EXISTS ` + schema + `."platform"
(platform_id uuid NOT NULL DEFAULT uuid_generate_v4() PRIMARY KEY,
short_name varchar NOT NULL DEFAULT '',
description varchar NOT NULL DEFAULT '',
visibility varchar NOT NULL DEFAULT 'internal',
created_by uuid,
group_ids text[] NOT NULL DEFAULT '{}',
archived boolean NOT NULL DEFAULT false,
updated_at timestamp NOT NULL DEFAULT now());

CREATE table IF NOT EXISTS ` + schema + `."configuration"
(configuration_id uuid NOT NULL DEFAULT uuid_generate_v4() PRIMARY KEY,
label varchar NOT NULL DEFAULT '',
visibility varchar NOT NULL DEFAULT 'internal',
created_by uuid,
permission_group varchar NOT NULL DEFAULT '',
site_id uuid REFERENCES ` + schema + `."site" (site_id),
archived boolean NOT NULL DEFAULT false,
updated_at timestamp NOT NULL DEFAULT now());

CREATE table IF NOT EXISTS ` + schema + `."device_mount_action"
(id uuid NOT NULL DEFAULT uuid_generate_v4() PRIMARY KEY,
configuration_id uuid NOT NULL REFERENCES ` + schema + `."configuration" (configuration_id) ON DELETE CASCADE,
device_id uuid NOT NULL REFERENCES ` + schema + `."device" (device_id),
parent_platform_id uuid REFERENCES ` + schema + `."platform" (platform_id),
begin_date timestamp NOT NULL,
end_date timestamp);

CREATE table IF NOT EXISTS ` + schema + `."platform_mount_action"
(id uuid NOT NULL DEFAULT uuid_generate_v4() PRIMARY KEY,
configuration_id uuid NOT NULL REFERENCES ` + schema + `."configuration" (configuration_id) ON DELETE CASCADE,
platform_id uuid NOT NULL REFERENCES ` + schema + `."platform" (platform_id),
parent_platform_id uuid REFERENCES ` + schema + `."platform" (platform_id),
begin_date timestamp NOT NULL,
end_date timestamp);

CREATE table IF NOT EXISTS ` + schema + `."location_action"
(id uuid NOT NULL DEFAULT uuid_generate_v4() PRIMARY KEY,
configuration_id uuid NOT NULL REFERENCES ` + schema + `."configuration" (configuration_id) ON DELETE CASCADE,
kind varchar NOT NULL,
begin_date timestamp NOT NULL,
end_date timestamp);

CREATE index IF NOT EXISTS device_mount_action_device ON ` + schema + `."device_mount_action"(device_id);
CREATE index IF NOT EXISTS device_mount_action_configuration ON ` + schema + `."device_mount_action"(configuration_id);
CREATE index IF NOT EXISTS device_mount_action_parent ON ` + schema + `."device_mount_action"(parent_platform_id);
CREATE index IF NOT EXISTS platform_mount_action_platform ON ` + schema + `."platform_mount_action"(platform_id);
CREATE index IF NOT EXISTS platform_mount_action_configuration ON ` + schema + `."platform_mount_action"(configuration_id);
CREATE index IF NOT EXISTS platform_mount_action_parent ON ` + schema + `."platform_mount_action"(parent_platform_id);
CREATE index IF NOT EXISTS location_action_configuration ON ` + schema + `."location_action"(configuration_id,kind);
`)
	if err != nil {
		panic(fmt.Errorf("cannot create catalogue tables: %s", err))
	}
}

// AccountBySubject returns the catalogue user for an identity subject, or
// nil when the subject has no account.
func (s *Store) AccountBySubject(ctx context.Context, subject string) (*access.User, error) {
	user := access.User{Subject: subject}
	err := s.db.QueryRowContext(ctx,
		`SELECT account_id, superuser FROM `+s.db.Schema+`."account" WHERE subject=$1;`,
		subject).Scan(&user.ID, &user.Superuser)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateAccount inserts an account and returns its id.
func (s *Store) CreateAccount(ctx context.Context, subject string, superuser bool) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO `+s.db.Schema+`."account"(subject,superuser) VALUES($1,$2) RETURNING account_id;`,
		subject, superuser).Scan(&id)
	return id, err
}

// GetDevice implements catalog.EntityStore
func (s *Store) GetDevice(ctx context.Context, id uuid.UUID) (*catalog.Device, error) {
	var device catalog.Device
	var createdBy uuid.NullUUID
	err := s.db.QueryRowContext(ctx,
		`SELECT device_id, short_name, description, visibility, created_by, group_ids, archived, updated_at
FROM `+s.db.Schema+`."device" WHERE device_id=$1;`, id).
		Scan(&device.ID, &device.ShortName, &device.Description, &device.Visibility,
			&createdBy, pq.Array(&device.GroupIDs), &device.Archived, &device.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, catalog.ErrNotFound{Resource: "device", ID: id}
	}
	if err != nil {
		return nil, err
	}
	if createdBy.Valid {
		device.CreatedByID = &createdBy.UUID
	}
	return &device, nil
}

// GetPlatform implements catalog.EntityStore
func (s *Store) GetPlatform(ctx context.Context, id uuid.UUID) (*catalog.Platform, error) {
	var platform catalog.Platform
	var createdBy uuid.NullUUID
	err := s.db.QueryRowContext(ctx,
		`SELECT platform_id, short_name, description, visibility, created_by, group_ids, archived, updated_at
FROM `+s.db.Schema+`."platform" WHERE platform_id=$1;`, id).
		Scan(&platform.ID, &platform.ShortName, &platform.Description, &platform.Visibility,
			&createdBy, pq.Array(&platform.GroupIDs), &platform.Archived, &platform.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, catalog.ErrNotFound{Resource: "platform", ID: id}
	}
	if err != nil {
		return nil, err
	}
	if createdBy.Valid {
		platform.CreatedByID = &createdBy.UUID
	}
	return &platform, nil
}

// GetConfiguration implements catalog.EntityStore
func (s *Store) GetConfiguration(ctx context.Context, id uuid.UUID) (*catalog.Configuration, error) {
	var configuration catalog.Configuration
	var createdBy, siteID uuid.NullUUID
	err := s.db.QueryRowContext(ctx,
		`SELECT configuration_id, label, visibility, created_by, permission_group, site_id, archived, updated_at
FROM `+s.db.Schema+`."configuration" WHERE configuration_id=$1;`, id).
		Scan(&configuration.ID, &configuration.Label, &configuration.Visibility,
			&createdBy, &configuration.PermissionGroup, &siteID, &configuration.Archived, &configuration.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, catalog.ErrNotFound{Resource: "configuration", ID: id}
	}
	if err != nil {
		return nil, err
	}
	if createdBy.Valid {
		configuration.CreatedByID = &createdBy.UUID
	}
	if siteID.Valid {
		configuration.SiteID = &siteID.UUID
	}
	return &configuration, nil
}

func (s *Store) setArchived(ctx context.Context, table, column string, id uuid.UUID, archived bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE `+s.db.Schema+`."`+table+`" SET archived=$1, updated_at=now() WHERE `+column+`=$2;`,
		archived, id)
	if err != nil {
		return err
	}
	count, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return catalog.ErrNotFound{Resource: table, ID: id}
	}
	return nil
}

// SetDeviceArchived implements catalog.EntityStore
func (s *Store) SetDeviceArchived(ctx context.Context, id uuid.UUID, archived bool) error {
	return s.setArchived(ctx, "device", "device_id", id, archived)
}

// SetPlatformArchived implements catalog.EntityStore
func (s *Store) SetPlatformArchived(ctx context.Context, id uuid.UUID, archived bool) error {
	return s.setArchived(ctx, "platform", "platform_id", id, archived)
}

// SetConfigurationArchived implements catalog.EntityStore
func (s *Store) SetConfigurationArchived(ctx context.Context, id uuid.UUID, archived bool) error {
	return s.setArchived(ctx, "configuration", "configuration_id", id, archived)
}

func (s *Store) queryDeviceMounts(ctx context.Context, where string, id uuid.UUID) ([]catalog.DeviceMountAction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, configuration_id, device_id, parent_platform_id, begin_date, end_date
FROM `+s.db.Schema+`."device_mount_action" WHERE `+where+`=$1 ORDER BY begin_date, id;`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var mounts []catalog.DeviceMountAction
	for rows.Next() {
		var mount catalog.DeviceMountAction
		var parent uuid.NullUUID
		var end sql.NullTime
		err = rows.Scan(&mount.ID, &mount.ConfigurationID, &mount.DeviceID, &parent, &mount.BeginDate, &end)
		if err != nil {
			return nil, err
		}
		if parent.Valid {
			mount.ParentPlatformID = &parent.UUID
		}
		if end.Valid {
			endDate := end.Time
			mount.EndDate = &endDate
		}
		mounts = append(mounts, mount)
	}
	return mounts, rows.Err()
}

func (s *Store) queryPlatformMounts(ctx context.Context, where string, id uuid.UUID) ([]catalog.PlatformMountAction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, configuration_id, platform_id, parent_platform_id, begin_date, end_date
FROM `+s.db.Schema+`."platform_mount_action" WHERE `+where+`=$1 ORDER BY begin_date, id;`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var mounts []catalog.PlatformMountAction
	for rows.Next() {
		var mount catalog.PlatformMountAction
		var parent uuid.NullUUID
		var end sql.NullTime
		err = rows.Scan(&mount.ID, &mount.ConfigurationID, &mount.PlatformID, &parent, &mount.BeginDate, &end)
		if err != nil {
			return nil, err
		}
		if parent.Valid {
			mount.ParentPlatformID = &parent.UUID
		}
		if end.Valid {
			endDate := end.Time
			mount.EndDate = &endDate
		}
		mounts = append(mounts, mount)
	}
	return mounts, rows.Err()
}

// DeviceMountsOfDevice implements catalog.MountStore
func (s *Store) DeviceMountsOfDevice(ctx context.Context, deviceID uuid.UUID) ([]catalog.DeviceMountAction, error) {
	return s.queryDeviceMounts(ctx, "device_id", deviceID)
}

// DeviceMountsOfConfiguration implements catalog.MountStore
func (s *Store) DeviceMountsOfConfiguration(ctx context.Context, configurationID uuid.UUID) ([]catalog.DeviceMountAction, error) {
	return s.queryDeviceMounts(ctx, "configuration_id", configurationID)
}

// DeviceMountsBelowPlatform implements catalog.MountStore
func (s *Store) DeviceMountsBelowPlatform(ctx context.Context, platformID uuid.UUID) ([]catalog.DeviceMountAction, error) {
	return s.queryDeviceMounts(ctx, "parent_platform_id", platformID)
}

// PlatformMountsOfPlatform implements catalog.MountStore
func (s *Store) PlatformMountsOfPlatform(ctx context.Context, platformID uuid.UUID) ([]catalog.PlatformMountAction, error) {
	return s.queryPlatformMounts(ctx, "platform_id", platformID)
}

// PlatformMountsOfConfiguration implements catalog.MountStore
func (s *Store) PlatformMountsOfConfiguration(ctx context.Context, configurationID uuid.UUID) ([]catalog.PlatformMountAction, error) {
	return s.queryPlatformMounts(ctx, "configuration_id", configurationID)
}

// PlatformMountsBelowPlatform implements catalog.MountStore
func (s *Store) PlatformMountsBelowPlatform(ctx context.Context, platformID uuid.UUID) ([]catalog.PlatformMountAction, error) {
	return s.queryPlatformMounts(ctx, "parent_platform_id", platformID)
}

func (s *Store) queryLocations(ctx context.Context, kind string, configurationID uuid.UUID) ([]catalog.LocationAction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, configuration_id, begin_date, end_date
FROM `+s.db.Schema+`."location_action" WHERE configuration_id=$1 AND kind=$2 ORDER BY begin_date, id;`,
		configurationID, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var locations []catalog.LocationAction
	for rows.Next() {
		var location catalog.LocationAction
		var end sql.NullTime
		err = rows.Scan(&location.ID, &location.ConfigurationID, &location.BeginDate, &end)
		if err != nil {
			return nil, err
		}
		if end.Valid {
			endDate := end.Time
			location.EndDate = &endDate
		}
		locations = append(locations, location)
	}
	return locations, rows.Err()
}

// StaticLocationsOfConfiguration implements catalog.LocationStore
func (s *Store) StaticLocationsOfConfiguration(ctx context.Context, configurationID uuid.UUID) ([]catalog.LocationAction, error) {
	return s.queryLocations(ctx, "static", configurationID)
}

// DynamicLocationsOfConfiguration implements catalog.LocationStore
func (s *Store) DynamicLocationsOfConfiguration(ctx context.Context, configurationID uuid.UUID) ([]catalog.LocationAction, error) {
	return s.queryLocations(ctx, "dynamic", configurationID)
}

// SiteOfConfiguration implements catalog.SiteStore
func (s *Store) SiteOfConfiguration(ctx context.Context, configurationID uuid.UUID) (*catalog.Site, error) {
	var site catalog.Site
	err := s.db.QueryRowContext(ctx,
		`SELECT s.site_id, s.label, s.archived
FROM `+s.db.Schema+`."site" s
JOIN `+s.db.Schema+`."configuration" c ON c.site_id = s.site_id
WHERE c.configuration_id=$1;`, configurationID).
		Scan(&site.ID, &site.Label, &site.Archived)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &site, nil
}

// CreateDevice inserts a device and returns its id.
func (s *Store) CreateDevice(ctx context.Context, device *catalog.Device) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO `+s.db.Schema+`."device"(short_name,description,visibility,created_by,group_ids,archived)
VALUES($1,$2,$3,$4,$5,$6) RETURNING device_id;`,
		device.ShortName, device.Description, device.Visibility, device.CreatedByID,
		pq.Array(device.GroupIDs), device.Archived).Scan(&id)
	return id, err
}

// CreatePlatform inserts a platform and returns its id.
func (s *Store) CreatePlatform(ctx context.Context, platform *catalog.Platform) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO `+s.db.Schema+`."platform"(short_name,description,visibility,created_by,group_ids,archived)
VALUES($1,$2,$3,$4,$5,$6) RETURNING platform_id;`,
		platform.ShortName, platform.Description, platform.Visibility, platform.CreatedByID,
		pq.Array(platform.GroupIDs), platform.Archived).Scan(&id)
	return id, err
}

// CreateSite inserts a site and returns its id.
func (s *Store) CreateSite(ctx context.Context, site *catalog.Site) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO `+s.db.Schema+`."site"(label,archived) VALUES($1,$2) RETURNING site_id;`,
		site.Label, site.Archived).Scan(&id)
	return id, err
}

// CreateConfiguration inserts a configuration and returns its id.
func (s *Store) CreateConfiguration(ctx context.Context, configuration *catalog.Configuration) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO `+s.db.Schema+`."configuration"(label,visibility,created_by,permission_group,site_id,archived)
VALUES($1,$2,$3,$4,$5,$6) RETURNING configuration_id;`,
		configuration.Label, configuration.Visibility, configuration.CreatedByID,
		configuration.PermissionGroup, configuration.SiteID, configuration.Archived).Scan(&id)
	return id, err
}

// CreateDeviceMount inserts a device mount action and returns its id.
func (s *Store) CreateDeviceMount(ctx context.Context, mount *catalog.DeviceMountAction) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO `+s.db.Schema+`."device_mount_action"(configuration_id,device_id,parent_platform_id,begin_date,end_date)
VALUES($1,$2,$3,$4,$5) RETURNING id;`,
		mount.ConfigurationID, mount.DeviceID, mount.ParentPlatformID, mount.BeginDate, mount.EndDate).Scan(&id)
	return id, err
}

// CreatePlatformMount inserts a platform mount action and returns its id.
func (s *Store) CreatePlatformMount(ctx context.Context, mount *catalog.PlatformMountAction) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO `+s.db.Schema+`."platform_mount_action"(configuration_id,platform_id,parent_platform_id,begin_date,end_date)
VALUES($1,$2,$3,$4,$5) RETURNING id;`,
		mount.ConfigurationID, mount.PlatformID, mount.ParentPlatformID, mount.BeginDate, mount.EndDate).Scan(&id)
	return id, err
}

// CreateLocation inserts a location action of the given kind ("static" or
// "dynamic") and returns its id.
func (s *Store) CreateLocation(ctx context.Context, kind string, location *catalog.LocationAction) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO `+s.db.Schema+`."location_action"(configuration_id,kind,begin_date,end_date)
VALUES($1,$2,$3,$4) RETURNING id;`,
		location.ConfigurationID, kind, location.BeginDate, location.EndDate).Scan(&id)
	return id, err
}
