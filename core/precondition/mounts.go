package precondition

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/relabs-tech/sensorhub/core/catalog"
)

// checkDeviceMounts reports the first device mount action that is not
// finished in the past relative to now.
func checkDeviceMounts(mounts []catalog.DeviceMountAction, now time.Time) *Conflict {
	for _, mount := range mounts {
		if mount.EndDate == nil {
			return Conflictf("device mount action %s has no end date", mount.ID)
		}
		if mount.EndDate.After(now) {
			return Conflictf("device mount action %s is not finished in the past", mount.ID)
		}
	}
	return nil
}

// checkPlatformMounts reports the first platform mount action that is not
// finished in the past relative to now.
func checkPlatformMounts(mounts []catalog.PlatformMountAction, now time.Time) *Conflict {
	for _, mount := range mounts {
		if mount.EndDate == nil {
			return Conflictf("platform mount action %s has no end date", mount.ID)
		}
		if mount.EndDate.After(now) {
			return Conflictf("platform mount action %s is not finished in the past", mount.ID)
		}
	}
	return nil
}

// DeviceMountsFinished requires that every mount action of the device has
// an end date in the past. The now function is injectable for tests.
func DeviceMountsFinished(store catalog.MountStore, now func() time.Time) Precondition {
	return func(ctx context.Context, deviceID uuid.UUID) (*Conflict, error) {
		mounts, err := store.DeviceMountsOfDevice(ctx, deviceID)
		if err != nil {
			return nil, err
		}
		return checkDeviceMounts(mounts, now()), nil
	}
}

// PlatformMountsFinished requires that every mount action of the platform
// has an end date in the past.
func PlatformMountsFinished(store catalog.MountStore, now func() time.Time) Precondition {
	return func(ctx context.Context, platformID uuid.UUID) (*Conflict, error) {
		mounts, err := store.PlatformMountsOfPlatform(ctx, platformID)
		if err != nil {
			return nil, err
		}
		return checkPlatformMounts(mounts, now()), nil
	}
}

// DeviceMountsBelowPlatformFinished requires that every device mount that
// uses the platform as parent has an end date in the past.
func DeviceMountsBelowPlatformFinished(store catalog.MountStore, now func() time.Time) Precondition {
	return func(ctx context.Context, platformID uuid.UUID) (*Conflict, error) {
		mounts, err := store.DeviceMountsBelowPlatform(ctx, platformID)
		if err != nil {
			return nil, err
		}
		return checkDeviceMounts(mounts, now()), nil
	}
}

// PlatformMountsBelowPlatformFinished requires that every platform mount
// that uses the platform as parent has an end date in the past.
func PlatformMountsBelowPlatformFinished(store catalog.MountStore, now func() time.Time) Precondition {
	return func(ctx context.Context, platformID uuid.UUID) (*Conflict, error) {
		mounts, err := store.PlatformMountsBelowPlatform(ctx, platformID)
		if err != nil {
			return nil, err
		}
		return checkPlatformMounts(mounts, now()), nil
	}
}

// ConfigurationDeviceMountsFinished requires that every device mount of
// the configuration has an end date in the past.
func ConfigurationDeviceMountsFinished(store catalog.MountStore, now func() time.Time) Precondition {
	return func(ctx context.Context, configurationID uuid.UUID) (*Conflict, error) {
		mounts, err := store.DeviceMountsOfConfiguration(ctx, configurationID)
		if err != nil {
			return nil, err
		}
		return checkDeviceMounts(mounts, now()), nil
	}
}

// ConfigurationPlatformMountsFinished requires that every platform mount
// of the configuration has an end date in the past.
func ConfigurationPlatformMountsFinished(store catalog.MountStore, now func() time.Time) Precondition {
	return func(ctx context.Context, configurationID uuid.UUID) (*Conflict, error) {
		mounts, err := store.PlatformMountsOfConfiguration(ctx, configurationID)
		if err != nil {
			return nil, err
		}
		return checkPlatformMounts(mounts, now()), nil
	}
}
