package precondition

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/relabs-tech/sensorhub/core/catalog"
)

func checkLocations(kind string, locations []catalog.LocationAction, now time.Time) *Conflict {
	for _, location := range locations {
		if location.EndDate == nil {
			return Conflictf("%s location action %s has no end date", kind, location.ID)
		}
		if location.EndDate.After(now) {
			return Conflictf("%s location action %s is not finished in the past", kind, location.ID)
		}
	}
	return nil
}

// ConfigurationStaticLocationsFinished requires that every static location
// action of the configuration has an end date in the past.
func ConfigurationStaticLocationsFinished(store catalog.LocationStore, now func() time.Time) Precondition {
	return func(ctx context.Context, configurationID uuid.UUID) (*Conflict, error) {
		locations, err := store.StaticLocationsOfConfiguration(ctx, configurationID)
		if err != nil {
			return nil, err
		}
		return checkLocations("static", locations, now()), nil
	}
}

// ConfigurationDynamicLocationsFinished requires that every dynamic
// location action of the configuration has an end date in the past.
func ConfigurationDynamicLocationsFinished(store catalog.LocationStore, now func() time.Time) Precondition {
	return func(ctx context.Context, configurationID uuid.UUID) (*Conflict, error) {
		locations, err := store.DynamicLocationsOfConfiguration(ctx, configurationID)
		if err != nil {
			return nil, err
		}
		return checkLocations("dynamic", locations, now()), nil
	}
}
