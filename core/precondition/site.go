package precondition

import (
	"context"

	"github.com/google/uuid"
	"github.com/relabs-tech/sensorhub/core/catalog"
)

// ConfigurationSiteNotArchived blocks a transition while the site the
// configuration is assigned to is archived. Configurations without a site
// always pass.
func ConfigurationSiteNotArchived(store catalog.SiteStore) Precondition {
	return func(ctx context.Context, configurationID uuid.UUID) (*Conflict, error) {
		site, err := store.SiteOfConfiguration(ctx, configurationID)
		if err != nil {
			return nil, err
		}
		if site != nil && site.Archived {
			return Conflictf("site %s is archived", site.ID), nil
		}
		return nil, nil
	}
}
