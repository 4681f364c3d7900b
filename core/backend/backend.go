// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*Package backend provides the REST interface of the sensorhub catalogue.

The backend exposes the catalogue entities - devices, platforms and
configurations - with visibility-filtered reads and the archive/restore
lifecycle. Every mutating route follows the same protocol: request
permission first (401), then load (404), then object permission (403),
then the consistency preconditions (409 with the first violation), then
the mutation and the notification fan-out (204).
*/
package backend

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/sensorhub/attachments"
	"github.com/relabs-tech/sensorhub/core"
	"github.com/relabs-tech/sensorhub/core/access"
	"github.com/relabs-tech/sensorhub/core/catalog"
	"github.com/relabs-tech/sensorhub/core/rules"
)

// Backend is the catalogue rest backend
type Backend struct {
	config      Configuration
	store       catalog.Store
	rules       *rules.Set
	router      *mux.Router
	notifiers   []core.Notifier
	attachments attachments.Driver
}

// Builder is a builder helper for the Backend
type Builder struct {
	// Config is the JSON description of the exposed resources. This is mandatory.
	Config string
	// Store is the catalogue store. This is mandatory.
	Store catalog.Store
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Groups is the permission-group service. This is mandatory; the
	// backend installs a per-request group resolver on top of it.
	Groups access.GroupService
	// Notifiers receive catalogue change notifications. This is optional.
	Notifiers []core.Notifier
	// Attachments is the attachment store. This is optional; without it
	// the attachment routes are not registered.
	Attachments attachments.Driver
	// Now is the reference time for the consistency preconditions.
	// This is optional and defaults to time.Now.
	Now func() time.Time
}

// New realizes the actual backend. It validates the configuration,
// assembles the rule trees and adds the actual routes to the router.
func New(bb *Builder) *Backend {

	config, err := parseConfiguration(bb.Config)
	if err != nil {
		panic(err)
	}

	if bb.Store == nil {
		panic("Store is missing")
	}
	if bb.Router == nil {
		panic("Router is missing")
	}
	if bb.Groups == nil {
		panic("Groups is missing")
	}

	now := bb.Now
	if now == nil {
		now = time.Now
	}

	b := &Backend{
		config:      *config,
		store:       bb.Store,
		rules:       rules.New(bb.Store, now),
		router:      bb.Router,
		notifiers:   bb.Notifiers,
		attachments: bb.Attachments,
	}

	b.router.Use(access.NewGroupMiddleware(bb.Groups))
	b.handleCompression()
	if b.config.CORS {
		b.handleCORS()
	}
	b.handleAuthorizationRoute()
	b.handleRoutes()
	return b
}

func (b *Backend) handleRoutes() {
	for _, rc := range b.config.Resources {
		switch rc.Resource {
		case "device":
			b.handleEntityRoutes(rc, entityRoutes{
				view:                 b.rules.ViewDevicePermissions,
				archive:              b.rules.ArchiveDevicePermissions,
				restore:              b.rules.RestoreDevicePermissions,
				archivePreconditions: b.rules.ArchiveDevicePreconditions,
				load: func(ctx context.Context, id uuid.UUID) (access.Entity, error) {
					return b.store.GetDevice(ctx, id)
				},
				setArchived: b.store.SetDeviceArchived,
			})
		case "platform":
			b.handleEntityRoutes(rc, entityRoutes{
				view:                 b.rules.ViewPlatformPermissions,
				archive:              b.rules.ArchivePlatformPermissions,
				restore:              b.rules.RestorePlatformPermissions,
				archivePreconditions: b.rules.ArchivePlatformPreconditions,
				load: func(ctx context.Context, id uuid.UUID) (access.Entity, error) {
					return b.store.GetPlatform(ctx, id)
				},
				setArchived: b.store.SetPlatformArchived,
			})
		case "configuration":
			b.handleEntityRoutes(rc, entityRoutes{
				view:                 b.rules.ViewConfigurationPermissions,
				archive:              b.rules.ArchiveConfigurationPermissions,
				restore:              b.rules.RestoreConfigurationPermissions,
				archivePreconditions: b.rules.ArchiveConfigurationPreconditions,
				load: func(ctx context.Context, id uuid.UUID) (access.Entity, error) {
					return b.store.GetConfiguration(ctx, id)
				},
				setArchived: b.store.SetConfigurationArchived,
			})
		}
	}
}

func (b *Backend) notify(resource string, operation core.Operation, payload []byte) {
	for _, notifier := range b.notifiers {
		notifier.Notify(resource, operation, payload)
	}
}

func plural(s string) string {
	if strings.HasSuffix(s, "y") {
		return strings.TrimSuffix(s, "y") + "ies"
	}
	return s + "s"
}
