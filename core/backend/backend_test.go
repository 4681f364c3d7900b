// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/sensorhub/attachments"
	"github.com/relabs-tech/sensorhub/core"
	"github.com/relabs-tech/sensorhub/core/access"
	"github.com/relabs-tech/sensorhub/core/catalog"
)

var testConfigurationJSON = `{
	"resources": [
	  {
		"resource": "device",
		"with_attachments": true
	  },
	  {
		"resource": "platform"
	  },
	  {
		"resource": "configuration"
	  }
	]
  }
`

var testNow = time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

// testStore is an in-memory catalog.Store.
type testStore struct {
	devices        map[uuid.UUID]*catalog.Device
	platforms      map[uuid.UUID]*catalog.Platform
	configurations map[uuid.UUID]*catalog.Configuration
	deviceMounts   []catalog.DeviceMountAction
	platformMounts []catalog.PlatformMountAction
}

func newTestStore() *testStore {
	return &testStore{
		devices:        make(map[uuid.UUID]*catalog.Device),
		platforms:      make(map[uuid.UUID]*catalog.Platform),
		configurations: make(map[uuid.UUID]*catalog.Configuration),
	}
}

func (s *testStore) GetDevice(ctx context.Context, id uuid.UUID) (*catalog.Device, error) {
	if device, ok := s.devices[id]; ok {
		return device, nil
	}
	return nil, catalog.ErrNotFound{Resource: "device", ID: id}
}

func (s *testStore) GetPlatform(ctx context.Context, id uuid.UUID) (*catalog.Platform, error) {
	if platform, ok := s.platforms[id]; ok {
		return platform, nil
	}
	return nil, catalog.ErrNotFound{Resource: "platform", ID: id}
}

func (s *testStore) GetConfiguration(ctx context.Context, id uuid.UUID) (*catalog.Configuration, error) {
	if configuration, ok := s.configurations[id]; ok {
		return configuration, nil
	}
	return nil, catalog.ErrNotFound{Resource: "configuration", ID: id}
}

func (s *testStore) SetDeviceArchived(ctx context.Context, id uuid.UUID, archived bool) error {
	device, err := s.GetDevice(ctx, id)
	if err != nil {
		return err
	}
	device.Archived = archived
	return nil
}

func (s *testStore) SetPlatformArchived(ctx context.Context, id uuid.UUID, archived bool) error {
	platform, err := s.GetPlatform(ctx, id)
	if err != nil {
		return err
	}
	platform.Archived = archived
	return nil
}

func (s *testStore) SetConfigurationArchived(ctx context.Context, id uuid.UUID, archived bool) error {
	configuration, err := s.GetConfiguration(ctx, id)
	if err != nil {
		return err
	}
	configuration.Archived = archived
	return nil
}

func (s *testStore) DeviceMountsOfDevice(ctx context.Context, id uuid.UUID) ([]catalog.DeviceMountAction, error) {
	var mounts []catalog.DeviceMountAction
	for _, mount := range s.deviceMounts {
		if mount.DeviceID == id {
			mounts = append(mounts, mount)
		}
	}
	return mounts, nil
}

func (s *testStore) DeviceMountsOfConfiguration(ctx context.Context, id uuid.UUID) ([]catalog.DeviceMountAction, error) {
	var mounts []catalog.DeviceMountAction
	for _, mount := range s.deviceMounts {
		if mount.ConfigurationID == id {
			mounts = append(mounts, mount)
		}
	}
	return mounts, nil
}

func (s *testStore) DeviceMountsBelowPlatform(ctx context.Context, id uuid.UUID) ([]catalog.DeviceMountAction, error) {
	var mounts []catalog.DeviceMountAction
	for _, mount := range s.deviceMounts {
		if mount.ParentPlatformID != nil && *mount.ParentPlatformID == id {
			mounts = append(mounts, mount)
		}
	}
	return mounts, nil
}

func (s *testStore) PlatformMountsOfPlatform(ctx context.Context, id uuid.UUID) ([]catalog.PlatformMountAction, error) {
	var mounts []catalog.PlatformMountAction
	for _, mount := range s.platformMounts {
		if mount.PlatformID == id {
			mounts = append(mounts, mount)
		}
	}
	return mounts, nil
}

func (s *testStore) PlatformMountsOfConfiguration(ctx context.Context, id uuid.UUID) ([]catalog.PlatformMountAction, error) {
	var mounts []catalog.PlatformMountAction
	for _, mount := range s.platformMounts {
		if mount.ConfigurationID == id {
			mounts = append(mounts, mount)
		}
	}
	return mounts, nil
}

func (s *testStore) PlatformMountsBelowPlatform(ctx context.Context, id uuid.UUID) ([]catalog.PlatformMountAction, error) {
	var mounts []catalog.PlatformMountAction
	for _, mount := range s.platformMounts {
		if mount.ParentPlatformID != nil && *mount.ParentPlatformID == id {
			mounts = append(mounts, mount)
		}
	}
	return mounts, nil
}

func (s *testStore) StaticLocationsOfConfiguration(ctx context.Context, id uuid.UUID) ([]catalog.LocationAction, error) {
	return nil, nil
}

func (s *testStore) DynamicLocationsOfConfiguration(ctx context.Context, id uuid.UUID) ([]catalog.LocationAction, error) {
	return nil, nil
}

func (s *testStore) SiteOfConfiguration(ctx context.Context, id uuid.UUID) (*catalog.Site, error) {
	return nil, nil
}

// recordingNotifier records notifications.
type recordingNotifier struct {
	resources  []string
	operations []core.Operation
	payloads   [][]byte
}

func (n *recordingNotifier) Notify(resource string, operation core.Operation, payload []byte) {
	n.resources = append(n.resources, resource)
	n.operations = append(n.operations, operation)
	n.payloads = append(n.payloads, payload)
}

type testEnv struct {
	router   *mux.Router
	store    *testStore
	notifier *recordingNotifier
}

// newTestEnv builds a backend over an in-memory store. The user, when not
// nil, is injected into every request; the memberships are what the fake
// identity service reports for any subject.
func newTestEnv(t *testing.T, user *access.User, memberships *access.Memberships, groupErr error, driver attachments.Driver) testEnv {
	t.Helper()

	store := newTestStore()
	notifier := &recordingNotifier{}
	router := mux.NewRouter()
	if user != nil {
		router.Use(func(h http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				h.ServeHTTP(w, r.WithContext(access.ContextWithUser(r.Context(), user)))
			})
		})
	}

	New(&Builder{
		Config: testConfigurationJSON,
		Store:  store,
		Router: router,
		Groups: access.GroupServiceFunc(func(ctx context.Context, subject string) (*access.Memberships, error) {
			return memberships, groupErr
		}),
		Notifiers:   []core.Notifier{notifier},
		Attachments: driver,
		Now:         func() time.Time { return testNow },
	})

	return testEnv{router: router, store: store, notifier: notifier}
}

func (e testEnv) request(method, target string, body io.Reader) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, body)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)
	return w
}

func TestArchiveDeviceRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil, nil)
	deviceID := uuid.New()
	env.store.devices[deviceID] = &catalog.Device{ID: deviceID, Visibility: catalog.VisibilityInternal}

	w := env.request(http.MethodPost, "/devices/"+deviceID.String()+"/archive", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, env.notifier.operations)
}

func TestArchiveDeviceNotFound(t *testing.T) {
	admin := &access.User{ID: uuid.New(), Subject: "admin@example.com"}
	memberships := &access.Memberships{AdministratedPermissionGroups: []string{"7"}}
	env := newTestEnv(t, admin, memberships, nil, nil)

	w := env.request(http.MethodPost, "/devices/"+uuid.New().String()+"/archive", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestArchiveDeviceForbiddenForMember(t *testing.T) {
	member := &access.User{ID: uuid.New(), Subject: "member@example.com"}
	memberships := &access.Memberships{MemberedPermissionGroups: []string{"7"}}
	env := newTestEnv(t, member, memberships, nil, nil)

	deviceID := uuid.New()
	env.store.devices[deviceID] = &catalog.Device{ID: deviceID, Visibility: catalog.VisibilityInternal, GroupIDs: []string{"7"}}

	w := env.request(http.MethodPost, "/devices/"+deviceID.String()+"/archive", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, env.store.devices[deviceID].Archived)
}

func TestArchiveDeviceConflictOnOpenMount(t *testing.T) {
	admin := &access.User{ID: uuid.New(), Subject: "admin@example.com"}
	memberships := &access.Memberships{AdministratedPermissionGroups: []string{"7"}}
	env := newTestEnv(t, admin, memberships, nil, nil)

	deviceID := uuid.New()
	env.store.devices[deviceID] = &catalog.Device{ID: deviceID, Visibility: catalog.VisibilityInternal, GroupIDs: []string{"7"}}
	mount := catalog.DeviceMountAction{ID: uuid.New(), DeviceID: deviceID, ConfigurationID: uuid.New(), BeginDate: testNow.Add(-time.Hour)}
	env.store.deviceMounts = append(env.store.deviceMounts, mount)

	w := env.request(http.MethodPost, "/devices/"+deviceID.String()+"/archive", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "device mount action "+mount.ID.String()+" has no end date", strings.TrimSpace(w.Body.String()))
	assert.False(t, env.store.devices[deviceID].Archived)
}

func TestArchiveAndRestoreDevice(t *testing.T) {
	admin := &access.User{ID: uuid.New(), Subject: "admin@example.com"}
	memberships := &access.Memberships{AdministratedPermissionGroups: []string{"7"}}
	env := newTestEnv(t, admin, memberships, nil, nil)

	deviceID := uuid.New()
	env.store.devices[deviceID] = &catalog.Device{ID: deviceID, Visibility: catalog.VisibilityInternal, GroupIDs: []string{"7"}}
	ended := testNow.Add(-time.Hour)
	env.store.deviceMounts = append(env.store.deviceMounts, catalog.DeviceMountAction{
		ID: uuid.New(), DeviceID: deviceID, ConfigurationID: uuid.New(),
		BeginDate: testNow.Add(-2 * time.Hour), EndDate: &ended,
	})

	w := env.request(http.MethodPost, "/devices/"+deviceID.String()+"/archive", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, env.store.devices[deviceID].Archived)

	// restore has no preconditions, it reverses the archive even with an
	// open mount present
	env.store.deviceMounts = append(env.store.deviceMounts, catalog.DeviceMountAction{
		ID: uuid.New(), DeviceID: deviceID, ConfigurationID: uuid.New(), BeginDate: testNow.Add(-time.Hour),
	})
	w = env.request(http.MethodPost, "/devices/"+deviceID.String()+"/restore", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, env.store.devices[deviceID].Archived)

	require.Equal(t, []core.Operation{core.OperationArchive, core.OperationRestore}, env.notifier.operations)
	assert.Equal(t, []string{"device", "device"}, env.notifier.resources)

	// the notification payloads carry the mutated entity state
	require.Len(t, env.notifier.payloads, 2)
	var archivedDevice, restoredDevice catalog.Device
	require.NoError(t, json.Unmarshal(env.notifier.payloads[0], &archivedDevice))
	assert.True(t, archivedDevice.Archived)
	require.NoError(t, json.Unmarshal(env.notifier.payloads[1], &restoredDevice))
	assert.False(t, restoredDevice.Archived)
}

func TestArchiveConfiguration(t *testing.T) {
	admin := &access.User{ID: uuid.New(), Subject: "admin@example.com"}
	memberships := &access.Memberships{AdministratedPermissionGroups: []string{"7"}}
	env := newTestEnv(t, admin, memberships, nil, nil)

	configurationID := uuid.New()
	env.store.configurations[configurationID] = &catalog.Configuration{
		ID: configurationID, Visibility: catalog.VisibilityInternal, PermissionGroup: "7",
	}

	w := env.request(http.MethodPost, "/configurations/"+configurationID.String()+"/archive", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, env.store.configurations[configurationID].Archived)
}

func TestIdentityServiceFailureIsNoDenial(t *testing.T) {
	user := &access.User{ID: uuid.New(), Subject: "member@example.com"}
	env := newTestEnv(t, user, nil, errors.New("connection refused"), nil)

	deviceID := uuid.New()
	env.store.devices[deviceID] = &catalog.Device{ID: deviceID, Visibility: catalog.VisibilityInternal, GroupIDs: []string{"7"}}

	w := env.request(http.MethodPost, "/devices/"+deviceID.String()+"/archive", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.False(t, env.store.devices[deviceID].Archived)
}

func TestGetDeviceVisibility(t *testing.T) {
	publicID, internalID, privateID := uuid.New(), uuid.New(), uuid.New()
	owner := uuid.New()

	seed := func(env testEnv) {
		env.store.devices[publicID] = &catalog.Device{ID: publicID, Visibility: catalog.VisibilityPublic}
		env.store.devices[internalID] = &catalog.Device{ID: internalID, Visibility: catalog.VisibilityInternal}
		env.store.devices[privateID] = &catalog.Device{ID: privateID, Visibility: catalog.VisibilityPrivate, CreatedByID: &owner}
	}

	// anonymous
	env := newTestEnv(t, nil, nil, nil, nil)
	seed(env)
	assert.Equal(t, http.StatusOK, env.request(http.MethodGet, "/devices/"+publicID.String(), nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.request(http.MethodGet, "/devices/"+internalID.String(), nil).Code)
	assert.Equal(t, http.StatusNotFound, env.request(http.MethodGet, "/devices/"+uuid.New().String(), nil).Code)

	// authenticated user without group roles
	env = newTestEnv(t, &access.User{ID: uuid.New(), Subject: "user@example.com"}, nil, nil, nil)
	seed(env)
	assert.Equal(t, http.StatusOK, env.request(http.MethodGet, "/devices/"+internalID.String(), nil).Code)
	assert.Equal(t, http.StatusForbidden, env.request(http.MethodGet, "/devices/"+privateID.String(), nil).Code)

	// the owner reads their private device
	env = newTestEnv(t, &access.User{ID: owner, Subject: "owner@example.com"}, nil, nil, nil)
	seed(env)
	w := env.request(http.MethodGet, "/devices/"+privateID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var device catalog.Device
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &device))
	assert.Equal(t, privateID, device.ID)
}

func TestAuthorizationRoute(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil, nil)
	w := env.request(http.MethodGet, "/authorization", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	user := &access.User{ID: uuid.New(), Subject: "user@example.com"}
	memberships := &access.Memberships{MemberedPermissionGroups: []string{"7"}}
	env = newTestEnv(t, user, memberships, nil, nil)
	w = env.request(http.MethodGet, "/authorization", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Subject     string              `json:"subject"`
		Memberships *access.Memberships `json:"memberships"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "user@example.com", response.Subject)
	require.NotNil(t, response.Memberships)
	assert.Equal(t, []string{"7"}, response.Memberships.MemberedPermissionGroups)
}

func TestDeviceAttachments(t *testing.T) {
	driver, err := attachments.NewLocalFilesystem(t.TempDir())
	require.NoError(t, err)

	admin := &access.User{ID: uuid.New(), Subject: "admin@example.com"}
	memberships := &access.Memberships{AdministratedPermissionGroups: []string{"7"}}
	env := newTestEnv(t, admin, memberships, nil, driver)

	deviceID := uuid.New()
	env.store.devices[deviceID] = &catalog.Device{ID: deviceID, Visibility: catalog.VisibilityPublic, GroupIDs: []string{"7"}}

	target := "/devices/" + deviceID.String() + "/attachments/manual.txt"

	// missing attachment
	assert.Equal(t, http.StatusNotFound, env.request(http.MethodGet, target, nil).Code)

	// upload and read back
	r := httptest.NewRequest(http.MethodPut, target, strings.NewReader("handle with care"))
	r.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, r)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = env.request(http.MethodGet, target, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "handle with care", w.Body.String())
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))

	// uploads to archived devices are rejected
	env.store.devices[deviceID].Archived = true
	w = env.request(http.MethodPut, target, strings.NewReader("update"))
	assert.Equal(t, http.StatusConflict, w.Code)
}
