package idl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionGroups(t *testing.T) {
	var gotPath, gotQuery, gotAuthorization string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("subject")
		gotAuthorization = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{
			"subject": "member@example.com",
			"administrated_permission_groups": ["1"],
			"membered_permission_groups": ["2", "3"]
		}]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-token")
	memberships, err := client.PermissionGroups(context.Background(), "member@example.com")
	require.NoError(t, err)
	require.NotNil(t, memberships)

	assert.Equal(t, "/user-accounts", gotPath)
	assert.Equal(t, "member@example.com", gotQuery)
	assert.Equal(t, "Bearer secret-token", gotAuthorization)
	assert.Equal(t, []string{"1"}, memberships.AdministratedPermissionGroups)
	assert.Equal(t, []string{"2", "3"}, memberships.MemberedPermissionGroups)
}

func TestPermissionGroupsUnknownSubject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	memberships, err := client.PermissionGroups(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, memberships)
}

func TestPermissionGroupsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	memberships, err := client.PermissionGroups(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, memberships)
}

// Failures of the identity service must surface as errors; the decision
// engine treats them as evaluation failures, never as an empty membership.
func TestPermissionGroupsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database down", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.PermissionGroups(context.Background(), "member@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestPermissionGroupsUnreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "")
	_, err := client.PermissionGroups(context.Background(), "member@example.com")
	require.Error(t, err)
}
