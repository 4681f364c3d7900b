/*Package idl provides the client for the external identity service that
owns permission groups and their members. The catalogue asks it one
question: which permission groups does a given subject administrate or
belong to.
*/
package idl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/sensorhub/core/access"
)

// Client talks to the identity service. It implements access.GroupService.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the identity service at baseURL. The
// token is sent as bearer authorization on every request; it may be empty
// for deployments where the service is reachable on a trusted network only.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// userAccount is the wire format of the identity service
type userAccount struct {
	Subject                       string   `json:"subject"`
	AdministratedPermissionGroups []string `json:"administrated_permission_groups"`
	MemberedPermissionGroups      []string `json:"membered_permission_groups"`
}

// PermissionGroups fetches the permission-group memberships for the
// subject. It returns nil without error when the identity service does not
// know the subject. Any transport or protocol failure is returned as an
// error; the caller decides what a failed lookup means.
func (c *Client) PermissionGroups(ctx context.Context, subject string) (*access.Memberships, error) {
	u := c.baseURL + "/user-accounts?subject=" + url.QueryEscape(subject)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity service unreachable: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("identity service returned status %d: %s", res.StatusCode, string(body))
	}

	// the service answers with a list; an empty list means unknown subject
	var accounts []userAccount
	decoder := json.NewDecoder(res.Body)
	if err := decoder.Decode(&accounts); err != nil {
		return nil, fmt.Errorf("cannot decode identity service response: %w", err)
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	account := accounts[0]
	return &access.Memberships{
		AdministratedPermissionGroups: account.AdministratedPermissionGroups,
		MemberedPermissionGroups:      account.MemberedPermissionGroups,
	}, nil
}
