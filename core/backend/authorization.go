// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/sensorhub/core/access"
	"github.com/relabs-tech/sensorhub/core/logger"
)

// handleAuthorizationRoute adds a route /authorization GET to the router.
//
// The route returns the current user and their permission-group
// memberships for the provided bearer token.
func (b *Backend) handleAuthorizationRoute() {
	rlog := logger.Default()
	rlog.Debugln("authorization")
	rlog.Debugln("  handle route: /authorization GET")

	b.router.HandleFunc("/authorization", func(w http.ResponseWriter, r *http.Request) {
		rlog := logger.FromContext(r.Context())
		rlog.Debugln("called route for", r.URL, r.Method)

		user := access.UserFromContext(r.Context())
		if user == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		response := struct {
			*access.User
			Memberships *access.Memberships `json:"memberships,omitempty"`
		}{User: user}

		if resolver := access.GroupsFromContext(r.Context()); resolver != nil {
			memberships, err := resolver.Lookup(r.Context(), user.Subject)
			if err != nil {
				writeEvaluationError(w, r, err)
				return
			}
			response.Memberships = memberships
		}

		jsonData, _ := json.MarshalIndent(response, "", " ")
		w.Header().Set("Content-Type", "application/json")
		w.Write(jsonData)
	}).Methods(http.MethodOptions, http.MethodGet)
}
