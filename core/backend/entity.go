// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/sensorhub/core"
	"github.com/relabs-tech/sensorhub/core/access"
	"github.com/relabs-tech/sensorhub/core/catalog"
	"github.com/relabs-tech/sensorhub/core/logger"
	"github.com/relabs-tech/sensorhub/core/precondition"
)

// entityRoutes bundles everything the generic handlers need for one
// catalogue resource.
type entityRoutes struct {
	view                 access.Permissions
	archive              access.Permissions
	restore              access.Permissions
	archivePreconditions precondition.Precondition
	load                 func(ctx context.Context, id uuid.UUID) (access.Entity, error)
	setArchived          func(ctx context.Context, id uuid.UUID, archived bool) error
}

func (b *Backend) handleEntityRoutes(rc resourceConfiguration, routes entityRoutes) {
	rlog := logger.Default()
	this := rc.Resource
	prefix := "/" + plural(this)
	idParam := "{" + this + "_id}"

	rlog.Debugln(this)
	rlog.Debugln("  handle route:", prefix+"/"+idParam, "GET")
	b.router.HandleFunc(prefix+"/"+idParam, func(w http.ResponseWriter, r *http.Request) {
		b.getWithAuth(w, r, this, routes)
	}).Methods(http.MethodOptions, http.MethodGet)

	rlog.Debugln("  handle route:", prefix+"/"+idParam+"/archive", "POST")
	b.router.HandleFunc(prefix+"/"+idParam+"/archive", func(w http.ResponseWriter, r *http.Request) {
		b.archiveWithAuth(w, r, this, routes.archive, routes.archivePreconditions, routes.load, routes.setArchived, true)
	}).Methods(http.MethodOptions, http.MethodPost)

	rlog.Debugln("  handle route:", prefix+"/"+idParam+"/restore", "POST")
	b.router.HandleFunc(prefix+"/"+idParam+"/restore", func(w http.ResponseWriter, r *http.Request) {
		b.archiveWithAuth(w, r, this, routes.restore, nil, routes.load, routes.setArchived, false)
	}).Methods(http.MethodOptions, http.MethodPost)

	if rc.WithAttachments && b.attachments != nil {
		b.handleAttachmentRoutes(rc, routes)
	}
}

// entityID extracts the {resource}_id route parameter.
func entityID(r *http.Request, this string) (uuid.UUID, bool) {
	params := mux.Vars(r)
	id, err := uuid.Parse(params[this+"_id"])
	return id, err == nil
}

// writeEvaluationError reports a failed rule evaluation. Permission rules
// only fail when the identity service cannot be reached; the failure is
// the caller's problem, not a denial.
func writeEvaluationError(w http.ResponseWriter, r *http.Request, err error) {
	logger.FromContext(r.Context()).WithError(err).Errorln("cannot evaluate permissions")
	http.Error(w, "cannot evaluate permissions", http.StatusBadGateway)
}

func (b *Backend) getWithAuth(w http.ResponseWriter, r *http.Request, this string, routes entityRoutes) {
	rlog := logger.FromContext(r.Context())
	rlog.Debugln("called route for", r.URL, r.Method)

	id, ok := entityID(r, this)
	if !ok {
		http.Error(w, "invalid uuid", http.StatusBadRequest)
		return
	}

	object, err := routes.load(r.Context(), id)
	if _, ok := err.(catalog.ErrNotFound); ok {
		http.Error(w, "no such "+this, http.StatusNotFound)
		return
	}
	if err != nil {
		rlog.WithError(err).Errorln("Error 4721: cannot load", this)
		http.Error(w, "Error 4721", http.StatusInternalServerError)
		return
	}

	granted, err := routes.view.HasObjectPermission(r.Context(), object)
	if err != nil {
		writeEvaluationError(w, r, err)
		return
	}
	if !granted {
		if access.UserFromContext(r.Context()) == nil {
			http.Error(w, "not authorized", http.StatusUnauthorized)
		} else {
			http.Error(w, "access denied", http.StatusForbidden)
		}
		return
	}

	jsonData, err := json.Marshal(object)
	if err != nil {
		rlog.WithError(err).Errorln("Error 4722: cannot marshal", this)
		http.Error(w, "Error 4722", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(jsonData)
}

func (b *Backend) archiveWithAuth(w http.ResponseWriter, r *http.Request, this string,
	permissions access.Permissions, preconditions precondition.Precondition,
	load func(ctx context.Context, id uuid.UUID) (access.Entity, error),
	setArchived func(ctx context.Context, id uuid.UUID, archived bool) error,
	archived bool) {

	rlog := logger.FromContext(r.Context())
	rlog.Debugln("called route for", r.URL, r.Method)

	granted, err := permissions.HasPermission(r.Context())
	if err != nil {
		writeEvaluationError(w, r, err)
		return
	}
	if !granted {
		http.Error(w, "not authorized", http.StatusUnauthorized)
		return
	}

	id, ok := entityID(r, this)
	if !ok {
		http.Error(w, "invalid uuid", http.StatusBadRequest)
		return
	}

	object, err := load(r.Context(), id)
	if _, ok := err.(catalog.ErrNotFound); ok {
		http.Error(w, "no such "+this, http.StatusNotFound)
		return
	}
	if err != nil {
		rlog.WithError(err).Errorln("Error 4731: cannot load", this)
		http.Error(w, "Error 4731", http.StatusInternalServerError)
		return
	}

	granted, err = permissions.HasObjectPermission(r.Context(), object)
	if err != nil {
		writeEvaluationError(w, r, err)
		return
	}
	if !granted {
		http.Error(w, "access denied", http.StatusForbidden)
		return
	}

	if preconditions != nil {
		conflict, err := preconditions.ViolatedBy(r.Context(), id)
		if err != nil {
			rlog.WithError(err).Errorln("Error 4732: cannot check preconditions for", this)
			http.Error(w, "Error 4732", http.StatusInternalServerError)
			return
		}
		if conflict != nil {
			http.Error(w, conflict.Message, http.StatusConflict)
			return
		}
	}

	err = setArchived(r.Context(), id, archived)
	if _, ok := err.(catalog.ErrNotFound); ok {
		http.Error(w, "no such "+this, http.StatusNotFound)
		return
	}
	if err != nil {
		rlog.WithError(err).Errorln("Error 4733: cannot update", this)
		http.Error(w, "Error 4733", http.StatusInternalServerError)
		return
	}

	operation := core.OperationRestore
	if archived {
		operation = core.OperationArchive
	}

	// notify with the mutated entity, not the snapshot loaded for the
	// permission check
	object, err = load(r.Context(), id)
	if err != nil {
		rlog.WithError(err).Errorln("Error 4734: cannot reload", this, "for notification")
	} else if payload, err := json.Marshal(object); err != nil {
		rlog.WithError(err).Errorln("Error 4735: cannot marshal", this, "for notification")
	} else {
		b.notify(this, operation, payload)
	}

	w.WriteHeader(http.StatusNoContent)
}
