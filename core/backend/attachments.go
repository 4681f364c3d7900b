// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"bytes"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/sensorhub/attachments"
	"github.com/relabs-tech/sensorhub/core/access"
	"github.com/relabs-tech/sensorhub/core/catalog"
	"github.com/relabs-tech/sensorhub/core/logger"
)

// handleAttachmentRoutes adds the attachment upload and download routes
// for one resource. Downloads follow the read-visibility rules; uploads
// follow the manage rules and are rejected for archived entities.
func (b *Backend) handleAttachmentRoutes(rc resourceConfiguration, routes entityRoutes) {
	rlog := logger.Default()
	this := rc.Resource
	route := "/" + plural(this) + "/{" + this + "_id}/attachments/{name}"

	rlog.Debugln("  handle route:", route, "GET")
	rlog.Debugln("  handle route:", route, "PUT")

	b.router.HandleFunc(route, func(w http.ResponseWriter, r *http.Request) {
		b.downloadAttachment(w, r, this, routes)
	}).Methods(http.MethodOptions, http.MethodGet)

	b.router.HandleFunc(route, func(w http.ResponseWriter, r *http.Request) {
		b.uploadAttachment(w, r, this, routes)
	}).Methods(http.MethodOptions, http.MethodPut)
}

func attachmentKey(this string, id, name string) string {
	return this + "/" + id + "/" + name
}

func (b *Backend) downloadAttachment(w http.ResponseWriter, r *http.Request, this string, routes entityRoutes) {
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
		rlog.WithError(err).Errorln("Error 4741: cannot load", this)
		http.Error(w, "Error 4741", http.StatusInternalServerError)
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

	// buffered so the content type is known before the first body byte
	var buffer bytes.Buffer
	name := mux.Vars(r)["name"]
	contentType, err := b.attachments.Download(r.Context(), attachmentKey(this, id.String(), name), &buffer)
	if err == attachments.ErrNotExist {
		http.Error(w, "no such attachment", http.StatusNotFound)
		return
	}
	if err != nil {
		rlog.WithError(err).Errorln("Error 4742: cannot download attachment", name)
		http.Error(w, "Error 4742", http.StatusInternalServerError)
		return
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Write(buffer.Bytes())
}

func (b *Backend) uploadAttachment(w http.ResponseWriter, r *http.Request, this string, routes entityRoutes) {
	rlog := logger.FromContext(r.Context())
	rlog.Debugln("called route for", r.URL, r.Method)

	granted, err := routes.archive.HasPermission(r.Context())
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

	object, err := routes.load(r.Context(), id)
	if _, ok := err.(catalog.ErrNotFound); ok {
		http.Error(w, "no such "+this, http.StatusNotFound)
		return
	}
	if err != nil {
		rlog.WithError(err).Errorln("Error 4743: cannot load", this)
		http.Error(w, "Error 4743", http.StatusInternalServerError)
		return
	}

	granted, err = routes.archive.HasObjectPermission(r.Context(), object)
	if err != nil {
		writeEvaluationError(w, r, err)
		return
	}
	if !granted {
		http.Error(w, "access denied", http.StatusForbidden)
		return
	}

	if archivable, ok := object.(interface{ IsArchived() bool }); ok && archivable.IsArchived() {
		http.Error(w, this+" is archived", http.StatusConflict)
		return
	}

	name := mux.Vars(r)["name"]
	err = b.attachments.Upload(r.Context(), attachmentKey(this, id.String(), name), r.Header.Get("Content-Type"), r.Body)
	if err != nil {
		rlog.WithError(err).Errorln("Error 4744: cannot upload attachment", name)
		http.Error(w, "Error 4744", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
