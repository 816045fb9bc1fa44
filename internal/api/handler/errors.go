package handler

import (
	"net/http"

	"github.com/mcoot/playerhub/internal/api/apierr"
)

// NotFound handles unmatched routes
func NotFound(w http.ResponseWriter, _ *http.Request) {
	apierr.WriteError(w, apierr.NewNotFoundError())
}

// MethodNotAllowed handles routes matched with the wrong method
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	apierr.WriteError(w, apierr.NewMethodNotAllowedError())
}
