package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/watchpoints/points-engine/api/middleware"
	pkgerrors "github.com/watchpoints/points-engine/pkg/errors"
)

// currentUserID returns the authenticated caller. The engine trusts the id
// the auth middleware placed on the context and nothing from the body.
func currentUserID(r *http.Request) (uuid.UUID, error) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return caller.UserID, nil
}
