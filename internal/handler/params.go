package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/pkordes/ecopool/backend/internal/domain"
	"github.com/pkordes/ecopool/backend/internal/middleware"
)

// actorID returns the authenticated user. The router only mounts API
// routes behind the authenticator, so a miss means a wiring bug or a test
// calling a handler directly.
func actorID(r *http.Request) (uuid.UUID, error) {
	a, ok := middleware.ActorFrom(r.Context())
	if !ok {
		return uuid.Nil, errUnauthenticated
	}
	return a.ID, nil
}

// pathUUID binds the named chi path parameter as a UUID.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s: %v", domain.ErrValidation, name, err)
	}
	return id, nil
}

// pathCurrency reads the {currency} path parameter. Validity is checked by
// the service.
func pathCurrency(r *http.Request) (domain.Currency, error) {
	var c string
	err := runtime.BindStyledParameterWithOptions("simple", "currency", chi.URLParam(r, "currency"), &c,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return "", fmt.Errorf("%w: invalid currency: %v", domain.ErrValidation, err)
	}
	return domain.Currency(c), nil
}

// queryInt binds an optional integer query parameter. It returns nil when
// the parameter is absent.
func queryInt(r *http.Request, name string) (*int, error) {
	var v *int
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), &v); err != nil {
		return nil, fmt.Errorf("%w: invalid %s: %v", domain.ErrValidation, name, err)
	}
	return v, nil
}

// queryString binds an optional string query parameter.
func queryString(r *http.Request, name string) (string, error) {
	var v *string
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), &v); err != nil {
		return "", fmt.Errorf("%w: invalid %s: %v", domain.ErrValidation, name, err)
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

// decodeJSON decodes the request body into dst. A missing or malformed body
// is a validation error; a body cut off by the size limit maps to 413.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return errBodyTooLarge
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: request body is required", domain.ErrValidation)
		default:
			return fmt.Errorf("%w: malformed JSON body: %v", domain.ErrValidation, err)
		}
	}
	return nil
}
