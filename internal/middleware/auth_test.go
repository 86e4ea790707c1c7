package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/ecopool/backend/internal/middleware"
)

var testSecret = []byte("test-secret")

// actorEcho writes the actor id and role found in the request context.
var actorEcho = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	a, ok := middleware.ActorFrom(r.Context())
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	_, _ = w.Write([]byte(a.ID.String() + " " + a.Role))
})

func serveWithToken(h http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/wallets/points", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticator_ValidToken_SetsActor(t *testing.T) {
	auth := middleware.NewAuthenticator(testSecret)
	id := uuid.New()
	token, err := auth.Issue(id, "commuter", time.Hour)
	require.NoError(t, err)

	rec := serveWithToken(auth.Middleware(actorEcho), "Bearer "+token)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id.String()+" commuter", rec.Body.String())
}

func TestAuthenticator_Rejects(t *testing.T) {
	auth := middleware.NewAuthenticator(testSecret)
	other := middleware.NewAuthenticator([]byte("someone-else"))
	id := uuid.New()

	expired, err := auth.Issue(id, "", -time.Hour)
	require.NoError(t, err)
	foreign, err := other.Issue(id, "", time.Hour)
	require.NoError(t, err)
	notAUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "driver-7"}).SignedString(testSecret)
	require.NoError(t, err)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: id.String()}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"missing header":   "",
		"wrong scheme":     "Basic abc",
		"garbage":          "Bearer not-a-jwt",
		"expired":          "Bearer " + expired,
		"other secret":     "Bearer " + foreign,
		"subject not uuid": "Bearer " + notAUser,
		"alg none":         "Bearer " + unsigned,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			rec := serveWithToken(auth.Middleware(actorEcho), header)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), `"code":"unauthorized"`)
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	auth := middleware.NewAuthenticator(testSecret)
	h := auth.Middleware(middleware.RequireAdmin(actorEcho))

	admin, err := auth.Issue(uuid.New(), middleware.RoleAdmin, time.Hour)
	require.NoError(t, err)
	commuter, err := auth.Issue(uuid.New(), "commuter", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, serveWithToken(h, "Bearer "+admin).Code)

	rec := serveWithToken(h, "Bearer "+commuter)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"forbidden"`)

	// Without the authenticator in front there is no actor at all.
	assert.Equal(t, http.StatusUnauthorized, serveWithToken(middleware.RequireAdmin(actorEcho), "").Code)
}
