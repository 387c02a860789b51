package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/partnerledger-backend/pkg/auth"
	"github.com/angelmondragon/partnerledger-backend/pkg/config"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestAuthRejectsMissingAndInvalidTokens(t *testing.T) {
	handler := Auth(testJWT, stubSessionVerifier{ok: true}, nil)(okHandler())

	for _, header := range []string{"", "Bearer invalid"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401 got %d", header, resp.Code)
		}
	}
}

func TestAuthSeedsActor(t *testing.T) {
	userID := uuid.New()
	token := mintTestToken(t, userID, enums.ActorRoleReviewer)

	var gotID uuid.UUID
	var gotRole enums.ActorRole
	handler := Auth(testJWT, stubSessionVerifier{ok: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = ActorIDFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if gotID != userID || gotRole != enums.ActorRoleReviewer {
		t.Fatalf("unexpected actor %s/%s", gotID, gotRole)
	}
}

func TestAuthChecksSession(t *testing.T) {
	token := mintTestToken(t, uuid.New(), enums.ActorRoleAdmin)
	cases := map[string]struct {
		verifier stubSessionVerifier
		want     int
	}{
		"revoked":    {stubSessionVerifier{ok: false}, http.StatusUnauthorized},
		"redis down": {stubSessionVerifier{err: errors.New("dial tcp")}, http.StatusServiceUnavailable},
		"live":       {stubSessionVerifier{ok: true}, http.StatusOK},
	}
	for name, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "bearer "+token)
		resp := httptest.NewRecorder()
		Auth(testJWT, tc.verifier, nil)(okHandler()).ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("%s: expected %d got %d", name, tc.want, resp.Code)
		}
	}
}

func TestRequireRole(t *testing.T) {
	gate := RequireRole(nil, enums.ActorRoleAdmin, enums.ActorRoleReviewer)(okHandler())
	cases := map[enums.ActorRole]int{
		enums.ActorRoleAdmin:    http.StatusOK,
		enums.ActorRoleReviewer: http.StatusOK,
		enums.ActorRoleMember:   http.StatusForbidden,
		"":                      http.StatusForbidden,
	}
	for role, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithActor(req.Context(), uuid.NewString(), role))
		resp := httptest.NewRecorder()
		gate.ServeHTTP(resp, req)
		if resp.Code != want {
			t.Fatalf("role %q: expected %d got %d", role, want, resp.Code)
		}
	}
}

func mintTestToken(t *testing.T, userID uuid.UUID, role enums.ActorRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(testJWT, time.Now(), auth.AccessTokenPayload{
		UserID: userID,
		Role:   role,
		JTI:    uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

type stubSessionVerifier struct {
	ok  bool
	err error
}

func (s stubSessionVerifier) HasSession(context.Context, string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.ok, nil
}
