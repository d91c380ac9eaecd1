package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func keys(t *testing.T) (*Signer, *BaseValidator) {
	t.Helper()
	privPEM, pubPEM, err := GenerateEphemeralKeys()
	require.NoError(t, err)
	priv, err := ParseRSAPrivateKey(privPEM)
	require.NoError(t, err)
	pub, err := ParseRSAPublicKey(pubPEM)
	require.NoError(t, err)
	return NewSigner(priv, time.Hour), NewBaseValidator(pub)
}

func TestIssueAndVerify(t *testing.T) {
	signer, v := keys(t)
	tok, err := signer.Issue(&domain.User{ID: "u1", Username: "jane", Scopes: map[string]bool{"admin": true}})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, int64(3600), tok.ExpiresIn)

	claims, err := v.VerifyToken("Bearer " + tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.True(t, claims.HasScope(domain.ScopeAdmin))
}

func TestVerifyRejectsForeignAndExpiredTokens(t *testing.T) {
	signer, _ := keys(t)
	_, otherValidator := keys(t)

	tok, err := signer.Issue(&domain.User{ID: "u1"})
	require.NoError(t, err)
	_, err = otherValidator.VerifyToken(tok.AccessToken)
	assert.Error(t, err)

	signer2, v2 := keys(t)
	signer2.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, err = signer2.Issue(&domain.User{ID: "u1"})
	require.NoError(t, err)
	_, err = v2.VerifyToken(tok.AccessToken)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	signer, v := keys(t)
	var seen string
	h := NewMiddleware(v, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/policies", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err := signer.Issue(&domain.User{ID: "u7"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/v1/policies", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u7", seen)
}

func TestRequireScope(t *testing.T) {
	h := RequireScope(domain.ScopeAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/v1/audit", nil)
	req = req.WithContext(WithClaims(req.Context(), &domain.CustomClaims{UserID: "u1"}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = req.WithContext(WithClaims(req.Context(), &domain.CustomClaims{UserID: "u1", Scopes: map[string]bool{"admin": true}}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
