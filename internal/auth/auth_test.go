package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-checkin/internal/models"
)

var testRoles = RoleConfig{Admin: "admin", Service: "service"}

func signed(t *testing.T, v *HMACVerifier, claims Claims) string {
	t.Helper()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	require.NoError(t, err)
	return token
}

func TestExtractTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := ExtractTokenFromRequest(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "Bearer abc")
	token, err := ExtractTokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	r.Header.Set("Authorization", "Basic abc")
	_, err = ExtractTokenFromRequest(r)
	assert.Error(t, err)

	sse := httptest.NewRequest(http.MethodGet, "/stream?access_token=xyz", nil)
	token, err = ExtractTokenFromRequest(sse)
	require.NoError(t, err)
	assert.Equal(t, "xyz", token)
}

func TestClaimsIdentity(t *testing.T) {
	c := Claims{
		WalletAddress:   "0xABC",
		WalletAddresses: []string{"0xdef", "0xabc", ""},
		Roles:           []string{"service"},
	}
	c.Subject = "user-1"
	c.RealmAccess.Roles = []string{"admin"}

	assert.Equal(t, models.Identity{
		UserID:    "user-1",
		Addresses: []string{"0xabc", "0xdef"},
		Admin:     true,
		Service:   true,
	}, c.Identity(testRoles))

	plain := Claims{}
	id := plain.Identity(testRoles)
	assert.False(t, id.Admin)
	assert.False(t, id.Service)
	assert.Empty(t, id.Addresses)
}

func TestHMACVerifier(t *testing.T) {
	v := NewHMACVerifier("secret")
	ctx := context.Background()

	claims, err := v.Verify(ctx, signed(t, v, Claims{WalletAddress: "0xa"}))
	require.NoError(t, err)
	assert.Equal(t, "0xa", claims.WalletAddress)

	_, err = v.Verify(ctx, signed(t, NewHMACVerifier("other"), Claims{}))
	assert.Error(t, err, "wrong key")

	expired := Claims{}
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	_, err = v.Verify(ctx, signed(t, v, expired))
	assert.Error(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Verify(ctx, none)
	assert.Error(t, err)
}

func TestNewVerifierNeedsConfiguration(t *testing.T) {
	_, err := NewVerifier(context.Background(), "", "")
	assert.Error(t, err)

	v, err := NewVerifier(context.Background(), "", "secret")
	require.NoError(t, err)
	assert.IsType(t, &HMACVerifier{}, v)
}

func TestMiddleware(t *testing.T) {
	v := NewHMACVerifier("secret")
	var seen models.Identity
	handler := Middleware(v, testRoles, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c := Claims{WalletAddress: "0xWallet", Roles: []string{"admin"}}
	c.Subject = "user-9"
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed(t, v, c))
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "user-9", seen.UserID)
	assert.Equal(t, []string{"0xwallet"}, seen.Addresses)
	assert.True(t, seen.Admin)
}

func TestUserID(t *testing.T) {
	assert.Empty(t, UserID(context.Background()))
	ctx := WithIdentity(context.Background(), models.Identity{UserID: "u"})
	assert.Equal(t, "u", UserID(ctx))
}
