package identity

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "valid", header: "Bearer abc.def", want: "abc.def"},
		{name: "case insensitive scheme", header: "bearer abc", want: "abc"},
		{name: "missing", header: "", wantErr: true},
		{name: "basic auth", header: "Basic dXNlcjpwYXNz", wantErr: true},
		{name: "no token", header: "Bearer ", wantErr: true},
		{name: "no space", header: "Bearerabc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, err := BearerToken(req)
			if tt.wantErr {
				assert.ErrorIs(t, err, rbac.ErrUnauthenticated)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewJWTAuthenticator_ShortSecret(t *testing.T) {
	_, err := NewJWTAuthenticator("short", "")
	assert.Error(t, err)
}

func TestJWTAuthenticator_RoundTrip(t *testing.T) {
	auth, err := NewJWTAuthenticator(testSecret, "tenantguard")
	require.NoError(t, err)

	token, err := auth.Issue("user_alice", "alice@acme.test", time.Hour)
	require.NoError(t, err)

	id, err := auth.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user_alice", id.Subject)
	assert.Equal(t, "alice@acme.test", id.Email)
}

func TestJWTAuthenticator_Rejects(t *testing.T) {
	auth, err := NewJWTAuthenticator(testSecret, "tenantguard")
	require.NoError(t, err)
	now := time.Now()

	sign := func(method jwt.SigningMethod, key interface{}, claims jwt.Claims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{
			name: "expired",
			token: sign(jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
				Subject: "user_alice", Issuer: "tenantguard",
				ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
			}),
		},
		{
			name: "no expiry",
			token: sign(jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
				Subject: "user_alice", Issuer: "tenantguard",
			}),
		},
		{
			name: "wrong issuer",
			token: sign(jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
				Subject: "user_alice", Issuer: "elsewhere",
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			}),
		},
		{
			name: "wrong secret",
			token: sign(jwt.SigningMethodHS256, []byte("ffffffffffffffffffffffffffffffff"), jwt.RegisteredClaims{
				Subject: "user_alice", Issuer: "tenantguard",
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			}),
		},
		{
			name: "rsa signed",
			token: sign(jwt.SigningMethodRS256, otherKey, jwt.RegisteredClaims{
				Subject: "user_alice", Issuer: "tenantguard",
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			}),
		},
		{
			name: "no subject",
			token: sign(jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
				Issuer:    "tenantguard",
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			}),
		},
		{name: "garbage", token: "not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := auth.Authenticate(context.Background(), tt.token)
			assert.Nil(t, id)
			assert.ErrorIs(t, err, rbac.ErrUnauthenticated)
		})
	}
}

func TestOIDCAuthenticator(t *testing.T) {
	const issuer = "https://idp.acme.test"
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	auth := NewOIDCAuthenticatorWithKeySet(issuer, "tenantguard-api", &oidc.StaticKeySet{
		PublicKeys: []crypto.PublicKey{&key.PublicKey},
	})

	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	exp := time.Now().Add(time.Hour).Unix()

	t.Run("valid", func(t *testing.T) {
		token := sign(jwt.MapClaims{
			"iss": issuer, "aud": "tenantguard-api", "sub": "user_bob",
			"email": "bob@acme.test", "exp": exp, "iat": time.Now().Unix(),
		})
		id, err := auth.Authenticate(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "user_bob", id.Subject)
		assert.Equal(t, "bob@acme.test", id.Email)
	})

	t.Run("wrong audience", func(t *testing.T) {
		token := sign(jwt.MapClaims{"iss": issuer, "aud": "other", "sub": "user_bob", "exp": exp})
		_, err := auth.Authenticate(context.Background(), token)
		assert.ErrorIs(t, err, rbac.ErrUnauthenticated)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token := sign(jwt.MapClaims{"iss": "https://evil.test", "aud": "tenantguard-api", "sub": "user_bob", "exp": exp})
		_, err := auth.Authenticate(context.Background(), token)
		assert.ErrorIs(t, err, rbac.ErrUnauthenticated)
	})

	t.Run("expired", func(t *testing.T) {
		token := sign(jwt.MapClaims{
			"iss": issuer, "aud": "tenantguard-api", "sub": "user_bob",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		_, err := auth.Authenticate(context.Background(), token)
		assert.ErrorIs(t, err, rbac.ErrUnauthenticated)
	})

	t.Run("unknown key", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"iss": issuer, "aud": "tenantguard-api", "sub": "user_bob", "exp": exp,
		}).SignedString(other)
		require.NoError(t, err)

		_, err = auth.Authenticate(context.Background(), token)
		assert.ErrorIs(t, err, rbac.ErrUnauthenticated)
	})
}
