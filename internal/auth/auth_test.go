package auth_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubikal7/ski-jumping-management/internal/auth"
	"github.com/kubikal7/ski-jumping-management/internal/model"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := auth.HashPassword("Hill-Record-142")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	valid, err := auth.VerifyPassword("Hill-Record-142", hash)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = auth.VerifyPassword("hill-record-142", hash)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestHashPasswordUsesFreshSalt(t *testing.T) {
	a, err := auth.HashPassword("same")
	require.NoError(t, err)
	b, err := auth.HashPassword("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	_, err := auth.VerifyPassword("x", "no-separator")
	assert.ErrorContains(t, err, "invalid hash format")

	_, err = auth.VerifyPassword("x", "!!!$AAAA")
	assert.ErrorContains(t, err, "decode salt")
}

func TestJWTIssueAndValidate(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	user := model.User{
		ID:                 42,
		Login:              "kstoch",
		Capabilities:       model.Capabilities{model.CapTrainer, model.CapAthlete},
		MustChangePassword: true,
	}
	token, expiresAt, err := mgr.IssueToken(user)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID())
	assert.Equal(t, "kstoch", claims.Login)
	assert.True(t, claims.Capabilities.Has(model.CapTrainer))
	assert.True(t, claims.MustChangePassword)
}

func TestValidateTokenFromOtherKey(t *testing.T) {
	a, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	b, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	token, _, err := a.IssueToken(model.User{ID: 1, Login: "x"})
	require.NoError(t, err)
	_, err = b.ValidateToken(token)
	assert.Error(t, err)
}

// newTestJWTManagerWithKey writes a real key pair to temp PEM files and
// returns the manager plus the raw private key for forging tokens.
func newTestJWTManagerWithKey(t *testing.T) (*auth.JWTManager, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	dir := t.TempDir()
	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	privPath := filepath.Join(dir, "priv.pem")
	require.NoError(t, os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes}), 0o600))

	pubBytes, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	pubPath := filepath.Join(dir, "pub.pem")
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}), 0o600))

	mgr, err := auth.NewJWTManager(privPath, pubPath, time.Hour)
	require.NoError(t, err)
	return mgr, priv
}

func forgeToken(t *testing.T, privKey ed25519.PrivateKey, claims jwt.Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(privKey)
	require.NoError(t, err)
	return signed
}

func registered(subject, iss string) jwt.RegisteredClaims {
	now := time.Now().UTC()
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    iss,
		Audience:  jwt.ClaimStrings{"skijump"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		ID:        uuid.New().String(),
	}
}

func TestValidateTokenRejectsForgedClaims(t *testing.T) {
	mgr, privKey := newTestJWTManagerWithKey(t)

	cases := []struct {
		name    string
		claims  auth.Claims
		wantErr string
	}{
		{"wrong issuer", auth.Claims{RegisteredClaims: registered("7", "someone-else")}, "invalid issuer"},
		{"empty issuer", auth.Claims{RegisteredClaims: registered("7", "")}, "invalid issuer"},
		{"non-numeric subject", auth.Claims{RegisteredClaims: registered("admin", "skijump")}, "invalid subject"},
		{"zero subject", auth.Claims{RegisteredClaims: registered("0", "skijump")}, "invalid subject"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := mgr.ValidateToken(forgeToken(t, privKey, &tc.claims))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateTokenExpired(t *testing.T) {
	mgr, privKey := newTestJWTManagerWithKey(t)
	rc := registered("7", "skijump")
	rc.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	_, err := mgr.ValidateToken(forgeToken(t, privKey, &auth.Claims{RegisteredClaims: rc}))
	assert.Error(t, err)
}

func TestNewJWTManagerMismatchedKeys(t *testing.T) {
	dir := t.TempDir()
	privPath, _, err := auth.WriteKeyPair(filepath.Join(dir, "a"))
	require.NoError(t, err)
	_, pubPath, err := auth.WriteKeyPair(filepath.Join(dir, "b"))
	require.NoError(t, err)

	_, err = auth.NewJWTManager(privPath, pubPath, time.Hour)
	assert.ErrorContains(t, err, "does not match")
}

func TestWriteKeyPairRoundTrip(t *testing.T) {
	dir := t.TempDir()
	privPath, pubPath, err := auth.WriteKeyPair(dir)
	require.NoError(t, err)

	mgr, err := auth.NewJWTManager(privPath, pubPath, time.Hour)
	require.NoError(t, err)
	token, _, err := mgr.IssueToken(model.User{ID: 3, Login: "z"})
	require.NoError(t, err)
	_, err = mgr.ValidateToken(token)
	require.NoError(t, err)

	_, _, err = auth.WriteKeyPair(dir)
	assert.Error(t, err, "existing keys are never overwritten")
}
