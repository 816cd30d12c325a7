package auth

import (
	"testing"
	"time"

	"github.com/aspirtakis/alekostrader-auth/internal/domain"
	"github.com/aspirtakis/alekostrader-auth/internal/infrastructure/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newAdmin(t *testing.T) (*Admin, *token.Issuer) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	require.NoError(t, err)
	issuer, err := token.NewIssuer("secret", "licensed")
	require.NoError(t, err)
	return NewAdmin("admin", string(hash), issuer, 30*time.Minute), issuer
}

func TestAdmin_Login(t *testing.T) {
	admin, _ := newAdmin(t)

	raw, err := admin.Login("admin", "hunter22")
	require.NoError(t, err)

	claims, err := admin.Authorize(raw)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)
	assert.Equal(t, "admin", claims.Username)

	_, err = admin.Login("admin", "wrong")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = admin.Login("root", "hunter22")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = admin.Login("", "")
	assert.ErrorIs(t, err, domain.ErrMissingParameter)
}

func TestAdmin_LoginNotConfigured(t *testing.T) {
	issuer, err := token.NewIssuer("secret", "licensed")
	require.NoError(t, err)

	_, err = NewAdmin("admin", "", issuer, time.Minute).Login("admin", "anything")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAdmin_AuthorizeRejectsLicenseTokens(t *testing.T) {
	admin, issuer := newAdmin(t)

	licenseToken, err := issuer.Issue(token.Claims{LicenseKey: "AAAA-BBBB-CCCC-DDDD", HardwareID: "HW-A"}, time.Minute)
	require.NoError(t, err)

	_, err = admin.Authorize(licenseToken)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = admin.Authorize("")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))

	_, err = HashPassword("")
	assert.Error(t, err)
}
