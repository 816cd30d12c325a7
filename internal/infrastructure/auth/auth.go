package auth

import (
	"crypto/subtle"
	"time"

	"github.com/aspirtakis/alekostrader-auth/internal/domain"
	"github.com/aspirtakis/alekostrader-auth/internal/infrastructure/token"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword produces the value stored in ADMIN_PASSWORD_HASH.
func HashPassword(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("password is required")
	}
	out, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(out), nil
}

// Admin checks the single operator account and issues admin credentials.
type Admin struct {
	username     string
	passwordHash []byte
	issuer       *token.Issuer
	ttl          time.Duration
}

func NewAdmin(username, passwordHash string, issuer *token.Issuer, ttl time.Duration) *Admin {
	return &Admin{
		username:     username,
		passwordHash: []byte(passwordHash),
		issuer:       issuer,
		ttl:          ttl,
	}
}

// Login returns an admin token when the credentials match.
func (a *Admin) Login(username, password string) (string, error) {
	if username == "" || password == "" {
		return "", domain.ErrMissingParameter.With("username and password are required")
	}
	if len(a.passwordHash) == 0 {
		return "", domain.ErrUnauthorized.With("admin login is not configured")
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		return "", domain.ErrUnauthorized.With("invalid credentials")
	}

	return a.issuer.Issue(token.Claims{IsAdmin: true, Username: a.username}, a.ttl)
}

// Authorize is the boolean decision taken before every administrative operation.
func (a *Admin) Authorize(raw string) (token.Claims, error) {
	if raw == "" {
		return token.Claims{}, domain.ErrUnauthorized.With("missing admin token")
	}
	claims, err := a.issuer.Verify(raw)
	if err != nil {
		return token.Claims{}, err
	}
	if !claims.IsAdmin {
		return token.Claims{}, domain.ErrUnauthorized.With("admin access required")
	}
	return claims, nil
}
