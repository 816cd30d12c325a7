package token

import (
	"fmt"
	"time"

	"github.com/aspirtakis/alekostrader-auth/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Claims is what a credential asserts. License credentials carry the key
// binding; admin credentials carry IsAdmin and Username.
type Claims struct {
	LicenseKey string
	HardwareID string
	Tier       string
	OwnerEmail string

	IsAdmin  bool
	Username string

	IssuedAt  time.Time
	ExpiresAt time.Time
}

type jwtClaims struct {
	LicenseKey string `json:"licenseKey,omitempty"`
	HardwareID string `json:"hardwareId,omitempty"`
	Tier       string `json:"tier,omitempty"`
	OwnerEmail string `json:"ownerEmail,omitempty"`
	IsAdmin    bool   `json:"isAdmin,omitempty"`
	Username   string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 credentials with a shared secret.
type Issuer struct {
	secret []byte
	issuer string
	nowFn  func() time.Time
}

func NewIssuer(secret, issuer string) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, nowFn: time.Now}, nil
}

// WithClock returns a copy of the issuer reading time from nowFn.
func (i *Issuer) WithClock(nowFn func() time.Time) *Issuer {
	cp := *i
	cp.nowFn = nowFn
	return &cp
}

func (i *Issuer) Issue(c Claims, ttl time.Duration) (string, error) {
	now := i.nowFn().UTC()
	subject := c.LicenseKey
	if c.IsAdmin {
		subject = c.Username
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		LicenseKey: c.LicenseKey,
		HardwareID: c.HardwareID,
		Tier:       c.Tier,
		OwnerEmail: c.OwnerEmail,
		IsAdmin:    c.IsAdmin,
		Username:   c.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// Verify returns the claims of a valid token. Expired and malformed tokens
// both yield domain.ErrUnauthorized with a distinguishing message.
func (i *Issuer) Verify(raw string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &jwtClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.nowFn), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, domain.ErrUnauthorized.With("token expired").Wrap(err)
		}
		return Claims{}, domain.ErrUnauthorized.With("invalid token").Wrap(err)
	}

	claims, ok := parsed.Claims.(*jwtClaims)
	if !ok || !parsed.Valid {
		return Claims{}, domain.ErrUnauthorized.With("invalid token claims")
	}

	out := Claims{
		LicenseKey: claims.LicenseKey,
		HardwareID: claims.HardwareID,
		Tier:       claims.Tier,
		OwnerEmail: claims.OwnerEmail,
		IsAdmin:    claims.IsAdmin,
		Username:   claims.Username,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return out, nil
}
