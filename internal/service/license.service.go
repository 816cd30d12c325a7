package service

import (
	"context"
	"strings"
	"time"

	"github.com/aspirtakis/alekostrader-auth/internal/domain"
	"github.com/aspirtakis/alekostrader-auth/internal/infrastructure/token"
	"github.com/aspirtakis/alekostrader-auth/internal/keygen"
	"github.com/aspirtakis/alekostrader-auth/internal/logger"
	"github.com/aspirtakis/alekostrader-auth/internal/repo"
	"github.com/pkg/errors"
)

const (
	maxKeyAttempts  = 10
	maxBindAttempts = 3
)

type KeyGenerator interface {
	Generate() (string, error)
}

type CredentialIssuer interface {
	Issue(claims token.Claims, ttl time.Duration) (string, error)
}

type CreateLicenseInput struct {
	Tier       string
	Price      float64
	OwnerEmail string
	OwnerName  string
	CustomKey  string
	ExpiresAt  *time.Time
}

type ValidationResult struct {
	Valid     bool
	Token     string
	Tier      string
	ExpiresIn time.Duration
	License   *domain.License
}

type LicenseService interface {
	Create(ctx context.Context, in CreateLicenseInput) (*domain.License, error)
	Validate(ctx context.Context, key, hardwareID string) (*ValidationResult, error)
	Get(ctx context.Context, key string) (*domain.License, error)
	Activate(ctx context.Context, key string) error
	Deactivate(ctx context.Context, key string) error
	ResetHardware(ctx context.Context, key string) error
	SetExpiry(ctx context.Context, key string, expiresAt *time.Time) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]domain.License, error)
}

type licenseService struct {
	licenses repo.LicenseRepo
	catalog  *domain.TierCatalog
	keys     KeyGenerator
	creds    CredentialIssuer
	credTTL  time.Duration
	options
}

func NewLicenseService(
	licenses repo.LicenseRepo,
	catalog *domain.TierCatalog,
	keys KeyGenerator,
	creds CredentialIssuer,
	credTTL time.Duration,
	opts ...Option,
) LicenseService {
	return &licenseService{
		licenses: licenses,
		catalog:  catalog,
		keys:     keys,
		creds:    creds,
		credTTL:  credTTL,
		options:  buildOptions("license", opts),
	}
}

func (s *licenseService) Create(ctx context.Context, in CreateLicenseInput) (*domain.License, error) {
	if !s.catalog.Has(in.Tier) {
		return nil, domain.ErrInvalidTier.With("invalid tier, must be one of: " + strings.Join(s.catalog.Tiers(), ", "))
	}

	license := &domain.License{
		Tier:       in.Tier,
		Price:      in.Price,
		OwnerEmail: domain.StringPtr(in.OwnerEmail),
		OwnerName:  domain.StringPtr(in.OwnerName),
		IsActive:   true,
		CreatedAt:  s.now(),
		ExpiresAt:  in.ExpiresAt,
	}

	if in.CustomKey != "" {
		if !keygen.ValidFormat(in.CustomKey) {
			return nil, domain.ErrInvalidFormat.With("invalid custom license key format, must be XXXX-XXXX-XXXX-XXXX")
		}
		license.Key = in.CustomKey
		if err := s.licenses.Create(ctx, license); err != nil {
			return nil, err
		}
		s.log.Info().Str("license_key", logger.MaskKey(license.Key)).Str("tier", license.Tier).Msg("license created")
		return license, nil
	}

	for attempt := 1; attempt <= maxKeyAttempts; attempt++ {
		key, err := s.keys.Generate()
		if err != nil {
			return nil, errors.Wrap(err, "generate license key")
		}
		license.Key = key

		err = s.licenses.Create(ctx, license)
		if err == nil {
			s.log.Info().Str("license_key", logger.MaskKey(key)).Str("tier", license.Tier).Int("attempt", attempt).Msg("license created")
			return license, nil
		}
		if !errors.Is(err, domain.ErrDuplicateKey) {
			return nil, err
		}
		s.log.Warn().Int("attempt", attempt).Msg("generated license key collided, retrying")
	}

	return nil, domain.ErrKeySpaceExhausted
}

func (s *licenseService) Validate(ctx context.Context, key, hardwareID string) (result *ValidationResult, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			if outcome = domain.CodeOf(err); outcome == "" {
				outcome = "error"
			}
		}
		s.metrics.ObserveValidation(outcome)
	}()

	if key == "" || hardwareID == "" {
		return nil, domain.ErrMissingParameter.With("license key and hardware ID required")
	}
	if !keygen.ValidFormat(key) {
		return nil, domain.ErrInvalidFormat
	}

	for attempt := 0; attempt < maxBindAttempts; attempt++ {
		license, err := s.licenses.FindByKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if license == nil {
			return nil, domain.ErrLicenseNotFound
		}
		if !license.IsActive {
			return nil, domain.ErrDeactivated
		}

		now := s.now()
		if license.IsExpired(now) {
			return nil, domain.ErrExpired
		}

		if license.IsBound() {
			if !license.BoundTo(hardwareID) {
				return nil, domain.ErrHardwareMismatch
			}
			if err := s.licenses.TouchLastValidated(ctx, key, now); err != nil {
				s.log.Warn().Err(err).Str("license_key", logger.MaskKey(key)).Msg("failed to record validation time")
			} else {
				license.LastValidatedAt = &now
			}
			return s.issue(license, hardwareID)
		}

		n, err := s.licenses.BindHardwareIfUnbound(ctx, key, hardwareID, now)
		if err != nil {
			return nil, err
		}
		if n == 1 {
			license.HardwareID = &hardwareID
			license.LastValidatedAt = &now
			s.log.Info().Str("license_key", logger.MaskKey(key)).Msg("license bound to device")
			return s.issue(license, hardwareID)
		}

		// Another device bound first, or an admin changed the record; re-read.
		s.log.Debug().Str("license_key", logger.MaskKey(key)).Int("attempt", attempt+1).Msg("hardware bind lost race")
	}

	return nil, errors.Errorf("hardware binding for %s did not settle after %d attempts", logger.MaskKey(key), maxBindAttempts)
}

func (s *licenseService) issue(license *domain.License, hardwareID string) (*ValidationResult, error) {
	signed, err := s.creds.Issue(token.Claims{
		LicenseKey: license.Key,
		HardwareID: hardwareID,
		Tier:       license.Tier,
		OwnerEmail: license.OwnerEmailValue(),
	}, s.credTTL)
	if err != nil {
		return nil, errors.Wrap(err, "issue license credential")
	}
	return &ValidationResult{
		Valid:     true,
		Token:     signed,
		Tier:      license.Tier,
		ExpiresIn: s.credTTL,
		License:   license,
	}, nil
}

func (s *licenseService) Get(ctx context.Context, key string) (*domain.License, error) {
	if key == "" {
		return nil, domain.ErrMissingParameter.With("license key required")
	}
	license, err := s.licenses.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if license == nil {
		return nil, domain.ErrLicenseNotFound
	}
	return license, nil
}

func (s *licenseService) Activate(ctx context.Context, key string) error {
	return s.admin("license activated", key, func() (bool, error) {
		return s.licenses.SetActive(ctx, key, true)
	})
}

func (s *licenseService) Deactivate(ctx context.Context, key string) error {
	return s.admin("license deactivated", key, func() (bool, error) {
		return s.licenses.SetActive(ctx, key, false)
	})
}

func (s *licenseService) ResetHardware(ctx context.Context, key string) error {
	return s.admin("hardware binding reset", key, func() (bool, error) {
		return s.licenses.ResetHardware(ctx, key)
	})
}

func (s *licenseService) SetExpiry(ctx context.Context, key string, expiresAt *time.Time) error {
	return s.admin("license expiry changed", key, func() (bool, error) {
		return s.licenses.SetExpiry(ctx, key, expiresAt)
	})
}

func (s *licenseService) Delete(ctx context.Context, key string) error {
	return s.admin("license deleted", key, func() (bool, error) {
		return s.licenses.Delete(ctx, key)
	})
}

func (s *licenseService) List(ctx context.Context) ([]domain.License, error) {
	return s.licenses.List(ctx)
}

func (s *licenseService) admin(msg, key string, op func() (bool, error)) error {
	if key == "" {
		return domain.ErrMissingParameter.With("license key required")
	}
	found, err := op()
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrLicenseNotFound
	}
	s.log.Info().Str("license_key", logger.MaskKey(key)).Msg(msg)
	return nil
}
