package domain

import (
	"time"
)

// License is the durable record of an issued key and its device binding.
type License struct {
	ID              int64      `json:"id"`
	Key             string     `json:"licenseKey"`
	Tier            string     `json:"tier"`
	Price           float64    `json:"price"`
	HardwareID      *string    `json:"hardwareId"`
	OwnerEmail      *string    `json:"ownerEmail,omitempty"`
	OwnerName       *string    `json:"ownerName,omitempty"`
	IsActive        bool       `json:"isActive"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastValidatedAt *time.Time `json:"lastValidatedAt,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
}

// IsBound reports whether a device has claimed the license.
func (l *License) IsBound() bool {
	return l.HardwareID != nil && *l.HardwareID != ""
}

// BoundTo reports whether the license is bound to hardwareID.
func (l *License) BoundTo(hardwareID string) bool {
	return l.IsBound() && *l.HardwareID == hardwareID
}

// IsExpired is inclusive: a license whose expiry equals now is expired.
func (l *License) IsExpired(now time.Time) bool {
	if l.ExpiresAt == nil {
		return false
	}
	return !now.Before(*l.ExpiresAt)
}

func (l *License) OwnerEmailValue() string {
	if l.OwnerEmail == nil {
		return ""
	}
	return *l.OwnerEmail
}

// StringPtr returns nil for blank strings so optional columns stay NULL.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
