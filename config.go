package account

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Config carries every tunable of the account core. It is built once and
// injected at construction; services never reach for ambient globals.
type Config struct {
	// AdminSecret authorizes invite code generation.
	AdminSecret string

	// SigningKey, Issuer and Audience configure the session tokens
	// issued on login.
	SigningKey string
	Issuer     string
	Audience   []string
	SessionTTL time.Duration

	// VerificationBaseURL and ResetBaseURL are the prefixes of the links
	// emailed to users; the token is appended as a query parameter.
	VerificationBaseURL string
	ResetBaseURL        string

	VerificationTokenTTL time.Duration
	ResetTokenTTL        time.Duration
	EmailChangeCooldown  time.Duration
	InviteCodeTTL        time.Duration
	MaintenanceInterval  time.Duration

	// Token sizes are byte counts fed to the generator, not encoded
	// lengths. The verification and reset sizes are deliberately oversized.
	VerificationTokenBytes int
	ResetTokenBytes        int
	UniqueHashBytes        int
	InviteCodeBytes        int

	// AlphaPurpose is the invite purpose that grants alpha access.
	AlphaPurpose string

	Password PasswordPolicy
	Lockout  LockoutPolicy
}

// NewConfig returns a Config populated with the production defaults.
func NewConfig() Config {
	return Config{
		SessionTTL:             24 * time.Hour,
		VerificationTokenTTL:   24 * time.Hour,
		ResetTokenTTL:          2 * time.Hour,
		EmailChangeCooldown:    7 * 24 * time.Hour,
		InviteCodeTTL:          7 * 24 * time.Hour,
		MaintenanceInterval:    10 * time.Minute,
		VerificationTokenBytes: 150,
		ResetTokenBytes:        150,
		UniqueHashBytes:        64,
		InviteCodeBytes:        16,
		AlphaPurpose:           "ALPHA",
		Password:               DefaultPasswordPolicy(),
		Lockout:                DefaultLockoutPolicy(),
	}
}

// Validate checks the fields every service depends on.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.SigningKey, validation.Required),
		validation.Field(&c.VerificationTokenTTL, validation.Required),
		validation.Field(&c.VerificationTokenBytes, validation.Min(150)),
		validation.Field(&c.ResetTokenBytes, validation.Min(150)),
		validation.Field(&c.UniqueHashBytes, validation.Min(64)),
		validation.Field(&c.InviteCodeBytes, validation.Min(16)),
	)
}

// withDefaults fills zero values so a partially built Config behaves.
func (c Config) withDefaults() Config {
	def := NewConfig()
	if c.SessionTTL <= 0 {
		c.SessionTTL = def.SessionTTL
	}
	if c.VerificationTokenTTL <= 0 {
		c.VerificationTokenTTL = def.VerificationTokenTTL
	}
	if c.ResetTokenTTL <= 0 {
		c.ResetTokenTTL = def.ResetTokenTTL
	}
	if c.EmailChangeCooldown <= 0 {
		c.EmailChangeCooldown = def.EmailChangeCooldown
	}
	if c.InviteCodeTTL <= 0 {
		c.InviteCodeTTL = def.InviteCodeTTL
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = def.MaintenanceInterval
	}
	if c.VerificationTokenBytes <= 0 {
		c.VerificationTokenBytes = def.VerificationTokenBytes
	}
	if c.ResetTokenBytes <= 0 {
		c.ResetTokenBytes = def.ResetTokenBytes
	}
	if c.UniqueHashBytes <= 0 {
		c.UniqueHashBytes = def.UniqueHashBytes
	}
	if c.InviteCodeBytes <= 0 {
		c.InviteCodeBytes = def.InviteCodeBytes
	}
	if c.AlphaPurpose == "" {
		c.AlphaPurpose = def.AlphaPurpose
	}
	c.Password = c.Password.normalized()
	c.Lockout = c.Lockout.normalized()
	return c
}
