package account_test

import (
	"testing"
	"time"

	account "github.com/nbcompany/go-account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := account.NewConfig()

	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 24*time.Hour, cfg.VerificationTokenTTL)
	assert.Equal(t, 2*time.Hour, cfg.ResetTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.EmailChangeCooldown)
	assert.Equal(t, 7*24*time.Hour, cfg.InviteCodeTTL)
	assert.Equal(t, 10*time.Minute, cfg.MaintenanceInterval)
	assert.Equal(t, 150, cfg.VerificationTokenBytes)
	assert.Equal(t, 150, cfg.ResetTokenBytes)
	assert.Equal(t, 64, cfg.UniqueHashBytes)
	assert.Equal(t, 16, cfg.InviteCodeBytes)
	assert.Equal(t, "ALPHA", cfg.AlphaPurpose)
	assert.Equal(t, 8, cfg.Password.MinLength)
	assert.Equal(t, 4, cfg.Lockout.BanThreshold)
	assert.Equal(t, 9, cfg.Lockout.PermanentThreshold)
}

func TestConfigValidate(t *testing.T) {
	cfg := account.NewConfig()
	cfg.SigningKey = "key"
	require.NoError(t, cfg.Validate())

	t.Run("requires signing key", func(t *testing.T) {
		bad := account.NewConfig()
		assert.Error(t, bad.Validate())
	})

	t.Run("rejects undersized tokens", func(t *testing.T) {
		bad := account.NewConfig()
		bad.SigningKey = "key"
		bad.VerificationTokenBytes = 10
		assert.Error(t, bad.Validate())
	})

	t.Run("rejects short unique hash", func(t *testing.T) {
		bad := account.NewConfig()
		bad.SigningKey = "key"
		bad.UniqueHashBytes = 8
		assert.Error(t, bad.Validate())
	})
}
