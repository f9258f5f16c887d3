package account

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Mailer is the outbound email collaborator. Delivery failures are
// non-fatal to callers but are surfaced in the returned error.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) (*DeliveryReceipt, error)
}

// DeliveryReceipt describes an accepted outbound message.
type DeliveryReceipt struct {
	To      string
	Subject string
	SentAt  time.Time
}

// LegacySession is what the legacy identity provider hands back for
// wallet-based SSO logins.
type LegacySession struct {
	SessionToken  string
	UniqueHash    string
	WalletAddress string
}

// LegacyIdentityProvider fronts the third-party wallet-login SSO.
type LegacyIdentityProvider interface {
	Login(ctx context.Context, email, password string) (*LegacySession, error)
}

// OwnershipOracle answers on-chain asset ownership for gated access.
type OwnershipOracle interface {
	HasAsset(ctx context.Context, walletAddress string) (bool, error)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ACCOUNT "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ACCOUNT "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ACCOUNT "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ACCOUNT "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
