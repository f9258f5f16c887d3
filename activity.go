package account

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventRegistered       ActivityEventType = "account.registered"
	ActivityEventVerified         ActivityEventType = "account.verified"
	ActivityEventLoginSuccess     ActivityEventType = "account.login.success"
	ActivityEventLoginFailure     ActivityEventType = "account.login.failure"
	ActivityEventTempBanned       ActivityEventType = "account.login.temp_banned"
	ActivityEventPermanentBanned  ActivityEventType = "account.login.permanent_banned"
	ActivityEventBanLifted        ActivityEventType = "account.login.ban_lifted"
	ActivityEventPasswordChanged  ActivityEventType = "account.password.changed"
	ActivityEventPasswordReset    ActivityEventType = "account.password.reset"
	ActivityEventEmailChangeBegun ActivityEventType = "account.email.change_begun"
	ActivityEventEmailChanged     ActivityEventType = "account.email.changed"
	ActivityEventWalletLinked     ActivityEventType = "account.wallet.linked"
	ActivityEventInviteGenerated  ActivityEventType = "invite.generated"
	ActivityEventInviteRedeemed   ActivityEventType = "invite.redeemed"
	ActivityEventAccountPurged    ActivityEventType = "account.purged"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
