package account

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// LockoutPolicy controls how failed logins escalate into bans.
type LockoutPolicy struct {
	// BanThreshold is the failed attempt count at which temporary bans
	// start. PermanentThreshold is the count at which the account locks
	// for good.
	BanThreshold       int
	PermanentThreshold int
	// BaseBanDuration is the first temporary ban; each further failure
	// adds BanStep on top.
	BaseBanDuration time.Duration
	BanStep         time.Duration
}

// DefaultLockoutPolicy returns the stock escalation ladder: bans start
// on the 4th failure at 30 minutes, grow by 30 minutes per failure, and
// the 9th failure locks the account permanently.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		BanThreshold:       4,
		PermanentThreshold: 9,
		BaseBanDuration:    30 * time.Minute,
		BanStep:            30 * time.Minute,
	}
}

func (p LockoutPolicy) normalized() LockoutPolicy {
	def := DefaultLockoutPolicy()
	if p.BanThreshold <= 0 {
		p.BanThreshold = def.BanThreshold
	}
	if p.PermanentThreshold <= p.BanThreshold {
		p.PermanentThreshold = def.PermanentThreshold
	}
	if p.BaseBanDuration <= 0 {
		p.BaseBanDuration = def.BaseBanDuration
	}
	if p.BanStep <= 0 {
		p.BanStep = def.BanStep
	}
	return p
}

// BanDuration returns the temporary ban length for the given failed
// attempt count. Counts below the threshold carry no ban.
func (p LockoutPolicy) BanDuration(count int) time.Duration {
	if count < p.BanThreshold {
		return 0
	}
	return p.BaseBanDuration + time.Duration(count-p.BanThreshold)*p.BanStep
}

// LockoutMachine escalates failed logins and heals expired bans. All
// writes go through a compare-and-set on the attempt counter so two
// concurrent failures never both advance the ladder.
type LockoutMachine interface {
	// Gate rejects the login attempt up front when the account is under
	// an active ban. An expired temporary ban passes the gate.
	Gate(ctx context.Context, user *User) error
	// RecordFailure bumps the attempt counter and returns the typed error
	// the caller should surface: a remaining-attempts warning, a
	// temporary ban, or the permanent ban.
	RecordFailure(ctx context.Context, user *User) error
	// RecordSuccess resets the counter and lifts any expired temporary ban.
	RecordSuccess(ctx context.Context, user *User) error
}

// LockoutOption customizes lockout machine construction.
type LockoutOption func(*lockoutMachine)

// WithLockoutClock injects a custom clock (useful for tests).
func WithLockoutClock(clock func() time.Time) LockoutOption {
	return func(m *lockoutMachine) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithLockoutActivitySink sets the ActivitySink used to publish lockout events.
func WithLockoutActivitySink(sink ActivitySink) LockoutOption {
	return func(m *lockoutMachine) {
		m.activitySink = normalizeActivitySink(sink)
	}
}

// WithLockoutLogger overrides the logger used for sink failures.
func WithLockoutLogger(logger Logger) LockoutOption {
	return func(m *lockoutMachine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewLockoutMachine returns the default implementation backed by the provided repository.
func NewLockoutMachine(users Users, policy LockoutPolicy, opts ...LockoutOption) LockoutMachine {
	m := &lockoutMachine{
		users:        users,
		policy:       policy.normalized(),
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

type lockoutMachine struct {
	users        Users
	policy       LockoutPolicy
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

const lockoutRetries = 3

func (m *lockoutMachine) Gate(ctx context.Context, user *User) error {
	if user == nil {
		return goerrors.New("user must not be nil", goerrors.CategoryInternal)
	}

	if user.PermanentBanned {
		return ErrPermanentBan
	}

	if !user.TempBanned {
		return nil
	}

	if user.UnbanAt == nil {
		// Stuck ban row with no expiry; treat it as lifted rather than
		// locking the account out forever.
		m.logger.Warn("lockout gate found temp ban without unban_at, user=%s", user.ID)
		return nil
	}

	now := m.now()
	if now.Before(*user.UnbanAt) {
		return NewTempBanError(user.UnbanAt.Sub(now))
	}

	return nil
}

func (m *lockoutMachine) RecordFailure(ctx context.Context, user *User) error {
	if user == nil {
		return goerrors.New("user must not be nil", goerrors.CategoryInternal)
	}

	current := user
	for i := 0; i < lockoutRetries; i++ {
		if current.PermanentBanned {
			return ErrPermanentBan
		}

		attempts := current.FailedAttempts + 1
		next := m.nextStage(attempts)

		ok, err := m.users.ApplyLockout(ctx, current.ID, current.FailedAttempts, next)
		if err != nil {
			return err
		}
		if ok {
			user.FailedAttempts = next.FailedAttempts
			user.TempBanned = next.TempBanned
			user.PermanentBanned = next.PermanentBanned
			user.UnbanAt = next.UnbanAt
			return m.failureOutcome(ctx, current, next)
		}

		// Another writer advanced the counter first; re-read and retry.
		fresh, err := m.users.GetByID(ctx, current.ID)
		if err != nil {
			return err
		}
		current = fresh
	}

	// Contended on every retry. The other writers recorded their
	// failures, so dropping this one is safe.
	m.logger.Warn("lockout failure update contended, user=%s", user.ID)
	return ErrInvalidCredentials
}

func (m *lockoutMachine) RecordSuccess(ctx context.Context, user *User) error {
	if user == nil {
		return goerrors.New("user must not be nil", goerrors.CategoryInternal)
	}

	now := m.now()
	if err := m.users.TrackSuccessfulLogin(ctx, user.ID, now); err != nil {
		return err
	}

	if user.TempBanned {
		m.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventBanLifted,
			UserID:    user.ID.String(),
		})
	}

	user.FailedAttempts = 0
	user.TempBanned = false
	user.UnbanAt = nil
	user.LoggedInAt = &now

	return nil
}

func (m *lockoutMachine) nextStage(attempts int) LockoutUpdate {
	next := LockoutUpdate{FailedAttempts: attempts}

	switch {
	case attempts >= m.policy.PermanentThreshold:
		// A permanent ban keeps the banned flag set with no unban time.
		next.PermanentBanned = true
		next.TempBanned = true
	case attempts >= m.policy.BanThreshold:
		until := m.now().Add(m.policy.BanDuration(attempts))
		next.TempBanned = true
		next.UnbanAt = &until
	}

	return next
}

func (m *lockoutMachine) failureOutcome(ctx context.Context, user *User, next LockoutUpdate) error {
	switch {
	case next.PermanentBanned:
		m.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventPermanentBanned,
			UserID:    user.ID.String(),
			Metadata: map[string]any{
				"failed_attempts": next.FailedAttempts,
			},
		})
		return ErrPermanentBan
	case next.TempBanned:
		duration := m.policy.BanDuration(next.FailedAttempts)
		m.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventTempBanned,
			UserID:    user.ID.String(),
			Metadata: map[string]any{
				"failed_attempts": next.FailedAttempts,
				"ban_duration":    duration.String(),
			},
		})
		return NewTempBanError(duration)
	default:
		m.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			UserID:    user.ID.String(),
			Metadata: map[string]any{
				"failed_attempts": next.FailedAttempts,
			},
		})
		return NewAttemptsWarning(m.policy.BanThreshold - next.FailedAttempts)
	}
}

func (m *lockoutMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.now()
	}

	sink := normalizeActivitySink(m.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		m.logger.Warn("lockout activity sink error: %v", err)
	}
}
