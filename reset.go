package account

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-repository-bun"
)

// PasswordResetService drives the forgot-password flow. Request is
// anonymized: it reports success whether or not the email exists, so
// callers cannot enumerate registered addresses.
type PasswordResetService interface {
	Request(ctx context.Context, email string) error
	// CheckToken reports whether a token is still redeemable without
	// consuming it, so a reset form can fail before asking for a password.
	CheckToken(ctx context.Context, token string) error
	// Confirm consumes a reset token and installs the new password.
	Confirm(ctx context.Context, token, newPassword, confirmPassword string) error
}

type ResetOption func(*resetService)

func WithResetClock(clock func() time.Time) ResetOption {
	return func(s *resetService) {
		if clock != nil {
			s.now = clock
		}
	}
}

func WithResetLogger(logger Logger) ResetOption {
	return func(s *resetService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithResetActivitySink(sink ActivitySink) ResetOption {
	return func(s *resetService) {
		s.activitySink = normalizeActivitySink(sink)
	}
}

func NewPasswordResetService(users Users, mailer Mailer, config Config, opts ...ResetOption) PasswordResetService {
	s := &resetService{
		users:        users,
		mailer:       mailer,
		config:       config.withDefaults(),
		now:          time.Now,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

type resetService struct {
	users        Users
	mailer       Mailer
	config       Config
	now          func() time.Time
	logger       Logger
	activitySink ActivitySink
}

func (s *resetService) Request(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			// Same response as the happy path; do not reveal whether the
			// address is registered.
			return nil
		}
		return err
	}

	token, err := RandomHex(s.config.ResetTokenBytes)
	if err != nil {
		return err
	}

	data := &VerificationData{
		Token:     token,
		ExpiresAt: s.now().Add(s.config.ResetTokenTTL),
	}

	if err := s.users.SetPasswordReset(ctx, user.ID, data); err != nil {
		return err
	}

	s.deliverResetEmail(ctx, user.Email, token)

	return nil
}

func (s *resetService) CheckToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrTokenInvalid
	}

	user, err := s.users.GetByResetToken(ctx, token)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrTokenInvalid
		}
		return err
	}

	if user.PasswordReset == nil || !SecureCompare(user.PasswordReset.Token, token) {
		return ErrTokenInvalid
	}

	if user.PasswordReset.Expired(s.now()) {
		return ErrTokenExpired
	}

	return nil
}

func (s *resetService) Confirm(ctx context.Context, token, newPassword, confirmPassword string) error {
	if token == "" {
		return ErrTokenInvalid
	}

	if newPassword != confirmPassword {
		return ErrPasswordConfirmMismatch
	}

	if err := s.config.Password.Validate(newPassword); err != nil {
		return err
	}

	user, err := s.users.GetByResetToken(ctx, token)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrTokenInvalid
		}
		return err
	}

	if user.PasswordReset == nil || !SecureCompare(user.PasswordReset.Token, token) {
		return ErrTokenInvalid
	}

	if user.PasswordReset.Expired(s.now()) {
		return ErrTokenExpired
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	ok, err := s.users.ConsumePasswordReset(ctx, user.ID, token, hash)
	if err != nil {
		return err
	}
	if !ok {
		// The token was consumed or replaced between our read and the write.
		return ErrTokenInvalid
	}

	s.notifyPasswordChanged(ctx, user.Email)

	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventPasswordReset,
		UserID:    user.ID.String(),
	})

	return nil
}

func (s *resetService) deliverResetEmail(ctx context.Context, email, token string) {
	body, err := renderTemplate(passwordResetTmpl, map[string]any{
		"ResetURL": fmt.Sprintf("%s?token=%s", s.config.ResetBaseURL, token),
		"TTLHours": int(s.config.ResetTokenTTL.Hours()),
	})
	if err != nil {
		s.logger.Error("reset email render failed: %v", err)
		return
	}

	if _, err := s.mailer.Send(ctx, email, subjectPasswordReset, body); err != nil {
		s.logger.Warn("reset email delivery failed for %s: %v", email, err)
	}
}

func (s *resetService) notifyPasswordChanged(ctx context.Context, email string) {
	if email == "" {
		return
	}

	body, err := renderTemplate(passwordChangedTmpl, nil)
	if err != nil {
		s.logger.Error("password changed email render failed: %v", err)
		return
	}

	if _, err := s.mailer.Send(ctx, email, subjectPasswordChanged, body); err != nil {
		s.logger.Warn("password changed email delivery failed for %s: %v", email, err)
	}
}

func (s *resetService) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	sink := normalizeActivitySink(s.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("reset activity sink error: %v", err)
	}
}
