package account

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/goliatone/go-repository-bun"
)

// VerificationService drives the email confirmation workflow:
// issue a pending token, deliver it, confirm it once.
type VerificationService interface {
	// IssueToken attaches a fresh verification token to an unverified
	// account and emails the confirmation link. Fails when the account is
	// already verified or a token is already pending.
	IssueToken(ctx context.Context, email string) error
	// ConfirmToken consumes a pending token and marks the account verified.
	ConfirmToken(ctx context.Context, email, token string) error
}

type VerificationOption func(*verificationService)

func WithVerificationClock(clock func() time.Time) VerificationOption {
	return func(s *verificationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

func WithVerificationLogger(logger Logger) VerificationOption {
	return func(s *verificationService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithVerificationActivitySink(sink ActivitySink) VerificationOption {
	return func(s *verificationService) {
		s.activitySink = normalizeActivitySink(sink)
	}
}

func NewVerificationService(users Users, mailer Mailer, config Config, opts ...VerificationOption) VerificationService {
	s := &verificationService{
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

type verificationService struct {
	users        Users
	mailer       Mailer
	config       Config
	now          func() time.Time
	logger       Logger
	activitySink ActivitySink
}

func (s *verificationService) IssueToken(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrAccountNotFound
		}
		return err
	}

	switch user.VerificationState() {
	case StateVerified:
		return ErrAlreadyVerified
	case StateUnverified:
		return ErrVerificationPending
	}

	return s.issueFor(ctx, user)
}

// issueFor stamps a new token on the account and mails it. Callers are
// responsible for having checked the account's verification state.
func (s *verificationService) issueFor(ctx context.Context, user *User) error {
	token, err := RandomHex(s.config.VerificationTokenBytes)
	if err != nil {
		return err
	}

	data := &VerificationData{
		Token:     token,
		ExpiresAt: s.now().Add(s.config.VerificationTokenTTL),
	}

	if err := s.users.SetVerificationData(ctx, user.ID, data); err != nil {
		return err
	}
	user.Verification = data

	s.deliverVerificationEmail(ctx, user.Email, token)

	return nil
}

func (s *verificationService) ConfirmToken(ctx context.Context, email, token string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrAccountNotFound
		}
		return err
	}

	if user.HasVerified {
		return ErrAlreadyVerified
	}

	if user.Verification == nil || !SecureCompare(user.Verification.Token, token) {
		return ErrTokenInvalid
	}

	if user.Verification.Expired(s.now()) {
		return ErrTokenExpired
	}

	ok, err := s.users.MarkVerified(ctx, user.ID, token)
	if err != nil {
		return err
	}
	if !ok {
		// The token was consumed or replaced between our read and the
		// write. A consumed token means the account is verified now.
		fresh, err := s.users.GetByID(ctx, user.ID)
		if err != nil {
			return err
		}
		if fresh.HasVerified {
			return ErrAlreadyVerified
		}
		return ErrTokenInvalid
	}

	user.HasVerified = true
	user.Verification = nil

	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventVerified,
		UserID:    user.ID.String(),
	})

	return nil
}

// deliverVerificationEmail is fire-and-forget: a failed send never rolls
// back the stamped token, the account can request a resend.
func (s *verificationService) deliverVerificationEmail(ctx context.Context, email, token string) {
	body, err := renderTemplate(verificationEmailTmpl, map[string]any{
		"VerifyURL": s.verifyURL(email, token),
		"TTLHours":  int(s.config.VerificationTokenTTL.Hours()),
	})
	if err != nil {
		s.logger.Error("verification email render failed: %v", err)
		return
	}

	if _, err := s.mailer.Send(ctx, email, subjectVerification, body); err != nil {
		s.logger.Warn("verification email delivery failed for %s: %v", email, err)
	}
}

func (s *verificationService) verifyURL(email, token string) string {
	return fmt.Sprintf("%s?email=%s&token=%s",
		s.config.VerificationBaseURL,
		url.QueryEscape(email),
		token,
	)
}

func (s *verificationService) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	sink := normalizeActivitySink(s.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("verification activity sink error: %v", err)
	}
}
