package account

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// AccountService orchestrates registration, login, and the credential
// change workflows. Password checks always run after the ban gate so a
// banned caller learns nothing about whether the password would match.
type AccountService interface {
	Register(ctx context.Context, email, password string) (*User, error)
	// Login returns a signed session token for the account on success.
	Login(ctx context.Context, email, password string) (string, *User, error)
	ChangePassword(ctx context.Context, email, currentPassword, newPassword string) error
	// ChangeEmail starts a pending email change and mails a confirmation
	// token to the new address. The live email does not move until
	// ConfirmEmailChange consumes that token.
	ChangeEmail(ctx context.Context, email, password, newEmail string) error
	ConfirmEmailChange(ctx context.Context, previousEmail, newEmail, token string) error
	// LinkWallet attaches a wallet address, authorized by either the
	// account password or its unique hash.
	LinkWallet(ctx context.Context, email, wallet, proof string) error
}

type AccountOption func(*accountService)

func WithAccountClock(clock func() time.Time) AccountOption {
	return func(s *accountService) {
		if clock != nil {
			s.now = clock
		}
	}
}

func WithAccountLogger(logger Logger) AccountOption {
	return func(s *accountService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAccountActivitySink(sink ActivitySink) AccountOption {
	return func(s *accountService) {
		s.activitySink = normalizeActivitySink(sink)
	}
}

// WithLegacyIdentityProvider enables the wallet-login fallback: accounts
// unknown locally are looked up against the legacy SSO and imported as
// wallet accounts on a successful remote login.
func WithLegacyIdentityProvider(provider LegacyIdentityProvider) AccountOption {
	return func(s *accountService) {
		s.legacy = provider
	}
}

func NewAccountService(
	repo RepositoryManager,
	verification VerificationService,
	lockout LockoutMachine,
	tokens TokenService,
	mailer Mailer,
	config Config,
	opts ...AccountOption,
) AccountService {
	s := &accountService{
		repo:         repo,
		verification: verification,
		lockout:      lockout,
		tokens:       tokens,
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

type accountService struct {
	repo         RepositoryManager
	verification VerificationService
	lockout      LockoutMachine
	tokens       TokenService
	mailer       Mailer
	config       Config
	legacy       LegacyIdentityProvider
	now          func() time.Time
	logger       Logger
	activitySink ActivitySink
}

func (s *accountService) Register(ctx context.Context, email, password string) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during registration",
		)
	default:
	}

	email = NormalizeEmail(email)
	if err := validateEmailAddress(email); err != nil {
		return nil, err
	}

	if err := s.config.Password.Validate(password); err != nil {
		return nil, err
	}

	taken, err := s.repo.Users().EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	uniqueHash, err := RandomHex(s.config.UniqueHashBytes)
	if err != nil {
		return nil, err
	}

	user := &User{
		Email:        email,
		PasswordHash: hash,
		UniqueHash:   uniqueHash,
	}
	if id, err := hashid.NewUUID(email); err == nil {
		user.ID = id
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if user, err = s.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}
		return nil
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	// Token issuance is best-effort: a failure here leaves the account in
	// the no-token state, and the login path re-issues from there.
	if err := s.verification.IssueToken(ctx, email); err != nil {
		s.logger.Warn("verification token issue failed after registration for %s: %v", email, err)
	} else if fresh, err := s.repo.Users().GetByEmail(ctx, email); err == nil {
		// IssueToken stamps its own copy; re-read so the caller sees the
		// pending verification.
		user = fresh
	}

	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventRegistered,
		UserID:    user.ID.String(),
	})

	return user, nil
}

func (s *accountService) Login(ctx context.Context, email, password string) (string, *User, error) {
	user, err := s.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return s.legacyLogin(ctx, email, password)
		}
		return "", nil, err
	}

	switch user.VerificationState() {
	case StateUnverified:
		return "", nil, ErrNotVerified
	case StateLegacyUnverified:
		// Accounts that predate the verification rollout get a token on
		// their next login attempt and must confirm before entering.
		if err := s.verification.IssueToken(ctx, user.Email); err != nil {
			s.logger.Warn("verification token issue failed for legacy account %s: %v", user.ID, err)
		}
		return "", nil, ErrNotVerified
	}

	if err := s.lockout.Gate(ctx, user); err != nil {
		return "", nil, err
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		return "", nil, s.lockout.RecordFailure(ctx, user)
	}

	if err := s.lockout.RecordSuccess(ctx, user); err != nil {
		return "", nil, err
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		return "", nil, err
	}

	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		UserID:    user.ID.String(),
	})

	return token, user, nil
}

// legacyLogin proxies an unknown email to the legacy SSO and imports the
// remote identity as a local wallet account when it succeeds.
func (s *accountService) legacyLogin(ctx context.Context, email, password string) (string, *User, error) {
	if s.legacy == nil {
		return "", nil, ErrInvalidCredentials
	}

	session, err := s.legacy.Login(ctx, email, password)
	if err != nil || session == nil {
		return "", nil, ErrInvalidCredentials
	}

	user := &User{
		WalletAddress: session.WalletAddress,
		UniqueHash:    session.UniqueHash,
		HasVerified:   true,
	}

	existing, err := s.repo.Users().GetByWallet(ctx, session.WalletAddress)
	switch {
	case err == nil:
		user = existing
	case repository.IsRecordNotFound(err):
		if user, err = s.repo.Users().Create(ctx, user); err != nil {
			return "", nil, err
		}
	default:
		return "", nil, err
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		return "", nil, err
	}

	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"legacy": true,
		},
	})

	return token, user, nil
}

func (s *accountService) ChangePassword(ctx context.Context, email, currentPassword, newPassword string) error {
	user, err := s.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrAccountNotFound
		}
		return err
	}

	if err := ComparePasswordAndHash(currentPassword, user.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}

	if err := s.config.Password.Validate(newPassword); err != nil {
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := s.repo.Users().UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return err
	}

	s.notifyPasswordChanged(ctx, user.Email)

	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		UserID:    user.ID.String(),
	})

	return nil
}

func (s *accountService) ChangeEmail(ctx context.Context, email, password, newEmail string) error {
	user, err := s.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrAccountNotFound
		}
		return err
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}

	newEmail = NormalizeEmail(newEmail)
	if err := validateEmailAddress(newEmail); err != nil {
		return err
	}

	taken, err := s.repo.Users().EmailExists(ctx, newEmail)
	if err != nil {
		return err
	}
	if taken {
		return ErrEmailTaken
	}

	if user.EmailChange.Pending() {
		return ErrChangePending
	}

	now := s.now()
	if user.EmailChange != nil && user.EmailChange.LastChangeAt != nil {
		if IsWithinThresholdPeriod(*user.EmailChange.LastChangeAt, s.config.EmailChangeCooldown, now) {
			return ErrChangeCooldown
		}
	}

	token, err := RandomHex(s.config.VerificationTokenBytes)
	if err != nil {
		return err
	}

	data := &EmailChangeData{
		PreviousEmail: user.Email,
		PendingEmail:  newEmail,
		Token: &VerificationData{
			Token:     token,
			ExpiresAt: now.Add(s.config.VerificationTokenTTL),
		},
	}
	if user.EmailChange != nil {
		data.LastChangeAt = user.EmailChange.LastChangeAt
	}

	if err := s.repo.Users().SetEmailChange(ctx, user.ID, data); err != nil {
		return err
	}

	s.deliverEmailChangeEmail(ctx, newEmail, token)

	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventEmailChangeBegun,
		UserID:    user.ID.String(),
	})

	return nil
}

func (s *accountService) ConfirmEmailChange(ctx context.Context, previousEmail, newEmail, token string) error {
	user, err := s.repo.Users().GetByEmail(ctx, previousEmail)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrAccountNotFound
		}
		return err
	}

	change := user.EmailChange
	if !change.Pending() {
		return ErrTokenInvalid
	}

	if change.PendingEmail != NormalizeEmail(newEmail) {
		return ErrTokenInvalid
	}

	if !SecureCompare(change.Token.Token, token) {
		return ErrTokenInvalid
	}

	now := s.now()
	if change.Token.Expired(now) {
		return ErrTokenExpired
	}

	completed := &EmailChangeData{
		PreviousEmail: change.PreviousEmail,
		LastChangeAt:  &now,
	}

	if err := s.repo.Users().CommitEmailChange(ctx, user.ID, change.PendingEmail, completed); err != nil {
		return err
	}

	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventEmailChanged,
		UserID:    user.ID.String(),
	})

	return nil
}

func (s *accountService) LinkWallet(ctx context.Context, email, wallet, proof string) error {
	if wallet == "" {
		return ErrNoEmptyString
	}

	user, err := s.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrAccountNotFound
		}
		return err
	}

	if !s.proofMatches(user, proof) {
		return ErrInvalidProof
	}

	if user.WalletAddress != "" {
		return ErrWalletAlreadyLinked
	}

	_, err = s.repo.Users().GetByWallet(ctx, wallet)
	switch {
	case err == nil:
		return ErrWalletTaken
	case repository.IsRecordNotFound(err):
	default:
		return err
	}

	ok, err := s.repo.Users().LinkWallet(ctx, user.ID, wallet)
	if err != nil {
		return err
	}
	if !ok {
		// Lost the race against another link on the same account.
		return ErrWalletAlreadyLinked
	}

	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventWalletLinked,
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"wallet_address": wallet,
		},
	})

	return nil
}

// proofMatches accepts either the account password or the unique hash.
func (s *accountService) proofMatches(user *User, proof string) bool {
	if proof == "" {
		return false
	}

	if user.PasswordHash != "" {
		if err := ComparePasswordAndHash(proof, user.PasswordHash); err == nil {
			return true
		}
	}

	return SecureCompare(user.UniqueHash, proof)
}

func (s *accountService) notifyPasswordChanged(ctx context.Context, email string) {
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

func (s *accountService) deliverEmailChangeEmail(ctx context.Context, email, token string) {
	body, err := renderTemplate(emailChangeTmpl, map[string]any{
		"VerifyURL": s.config.VerificationBaseURL + "?email=" + email + "&token=" + token,
		"TTLHours":  int(s.config.VerificationTokenTTL.Hours()),
	})
	if err != nil {
		s.logger.Error("email change email render failed: %v", err)
		return
	}

	if _, err := s.mailer.Send(ctx, email, subjectEmailChange, body); err != nil {
		s.logger.Warn("email change delivery failed for %s: %v", email, err)
	}
}

func (s *accountService) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	sink := normalizeActivitySink(s.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("account activity sink error: %v", err)
	}
}

func validateEmailAddress(email string) error {
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid email address").
			WithTextCode("INVALID_EMAIL")
	}
	return nil
}
