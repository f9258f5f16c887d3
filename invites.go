package account

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// InviteService generates and redeems invite codes. Generation is gated
// by the admin secret; redemption is bound to the account's unique hash
// so a leaked email alone cannot claim a code.
type InviteService interface {
	Generate(ctx context.Context, req GenerateInvitesRequest) ([]*InviteCode, error)
	Redeem(ctx context.Context, code, email, uniqueHash string) error
}

// GenerateInvitesRequest describes a batch of codes to mint.
type GenerateInvitesRequest struct {
	AdminSecret string
	Count       int
	Purpose     string
	MultiUse    bool
	// MaxUses applies to multi-use codes; single-use codes are capped at 1.
	MaxUses   int
	ExpiresAt *time.Time
}

type InviteOption func(*inviteService)

func WithInviteClock(clock func() time.Time) InviteOption {
	return func(s *inviteService) {
		if clock != nil {
			s.now = clock
		}
	}
}

func WithInviteLogger(logger Logger) InviteOption {
	return func(s *inviteService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithInviteActivitySink(sink ActivitySink) InviteOption {
	return func(s *inviteService) {
		s.activitySink = normalizeActivitySink(sink)
	}
}

func NewInviteService(repo RepositoryManager, config Config, opts ...InviteOption) InviteService {
	s := &inviteService{
		repo:         repo,
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

const redeemRetries = 3

type inviteService struct {
	repo         RepositoryManager
	config       Config
	now          func() time.Time
	logger       Logger
	activitySink ActivitySink
}

func (s *inviteService) Generate(ctx context.Context, req GenerateInvitesRequest) ([]*InviteCode, error) {
	if s.config.AdminSecret == "" || !SecureCompare(req.AdminSecret, s.config.AdminSecret) {
		return nil, ErrInvalidAdminSecret
	}

	if req.Count <= 0 {
		return nil, goerrors.New("count must be positive", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	purpose := NormalizePurpose(req.Purpose)
	if purpose == "" {
		return nil, goerrors.New("purpose must not be empty", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	maxUses := 1
	if req.MultiUse {
		if req.MaxUses <= 0 {
			return nil, goerrors.New("max uses must be positive for multi use codes", goerrors.CategoryBadInput).
				WithCode(goerrors.CodeBadRequest)
		}
		maxUses = req.MaxUses
	}

	expiresAt := s.now().Add(s.config.InviteCodeTTL)
	if req.ExpiresAt != nil {
		expiresAt = *req.ExpiresAt
	}

	codes := make([]*InviteCode, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		suffix, err := RandomHex(s.config.InviteCodeBytes)
		if err != nil {
			return nil, err
		}

		codes = append(codes, &InviteCode{
			Code:      fmt.Sprintf("%s-%s", purpose, suffix),
			Purpose:   purpose,
			MultiUse:  req.MultiUse,
			MaxUses:   maxUses,
			ExpiresAt: expiresAt,
		})
	}

	if err := s.repo.InviteCodes().CreateBatch(ctx, codes); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store invite codes")
	}

	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventInviteGenerated,
		Metadata: map[string]any{
			"purpose": purpose,
			"count":   req.Count,
		},
	})

	return codes, nil
}

func (s *inviteService) Redeem(ctx context.Context, code, email, uniqueHash string) error {
	if uniqueHash == "" {
		return goerrors.New("unique hash is required", goerrors.CategoryBadInput).
			WithTextCode(TextCodeUniqueHashMismatch).
			WithCode(goerrors.CodeBadRequest)
	}

	user, err := s.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrAccountNotFound
		}
		return err
	}

	invite, err := s.repo.InviteCodes().GetByCode(ctx, code)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrCodeNotFound
		}
		return err
	}

	if invite.Expired(s.now()) {
		return ErrCodeExpired
	}

	if err := s.useLeft(invite); err != nil {
		return err
	}

	redeemed, err := s.repo.InviteCodes().HasRedeemedPurpose(ctx, user.ID, invite.Purpose)
	if err != nil {
		return err
	}
	if redeemed {
		return ErrPurposeRedeemed
	}

	if !SecureCompare(user.UniqueHash, uniqueHash) {
		return ErrUniqueHashMismatch
	}

	redemption := &InviteRedemption{
		CodeID:     invite.ID,
		Purpose:    invite.Purpose,
		RedeemedBy: user.ID,
		RedeemedAt: s.now(),
	}

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current := invite
		for i := 0; i < redeemRetries; i++ {
			ok, err := s.repo.InviteCodes().Redeem(ctx, tx, current, redemption)
			if err != nil {
				// A concurrent redemption by the same account trips the
				// (redeemed_by, purpose) unique index.
				if isUniqueViolation(err) {
					return ErrPurposeRedeemed
				}
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to redeem invite code")
			}
			if ok {
				return nil
			}

			// Lost the use-count race; re-read and either report the code
			// as spent or retry against the fresh counter.
			fresh, err := s.repo.InviteCodes().GetByCodeTx(ctx, tx, invite.Code)
			if err != nil {
				return err
			}
			if err := s.useLeft(fresh); err != nil {
				return err
			}
			current = fresh
		}
		return ErrCodeExhausted
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "invite redemption transaction failed")
	}

	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventInviteRedeemed,
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"purpose": invite.Purpose,
		},
	})

	return nil
}

// isUniqueViolation matches the driver-specific text of a unique index
// violation. SQLite reports "UNIQUE constraint failed", Postgres
// "duplicate key value violates unique constraint".
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// useLeft maps an exhausted code to the caller-facing error: single-use
// codes read as redeemed, multi-use codes as exhausted.
func (s *inviteService) useLeft(invite *InviteCode) error {
	if !invite.Exhausted() {
		return nil
	}
	if invite.MultiUse {
		return ErrCodeExhausted
	}
	return ErrCodeRedeemed
}

func (s *inviteService) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	sink := normalizeActivitySink(s.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("invite activity sink error: %v", err)
	}
}
