package account

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// InviteCodes is the invite persistence surface.
type InviteCodes interface {
	GetByCode(ctx context.Context, code string) (*InviteCode, error)
	GetByCodeTx(ctx context.Context, tx bun.IDB, code string) (*InviteCode, error)
	CreateBatch(ctx context.Context, codes []*InviteCode) error
	// Redeem claims one use of a code and records who took it, keyed on
	// the use count the caller observed. A false return means another
	// redeemer claimed that use first.
	Redeem(ctx context.Context, tx bun.IDB, code *InviteCode, redemption *InviteRedemption) (bool, error)
	HasRedeemedPurpose(ctx context.Context, userID uuid.UUID, purpose string) (bool, error)
}

type inviteCodes struct {
	repository.Repository[*InviteCode]
	db *bun.DB
}

var _ InviteCodes = (*inviteCodes)(nil)

func NewInviteCodesRepository(db *bun.DB) InviteCodes {
	repo := repository.NewRepository[*InviteCode](db, repository.ModelHandlers[*InviteCode]{
		NewRecord: func() *InviteCode { return &InviteCode{} },
		GetID: func(c *InviteCode) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *InviteCode, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
		GetIdentifier: func() string {
			return "code"
		},
	})

	return &inviteCodes{
		Repository: repo,
		db:         db,
	}
}

func (a *inviteCodes) GetByCode(ctx context.Context, code string) (*InviteCode, error) {
	return a.GetByCodeTx(ctx, a.db, code)
}

func (a *inviteCodes) GetByCodeTx(ctx context.Context, tx bun.IDB, code string) (*InviteCode, error) {
	record := &InviteCode{}
	err := tx.NewSelect().
		Model(record).
		Relation("Redemptions").
		Where("?TableAlias.code = ?", code).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"code": code,
				})
		}
		return nil, err
	}
	return record, nil
}

func (a *inviteCodes) CreateBatch(ctx context.Context, codes []*InviteCode) error {
	if len(codes) == 0 {
		return nil
	}

	now := time.Now()
	for _, code := range codes {
		if code.ID == uuid.Nil {
			code.ID = uuid.New()
		}
		if code.CreatedAt == nil {
			at := now
			code.CreatedAt = &at
		}
	}

	_, err := a.db.NewInsert().
		Model(&codes).
		Exec(ctx)
	return err
}

func (a *inviteCodes) Redeem(ctx context.Context, tx bun.IDB, code *InviteCode, redemption *InviteRedemption) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*InviteCode)(nil)).
		Set("times_used = times_used + 1").
		Where("?TableAlias.id = ?", code.ID).
		Where("?TableAlias.times_used = ?", code.TimesUsed).
		Where("?TableAlias.times_used < ?TableAlias.max_uses").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	if !affected(res) {
		return false, nil
	}

	if redemption.ID == uuid.Nil {
		redemption.ID = uuid.New()
	}

	// The (redeemed_by, purpose) unique index backstops the service-level
	// prior-redemption check under concurrent redeems.
	if _, err := tx.NewInsert().Model(redemption).Exec(ctx); err != nil {
		return false, err
	}

	return true, nil
}

func (a *inviteCodes) HasRedeemedPurpose(ctx context.Context, userID uuid.UUID, purpose string) (bool, error) {
	return a.db.NewSelect().
		Model((*InviteRedemption)(nil)).
		Where("?TableAlias.redeemed_by = ?", userID).
		Where("?TableAlias.purpose = ?", purpose).
		Exists(ctx)
}
