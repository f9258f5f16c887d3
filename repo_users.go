package account

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the account persistence surface. It stays narrow on purpose:
// services depend on this interface, tests mock it, and only the bun
// implementation below knows about SQL.
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByWallet(ctx context.Context, wallet string) (*User, error)
	GetByResetToken(ctx context.Context, token string) (*User, error)
	EmailExists(ctx context.Context, email string) (bool, error)

	Create(ctx context.Context, record *User) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)

	SetVerificationData(ctx context.Context, id uuid.UUID, data *VerificationData) error
	// MarkVerified flips has_verified and clears the pending token only
	// when the stored token still matches; reports whether a row changed.
	MarkVerified(ctx context.Context, id uuid.UUID, token string) (bool, error)

	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	SetPasswordReset(ctx context.Context, id uuid.UUID, data *VerificationData) error
	// ConsumePasswordReset swaps the password hash and clears the reset
	// token when the stored token still matches; reports whether a row
	// changed. Losing the race means the token was already consumed.
	ConsumePasswordReset(ctx context.Context, id uuid.UUID, token, hash string) (bool, error)

	SetEmailChange(ctx context.Context, id uuid.UUID, data *EmailChangeData) error
	// CommitEmailChange moves the pending email into the live column and
	// stamps the completion record in one statement.
	CommitEmailChange(ctx context.Context, id uuid.UUID, email string, data *EmailChangeData) error

	// LinkWallet attaches a wallet only when the account has none yet;
	// reports whether a row changed.
	LinkWallet(ctx context.Context, id uuid.UUID, wallet string) (bool, error)

	// ApplyLockout persists the next lockout stage keyed on the attempt
	// counter the caller observed. A false return means another writer
	// advanced the counter first and the caller must re-read.
	ApplyLockout(ctx context.Context, id uuid.UUID, observedAttempts int, next LockoutUpdate) (bool, error)
	TrackSuccessfulLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	ClearExpiredBans(ctx context.Context, now time.Time) (int64, error)

	FindPendingVerifications(ctx context.Context) ([]*User, error)
	// StripEmailAndVerification removes the email identity from a wallet
	// account whose verification window lapsed.
	StripEmailAndVerification(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	HardDelete(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

// LockoutUpdate is the target lockout stage written by ApplyLockout.
type LockoutUpdate struct {
	FailedAttempts  int
	TempBanned      bool
	PermanentBanned bool
	UnbanAt         *time.Time
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var _ Users = (*users)(nil)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.getOne(ctx, "?TableAlias.id = ?", id)
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.getOne(ctx, "LOWER(?TableAlias.email) = ?", NormalizeEmail(email))
}

func (a *users) GetByWallet(ctx context.Context, wallet string) (*User, error) {
	return a.getOne(ctx, "?TableAlias.wallet_address = ?", wallet)
}

func (a *users) GetByResetToken(ctx context.Context, token string) (*User, error) {
	return a.getOne(ctx, "?TableAlias.password_reset_data ->> 'token' = ?", token)
}

func (a *users) getOne(ctx context.Context, where string, arg any) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Where(where, arg).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}
	return record, nil
}

func (a *users) EmailExists(ctx context.Context, email string) (bool, error) {
	return a.db.NewSelect().
		Model((*User)(nil)).
		Where("LOWER(?TableAlias.email) = ?", NormalizeEmail(email)).
		Exists(ctx)
}

func (a *users) Create(ctx context.Context, record *User) (*User, error) {
	return a.CreateTx(ctx, a.db, record)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record)
}

func (a *users) SetVerificationData(ctx context.Context, id uuid.UUID, data *VerificationData) error {
	return a.updateColumns(ctx, id, map[string]any{
		"verification_data": data,
	})
}

func (a *users) MarkVerified(ctx context.Context, id uuid.UUID, token string) (bool, error) {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("has_verified = ?", true).
		Set("verification_data = NULL").
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.has_verified = ?", false).
		Where("?TableAlias.verification_data ->> 'token' = ?", token).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return affected(res), nil
}

func (a *users) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return a.updateColumns(ctx, id, map[string]any{
		"password_hash": hash,
	})
}

func (a *users) SetPasswordReset(ctx context.Context, id uuid.UUID, data *VerificationData) error {
	return a.updateColumns(ctx, id, map[string]any{
		"password_reset_data": data,
	})
}

func (a *users) ConsumePasswordReset(ctx context.Context, id uuid.UUID, token, hash string) (bool, error) {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("password_hash = ?", hash).
		Set("password_reset_data = NULL").
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.password_reset_data ->> 'token' = ?", token).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return affected(res), nil
}

func (a *users) SetEmailChange(ctx context.Context, id uuid.UUID, data *EmailChangeData) error {
	return a.updateColumns(ctx, id, map[string]any{
		"email_change_data": data,
	})
}

func (a *users) CommitEmailChange(ctx context.Context, id uuid.UUID, email string, data *EmailChangeData) error {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("email = ?", email).
		Set("email_change_data = ?", data).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if !affected(res) {
		return repository.NewRecordNotFound()
	}
	return nil
}

func (a *users) LinkWallet(ctx context.Context, id uuid.UUID, wallet string) (bool, error) {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("wallet_address = ?", wallet).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.wallet_address IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return affected(res), nil
}

func (a *users) ApplyLockout(ctx context.Context, id uuid.UUID, observedAttempts int, next LockoutUpdate) (bool, error) {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("failed_attempts = ?", next.FailedAttempts).
		Set("temp_banned = ?", next.TempBanned).
		Set("permanent_banned = ?", next.PermanentBanned).
		Set("unban_at = ?", next.UnbanAt).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.failed_attempts = ?", observedAttempts).
		Where("?TableAlias.permanent_banned = ?", false).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return affected(res), nil
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	// NOTE: Updating using the ORM fails due to a bug, it wont reset
	// failed_attempts and unban_at fields.
	_, err := a.db.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"loggedin_at" = ?,
			"failed_attempts" = 0,
			"temp_banned" = FALSE,
			"unban_at" = NULL
		WHERE
			("usr".id = ?)
			AND "usr"."permanent_banned" = FALSE;
	`, at, id).Exec(ctx)

	return err
}

func (a *users) ClearExpiredBans(ctx context.Context, now time.Time) (int64, error) {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("temp_banned = ?", false).
		Set("unban_at = NULL").
		Where("?TableAlias.temp_banned = ?", true).
		Where("?TableAlias.permanent_banned = ?", false).
		Where("?TableAlias.unban_at IS NOT NULL").
		Where("?TableAlias.unban_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (a *users) FindPendingVerifications(ctx context.Context) ([]*User, error) {
	var records []*User
	err := a.db.NewSelect().
		Model(&records).
		Where("?TableAlias.has_verified = ?", false).
		Where("?TableAlias.verification_data IS NOT NULL").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (a *users) StripEmailAndVerification(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("email = NULL").
		Set("verification_data = NULL").
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	return err
}

func (a *users) HardDelete(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*User)(nil)).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	return err
}

func (a *users) updateColumns(ctx context.Context, id uuid.UUID, cols map[string]any) error {
	q := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("?TableAlias.id = ?", id)

	for col, val := range cols {
		q.Set("? = ?", bun.Ident(col), val)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	if !affected(res) {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}
	return nil
}

func affected(res sql.Result) bool {
	if res == nil {
		return false
	}
	n, err := res.RowsAffected()
	return err == nil && n > 0
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
