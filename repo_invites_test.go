package account_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	account "github.com/nbcompany/go-account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	sqliteCreateInviteCodes = `CREATE TABLE invite_codes (
    id TEXT NOT NULL PRIMARY KEY,
    code TEXT NOT NULL UNIQUE,
    purpose TEXT NOT NULL,
    multi_use BOOLEAN NOT NULL DEFAULT FALSE,
    max_uses INTEGER NOT NULL,
    times_used INTEGER NOT NULL DEFAULT 0,
    expires_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`
	sqliteCreateInviteRedemptions = `CREATE TABLE invite_redemptions (
    id TEXT NOT NULL PRIMARY KEY,
    code_id TEXT NOT NULL,
    purpose TEXT NOT NULL,
    redeemed_by TEXT NOT NULL,
    redeemed_at TIMESTAMP NOT NULL,
    FOREIGN KEY (code_id) REFERENCES invite_codes (id) ON DELETE CASCADE,
    CONSTRAINT uq_one_redemption_per_purpose UNIQUE (purpose, redeemed_by)
);`
)

func setupInvitesRepo(t *testing.T) (account.InviteCodes, *bun.DB) {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	for _, ddl := range []string{sqliteCreateInviteCodes, sqliteCreateInviteRedemptions} {
		_, err = bunDB.Exec(ddl)
		require.NoError(t, err)
	}

	return account.NewInviteCodesRepository(bunDB), bunDB
}

func seedInvite(t *testing.T, repo account.InviteCodes, code *account.InviteCode) *account.InviteCode {
	t.Helper()
	require.NoError(t, repo.CreateBatch(context.Background(), []*account.InviteCode{code}))
	return code
}

func TestInviteCodesRoundTrip(t *testing.T) {
	repo, _ := setupInvitesRepo(t)
	ctx := context.Background()
	expiry := time.Date(2024, 6, 8, 12, 0, 0, 0, time.UTC)

	seedInvite(t, repo, &account.InviteCode{
		Code:      "ALPHA-abc",
		Purpose:   "ALPHA",
		MaxUses:   1,
		ExpiresAt: expiry,
	})

	found, err := repo.GetByCode(ctx, "ALPHA-abc")
	require.NoError(t, err)
	assert.Equal(t, "ALPHA", found.Purpose)
	assert.Equal(t, 1, found.MaxUses)
	assert.Equal(t, 0, found.TimesUsed)
	assert.True(t, found.ExpiresAt.Equal(expiry))
	assert.Empty(t, found.Redemptions)

	_, err = repo.GetByCode(ctx, "ALPHA-nope")
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestRedeemClaimsOneUse(t *testing.T) {
	repo, db := setupInvitesRepo(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	code := seedInvite(t, repo, &account.InviteCode{
		Code:      "ALPHA-abc",
		Purpose:   "ALPHA",
		MaxUses:   1,
		ExpiresAt: now.Add(time.Hour),
	})

	userID := uuid.New()
	ok, err := repo.Redeem(ctx, db, code, &account.InviteRedemption{
		CodeID:     code.ID,
		Purpose:    code.Purpose,
		RedeemedBy: userID,
		RedeemedAt: now,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	redeemed, err := repo.HasRedeemedPurpose(ctx, userID, "ALPHA")
	require.NoError(t, err)
	assert.True(t, redeemed)

	redeemed, err = repo.HasRedeemedPurpose(ctx, uuid.New(), "ALPHA")
	require.NoError(t, err)
	assert.False(t, redeemed)

	fresh, err := repo.GetByCode(ctx, "ALPHA-abc")
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.TimesUsed)
	require.Len(t, fresh.Redemptions, 1)
	assert.Equal(t, userID, fresh.Redemptions[0].RedeemedBy)
}

func TestRedeemStaleCounterLoses(t *testing.T) {
	repo, db := setupInvitesRepo(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	code := seedInvite(t, repo, &account.InviteCode{
		Code:      "ALPHA-abc",
		Purpose:   "ALPHA",
		MultiUse:  true,
		MaxUses:   10,
		ExpiresAt: now.Add(time.Hour),
	})

	ok, err := repo.Redeem(ctx, db, code, &account.InviteRedemption{
		CodeID:     code.ID,
		Purpose:    code.Purpose,
		RedeemedBy: uuid.New(),
		RedeemedAt: now,
	})
	require.NoError(t, err)
	require.True(t, ok)

	// code still holds TimesUsed 0, the row is at 1
	ok, err = repo.Redeem(ctx, db, code, &account.InviteRedemption{
		CodeID:     code.ID,
		Purpose:    code.Purpose,
		RedeemedBy: uuid.New(),
		RedeemedAt: now,
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedeemRejectsSpentCode(t *testing.T) {
	repo, db := setupInvitesRepo(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	code := seedInvite(t, repo, &account.InviteCode{
		Code:      "ALPHA-abc",
		Purpose:   "ALPHA",
		MaxUses:   1,
		TimesUsed: 1,
		ExpiresAt: now.Add(time.Hour),
	})

	ok, err := repo.Redeem(ctx, db, code, &account.InviteRedemption{
		CodeID:     code.ID,
		Purpose:    code.Purpose,
		RedeemedBy: uuid.New(),
		RedeemedAt: now,
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedemptionUniquePerPurpose(t *testing.T) {
	repo, db := setupInvitesRepo(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	first := seedInvite(t, repo, &account.InviteCode{
		Code:      "ALPHA-one",
		Purpose:   "ALPHA",
		MaxUses:   5,
		MultiUse:  true,
		ExpiresAt: now.Add(time.Hour),
	})
	second := seedInvite(t, repo, &account.InviteCode{
		Code:      "ALPHA-two",
		Purpose:   "ALPHA",
		MaxUses:   5,
		MultiUse:  true,
		ExpiresAt: now.Add(time.Hour),
	})

	userID := uuid.New()
	ok, err := repo.Redeem(ctx, db, first, &account.InviteRedemption{
		CodeID:     first.ID,
		Purpose:    "ALPHA",
		RedeemedBy: userID,
		RedeemedAt: now,
	})
	require.NoError(t, err)
	require.True(t, ok)

	// the unique index rejects a second ALPHA redemption by the same user
	// even through a different code
	_, err = repo.Redeem(ctx, db, second, &account.InviteRedemption{
		CodeID:     second.ID,
		Purpose:    "ALPHA",
		RedeemedBy: userID,
		RedeemedAt: now,
	})
	assert.Error(t, err)
}

// TestRedeemNeverOverspends drives concurrent redeemers through the same
// read-claim-retry loop the service uses and checks the counter never
// passes max_uses.
func TestRedeemNeverOverspends(t *testing.T) {
	repo, db := setupInvitesRepo(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	const maxUses = 5
	const redeemers = 20

	seedInvite(t, repo, &account.InviteCode{
		Code:      "ALPHA-contended",
		Purpose:   "ALPHA",
		MultiUse:  true,
		MaxUses:   maxUses,
		ExpiresAt: now.Add(time.Hour),
	})

	var wg sync.WaitGroup
	wins := make(chan uuid.UUID, redeemers)

	for i := 0; i < redeemers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			userID := uuid.New()

			for {
				current, err := repo.GetByCode(ctx, "ALPHA-contended")
				if err != nil || current.Exhausted() {
					return
				}

				ok, err := repo.Redeem(ctx, db, current, &account.InviteRedemption{
					CodeID:     current.ID,
					Purpose:    current.Purpose,
					RedeemedBy: userID,
					RedeemedAt: now,
				})
				if err != nil {
					return
				}
				if ok {
					wins <- userID
					return
				}
			}
		}()
	}

	wg.Wait()
	close(wins)

	winners := 0
	for range wins {
		winners++
	}
	assert.Equal(t, maxUses, winners)

	final, err := repo.GetByCode(ctx, "ALPHA-contended")
	require.NoError(t, err)
	assert.Equal(t, maxUses, final.TimesUsed)
	assert.Len(t, final.Redemptions, maxUses)
}
