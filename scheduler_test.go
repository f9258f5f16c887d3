package account_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	account "github.com/nbcompany/go-account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newMaintenanceFixture() (*account.MaintenanceJobs, *mockRepoManager, *capturingSink, time.Time) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := newMockRepoManager()
	sink := &capturingSink{}

	jobs := account.NewMaintenanceJobs(repo,
		account.WithMaintenanceClock(func() time.Time { return now }),
		account.WithMaintenanceActivitySink(sink),
	)
	return jobs, repo, sink, now
}

func TestPurgeExpiredVerifications(t *testing.T) {
	jobs, repo, sink, now := newMaintenanceFixture()

	emailOnly := &account.User{
		ID:    uuid.New(),
		Email: "stale@x.com",
		Verification: &account.VerificationData{
			Token:     "t1",
			ExpiresAt: now.Add(-time.Hour),
		},
	}
	withWallet := &account.User{
		ID:            uuid.New(),
		Email:         "wallet@x.com",
		WalletAddress: "0xabc",
		Verification: &account.VerificationData{
			Token:     "t2",
			ExpiresAt: now.Add(-time.Hour),
		},
	}
	stillFresh := &account.User{
		ID:    uuid.New(),
		Email: "fresh@x.com",
		Verification: &account.VerificationData{
			Token:     "t3",
			ExpiresAt: now.Add(time.Hour),
		},
	}

	repo.users.On("FindPendingVerifications", mock.Anything).
		Return([]*account.User{emailOnly, withWallet, stillFresh}, nil).Once()
	repo.users.On("HardDelete", mock.Anything, mock.Anything, emailOnly.ID).Return(nil).Once()
	repo.users.On("StripEmailAndVerification", mock.Anything, mock.Anything, withWallet.ID).Return(nil).Once()

	purged, err := jobs.PurgeExpiredVerifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, purged)

	// unexpired accounts are untouched
	repo.users.AssertNotCalled(t, "HardDelete", mock.Anything, mock.Anything, stillFresh.ID)
	repo.users.AssertExpectations(t)

	require.Len(t, sink.events, 2)
	assert.Equal(t, account.ActivityEventAccountPurged, sink.events[0].EventType)
	assert.Equal(t, false, sink.events[0].Metadata["kept_wallet"])
	assert.Equal(t, true, sink.events[1].Metadata["kept_wallet"])
}

func TestPurgeKeepsSweepingAfterFailure(t *testing.T) {
	jobs, repo, _, now := newMaintenanceFixture()

	failing := &account.User{
		ID:    uuid.New(),
		Email: "broken@x.com",
		Verification: &account.VerificationData{
			Token:     "t1",
			ExpiresAt: now.Add(-time.Hour),
		},
	}
	healthy := &account.User{
		ID:    uuid.New(),
		Email: "stale@x.com",
		Verification: &account.VerificationData{
			Token:     "t2",
			ExpiresAt: now.Add(-time.Hour),
		},
	}

	repo.users.On("FindPendingVerifications", mock.Anything).
		Return([]*account.User{failing, healthy}, nil).Once()
	repo.users.On("HardDelete", mock.Anything, mock.Anything, failing.ID).Return(assert.AnError).Once()
	repo.users.On("HardDelete", mock.Anything, mock.Anything, healthy.ID).Return(nil).Once()

	purged, err := jobs.PurgeExpiredVerifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
	repo.users.AssertExpectations(t)
}

func TestLiftExpiredBans(t *testing.T) {
	jobs, repo, _, now := newMaintenanceFixture()

	repo.users.On("ClearExpiredBans", mock.Anything, now).Return(int64(3), nil).Once()

	lifted, err := jobs.LiftExpiredBans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), lifted)
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	repo := newMockRepoManager()
	repo.users.On("FindPendingVerifications", mock.Anything).Return([]*account.User{}, nil)
	repo.users.On("ClearExpiredBans", mock.Anything, mock.Anything).Return(int64(0), nil)

	cfg := account.NewConfig()
	cfg.MaintenanceInterval = time.Millisecond

	jobs := account.NewMaintenanceJobs(repo)
	scheduler := account.NewScheduler(jobs, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}

	repo.users.AssertCalled(t, "FindPendingVerifications", mock.Anything)
}
