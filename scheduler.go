package account

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// MaintenanceJobs holds the periodic cleanup passes. Each job is
// idempotent and touches nothing when no record matches, so overlapping
// or retried runs are safe.
type MaintenanceJobs struct {
	repo         RepositoryManager
	now          func() time.Time
	logger       Logger
	activitySink ActivitySink
}

type MaintenanceOption func(*MaintenanceJobs)

func WithMaintenanceClock(clock func() time.Time) MaintenanceOption {
	return func(j *MaintenanceJobs) {
		if clock != nil {
			j.now = clock
		}
	}
}

func WithMaintenanceLogger(logger Logger) MaintenanceOption {
	return func(j *MaintenanceJobs) {
		if logger != nil {
			j.logger = logger
		}
	}
}

func WithMaintenanceActivitySink(sink ActivitySink) MaintenanceOption {
	return func(j *MaintenanceJobs) {
		j.activitySink = normalizeActivitySink(sink)
	}
}

func NewMaintenanceJobs(repo RepositoryManager, opts ...MaintenanceOption) *MaintenanceJobs {
	j := &MaintenanceJobs{
		repo:         repo,
		now:          time.Now,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(j)
		}
	}

	return j
}

// PurgeExpiredVerifications clears out accounts whose verification window
// lapsed. Wallet accounts survive with their email identity stripped;
// email-only accounts are deleted outright. Returns how many accounts
// were touched.
func (j *MaintenanceJobs) PurgeExpiredVerifications(ctx context.Context) (int, error) {
	pending, err := j.repo.Users().FindPendingVerifications(ctx)
	if err != nil {
		return 0, err
	}

	now := j.now()
	purged := 0

	for _, user := range pending {
		if !user.Verification.Expired(now) {
			continue
		}

		user := user
		err := j.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if user.WalletAddress != "" {
				return j.repo.Users().StripEmailAndVerification(ctx, tx, user.ID)
			}
			return j.repo.Users().HardDelete(ctx, tx, user.ID)
		})
		if err != nil {
			// Keep sweeping; the next run retries this account.
			j.logger.Error("purge failed for account %s: %v", user.ID, err)
			continue
		}

		purged++
		j.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventAccountPurged,
			UserID:    user.ID.String(),
			Metadata: map[string]any{
				"kept_wallet": user.WalletAddress != "",
			},
		})
	}

	return purged, nil
}

// LiftExpiredBans clears temporary bans whose window has passed. The
// query itself excludes permanent bans, which carry no unban time.
func (j *MaintenanceJobs) LiftExpiredBans(ctx context.Context) (int64, error) {
	return j.repo.Users().ClearExpiredBans(ctx, j.now())
}

func (j *MaintenanceJobs) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = j.now()
	}

	sink := normalizeActivitySink(j.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		j.logger.Warn("maintenance activity sink error: %v", err)
	}
}

// Scheduler drives the maintenance jobs on a fixed interval.
type Scheduler struct {
	jobs     *MaintenanceJobs
	interval time.Duration
	logger   Logger
}

func NewScheduler(jobs *MaintenanceJobs, config Config) *Scheduler {
	config = config.withDefaults()
	return &Scheduler{
		jobs:     jobs,
		interval: config.MaintenanceInterval,
		logger:   defLogger{},
	}
}

func (s *Scheduler) WithLogger(logger Logger) *Scheduler {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Run blocks until the context is cancelled, sweeping once per interval.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single sweep of both jobs. Failures are logged and
// never abort the sweep.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if purged, err := s.jobs.PurgeExpiredVerifications(ctx); err != nil {
		s.logger.Error("purge expired verifications failed: %v", err)
	} else if purged > 0 {
		s.logger.Info("purged %d accounts with expired verifications", purged)
	}

	if lifted, err := s.jobs.LiftExpiredBans(ctx); err != nil {
		s.logger.Error("lift expired bans failed: %v", err)
	} else if lifted > 0 {
		s.logger.Info("lifted %d expired temporary bans", lifted)
	}
}
