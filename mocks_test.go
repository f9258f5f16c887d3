package account_test

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	account "github.com/nbcompany/go-account"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// sqlNotFound mirrors what the bun repositories return for a miss.
func sqlNotFound() error {
	return repository.NewRecordNotFound()
}

// MockUsers implements account.Users
type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) GetByID(ctx context.Context, id uuid.UUID) (*account.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*account.User)
	return user, args.Error(1)
}

func (m *MockUsers) GetByEmail(ctx context.Context, email string) (*account.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*account.User)
	return user, args.Error(1)
}

func (m *MockUsers) GetByWallet(ctx context.Context, wallet string) (*account.User, error) {
	args := m.Called(ctx, wallet)
	user, _ := args.Get(0).(*account.User)
	return user, args.Error(1)
}

func (m *MockUsers) GetByResetToken(ctx context.Context, token string) (*account.User, error) {
	args := m.Called(ctx, token)
	user, _ := args.Get(0).(*account.User)
	return user, args.Error(1)
}

func (m *MockUsers) EmailExists(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsers) Create(ctx context.Context, record *account.User) (*account.User, error) {
	args := m.Called(ctx, record)
	user, _ := args.Get(0).(*account.User)
	return user, args.Error(1)
}

func (m *MockUsers) CreateTx(ctx context.Context, tx bun.IDB, record *account.User) (*account.User, error) {
	args := m.Called(ctx, tx, record)
	user, _ := args.Get(0).(*account.User)
	return user, args.Error(1)
}

func (m *MockUsers) SetVerificationData(ctx context.Context, id uuid.UUID, data *account.VerificationData) error {
	args := m.Called(ctx, id, data)
	return args.Error(0)
}

func (m *MockUsers) MarkVerified(ctx context.Context, id uuid.UUID, token string) (bool, error) {
	args := m.Called(ctx, id, token)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsers) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	args := m.Called(ctx, id, hash)
	return args.Error(0)
}

func (m *MockUsers) SetPasswordReset(ctx context.Context, id uuid.UUID, data *account.VerificationData) error {
	args := m.Called(ctx, id, data)
	return args.Error(0)
}

func (m *MockUsers) ConsumePasswordReset(ctx context.Context, id uuid.UUID, token, hash string) (bool, error) {
	args := m.Called(ctx, id, token, hash)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsers) SetEmailChange(ctx context.Context, id uuid.UUID, data *account.EmailChangeData) error {
	args := m.Called(ctx, id, data)
	return args.Error(0)
}

func (m *MockUsers) CommitEmailChange(ctx context.Context, id uuid.UUID, email string, data *account.EmailChangeData) error {
	args := m.Called(ctx, id, email, data)
	return args.Error(0)
}

func (m *MockUsers) LinkWallet(ctx context.Context, id uuid.UUID, wallet string) (bool, error) {
	args := m.Called(ctx, id, wallet)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsers) ApplyLockout(ctx context.Context, id uuid.UUID, observedAttempts int, next account.LockoutUpdate) (bool, error) {
	args := m.Called(ctx, id, observedAttempts, next)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsers) TrackSuccessfulLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockUsers) ClearExpiredBans(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUsers) FindPendingVerifications(ctx context.Context) ([]*account.User, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]*account.User)
	return users, args.Error(1)
}

func (m *MockUsers) StripEmailAndVerification(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockUsers) HardDelete(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

// MockInviteCodes implements account.InviteCodes
type MockInviteCodes struct {
	mock.Mock
}

func (m *MockInviteCodes) GetByCode(ctx context.Context, code string) (*account.InviteCode, error) {
	args := m.Called(ctx, code)
	invite, _ := args.Get(0).(*account.InviteCode)
	return invite, args.Error(1)
}

func (m *MockInviteCodes) GetByCodeTx(ctx context.Context, tx bun.IDB, code string) (*account.InviteCode, error) {
	args := m.Called(ctx, tx, code)
	invite, _ := args.Get(0).(*account.InviteCode)
	return invite, args.Error(1)
}

func (m *MockInviteCodes) CreateBatch(ctx context.Context, codes []*account.InviteCode) error {
	args := m.Called(ctx, codes)
	return args.Error(0)
}

func (m *MockInviteCodes) Redeem(ctx context.Context, tx bun.IDB, code *account.InviteCode, redemption *account.InviteRedemption) (bool, error) {
	args := m.Called(ctx, tx, code, redemption)
	return args.Bool(0), args.Error(1)
}

func (m *MockInviteCodes) HasRedeemedPurpose(ctx context.Context, userID uuid.UUID, purpose string) (bool, error) {
	args := m.Called(ctx, userID, purpose)
	return args.Bool(0), args.Error(1)
}

// mockRepoManager wires the mock repositories behind the
// account.RepositoryManager interface. RunInTx executes the callback
// directly; the mocks ignore the transaction handle.
type mockRepoManager struct {
	users   *MockUsers
	invites *MockInviteCodes
}

func newMockRepoManager() *mockRepoManager {
	return &mockRepoManager{
		users:   new(MockUsers),
		invites: new(MockInviteCodes),
	}
}

func (m *mockRepoManager) Validate() error { return nil }

func (m *mockRepoManager) MustValidate() {}

func (m *mockRepoManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (m *mockRepoManager) Users() account.Users { return m.users }

func (m *mockRepoManager) InviteCodes() account.InviteCodes { return m.invites }

// MockMailer implements account.Mailer and captures every send.
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, to, subject, htmlBody string) (*account.DeliveryReceipt, error) {
	args := m.Called(ctx, to, subject, htmlBody)
	receipt, _ := args.Get(0).(*account.DeliveryReceipt)
	return receipt, args.Error(1)
}

// MockActivitySink implements account.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event account.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// capturingSink collects events in order without expectations.
type capturingSink struct {
	events []account.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt account.ActivityEvent) error {
	c.events = append(c.events, evt)
	return nil
}

// MockOracle implements account.OwnershipOracle
type MockOracle struct {
	mock.Mock
}

func (m *MockOracle) HasAsset(ctx context.Context, walletAddress string) (bool, error) {
	args := m.Called(ctx, walletAddress)
	return args.Bool(0), args.Error(1)
}

// MockLegacyProvider implements account.LegacyIdentityProvider
type MockLegacyProvider struct {
	mock.Mock
}

func (m *MockLegacyProvider) Login(ctx context.Context, email, password string) (*account.LegacySession, error) {
	args := m.Called(ctx, email, password)
	session, _ := args.Get(0).(*account.LegacySession)
	return session, args.Error(1)
}
