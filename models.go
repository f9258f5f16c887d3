package account

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// VerificationState is resolved once at load time so operations never
// re-derive it from nullable field combinations.
type VerificationState string

const (
	// StateVerified means the account confirmed its email.
	StateVerified VerificationState = "verified"
	// StateUnverified means a verification token is (or was) pending.
	StateUnverified VerificationState = "unverified"
	// StateLegacyUnverified tags accounts that predate the verification
	// token rollout: unverified but with no token ever issued.
	StateLegacyUnverified VerificationState = "legacy_unverified"
)

// VerificationData is a pending one-time token with its expiry. It exists
// only while a verification (or reset, or email change) is in flight.
type VerificationData struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token is past its validity.
func (v *VerificationData) Expired(now time.Time) bool {
	return v != nil && now.After(v.ExpiresAt)
}

// Value stores the record as a JSON document.
func (v *VerificationData) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Scan loads the record from a JSON document.
func (v *VerificationData) Scan(src any) error {
	return scanJSON(v, src)
}

// EmailChangeData tracks an email change request across its two phases:
// pending (Token set) and completed (LastChangeAt stamped).
type EmailChangeData struct {
	PreviousEmail string            `json:"previous_email,omitempty"`
	PendingEmail  string            `json:"pending_email,omitempty"`
	Token         *VerificationData `json:"token,omitempty"`
	LastChangeAt  *time.Time        `json:"last_change_at,omitempty"`
}

// Pending reports whether a change is awaiting confirmation.
func (e *EmailChangeData) Pending() bool {
	return e != nil && e.Token != nil
}

// Value stores the record as a JSON document.
func (e *EmailChangeData) Value() (driver.Value, error) {
	if e == nil {
		return nil, nil
	}
	return json.Marshal(e)
}

// Scan loads the record from a JSON document.
func (e *EmailChangeData) Scan(src any) error {
	return scanJSON(e, src)
}

func scanJSON(dst any, src any) error {
	switch data := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(data, dst)
	case string:
		return json.Unmarshal([]byte(data), dst)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
}

// User is the account model. Email and WalletAddress are each optional
// but never both absent; uniqueness on both is enforced by the store.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string    `bun:"email,unique,nullzero" json:"email,omitempty"`
	WalletAddress string    `bun:"wallet_address,unique,nullzero" json:"wallet_address,omitempty"`
	PasswordHash  string    `bun:"password_hash" json:"-"`

	// UniqueHash is a secondary secret usable as an authorization proof
	// where no password is available (wallet-only accounts).
	UniqueHash string `bun:"unique_hash,notnull" json:"-"`

	HasVerified   bool              `bun:"has_verified" json:"has_verified"`
	Verification  *VerificationData `bun:"verification_data,type:jsonb" json:"-"`
	EmailChange   *EmailChangeData  `bun:"email_change_data,type:jsonb" json:"-"`
	PasswordReset *VerificationData `bun:"password_reset_data,type:jsonb" json:"-"`

	// Lockout columns are flat so escalation can compare-and-set on the
	// attempt counter in a single statement.
	FailedAttempts  int        `bun:"failed_attempts" json:"failed_attempts,omitempty"`
	TempBanned      bool       `bun:"temp_banned" json:"temp_banned,omitempty"`
	PermanentBanned bool       `bun:"permanent_banned" json:"permanent_banned,omitempty"`
	UnbanAt         *time.Time `bun:"unban_at,nullzero" json:"unban_at,omitempty"`

	LoggedInAt *time.Time `bun:"loggedin_at,nullzero" json:"loggedin_at,omitempty"`
	CreatedAt  *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt  *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// VerificationState resolves the account's verification variant.
func (u *User) VerificationState() VerificationState {
	switch {
	case u.HasVerified:
		return StateVerified
	case u.Verification != nil:
		return StateUnverified
	default:
		return StateLegacyUnverified
	}
}

// NormalizeEmail lowers and trims an email for case-insensitive matching.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// InviteCode is a pre-provisioned access credential. Single-use codes
// keep MaxUses at 1; multi-use codes carry an explicit cap.
type InviteCode struct {
	bun.BaseModel `bun:"table:invite_codes,alias:inv"`

	ID        uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Code      string    `bun:"code,notnull,unique" json:"code"`
	Purpose   string    `bun:"purpose,notnull" json:"purpose"`
	MultiUse  bool      `bun:"multi_use" json:"multi_use"`
	MaxUses   int       `bun:"max_uses,notnull" json:"max_uses"`
	TimesUsed int       `bun:"times_used" json:"times_used"`
	ExpiresAt time.Time `bun:"expires_at,notnull" json:"expires_at"`

	Redemptions []*InviteRedemption `bun:"rel:has-many,join:id=code_id" json:"redemptions,omitempty"`

	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Expired reports whether the code is past its validity.
func (c *InviteCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Exhausted reports whether the code has no uses left.
func (c *InviteCode) Exhausted() bool {
	return c.TimesUsed >= c.MaxUses
}

// InviteRedemption records a single use of a code. The composite unique
// index on (redeemed_by, purpose) is what guarantees an account redeems
// at most one code per purpose, ever.
type InviteRedemption struct {
	bun.BaseModel `bun:"table:invite_redemptions,alias:rdm"`

	ID         uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	CodeID     uuid.UUID `bun:"code_id,notnull,type:uuid" json:"code_id"`
	Purpose    string    `bun:"purpose,notnull,unique:one_redemption_per_purpose" json:"purpose"`
	RedeemedBy uuid.UUID `bun:"redeemed_by,notnull,type:uuid,unique:one_redemption_per_purpose" json:"redeemed_by"`
	RedeemedAt time.Time `bun:"redeemed_at,notnull" json:"redeemed_at"`
}

// NormalizePurpose upper-cases a purpose tag and strips all whitespace.
func NormalizePurpose(purpose string) string {
	return strings.ToUpper(strings.Join(strings.Fields(purpose), ""))
}
