package account

import (
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes surfaced alongside structured errors so routing layers can
// branch without string matching on messages.
const (
	TextCodeAccountNotFound     = "ACCOUNT_NOT_FOUND"
	TextCodeInvalidCreds        = "INVALID_CREDENTIALS"
	TextCodeInvalidProof        = "INVALID_PROOF"
	TextCodeEmailTaken          = "EMAIL_TAKEN"
	TextCodeWalletTaken         = "WALLET_TAKEN"
	TextCodeWalletLinked        = "WALLET_ALREADY_LINKED"
	TextCodeAlreadyVerified     = "ALREADY_VERIFIED"
	TextCodeNotVerified         = "ACCOUNT_NOT_VERIFIED"
	TextCodeVerificationPending = "VERIFICATION_PENDING"
	TextCodeTokenInvalid        = "TOKEN_INVALID"
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeTempBanned          = "ACCOUNT_TEMP_BANNED"
	TextCodePermanentBanned     = "ACCOUNT_BANNED"
	TextCodeChangePending       = "EMAIL_CHANGE_PENDING"
	TextCodeChangeCooldown      = "EMAIL_CHANGE_COOLDOWN"
	TextCodePasswordPolicy      = "PASSWORD_POLICY"
	TextCodePasswordMismatch    = "PASSWORD_CONFIRM_MISMATCH"
	TextCodeEmptyPassword       = "EMPTY_PASSWORD"
	TextCodeInvalidAdminSecret  = "INVALID_ADMIN_SECRET"
	TextCodeCodeNotFound        = "INVITE_CODE_NOT_FOUND"
	TextCodeCodeExpired         = "INVITE_CODE_EXPIRED"
	TextCodeCodeRedeemed        = "INVITE_CODE_REDEEMED"
	TextCodeCodeExhausted       = "INVITE_CODE_EXHAUSTED"
	TextCodePurposeRedeemed     = "PURPOSE_ALREADY_REDEEMED"
	TextCodeUniqueHashMismatch  = "INVALID_UNIQUE_HASH"
)

// ErrAccountNotFound is returned when the target account does not exist.
// Login deliberately never returns it; see ErrInvalidCredentials.
var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidCredentials is the uniform login failure. The message is
// identical whether the email is unknown or the password is wrong, so
// callers cannot enumerate accounts.
var ErrInvalidCredentials = goerrors.New("email or password incorrect", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds)

// ErrInvalidProof is returned when neither the password nor the unique
// hash validates a wallet-link request.
var ErrInvalidProof = goerrors.New("neither password nor unique hash matched", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidProof)

// ErrMismatchedHashAndPassword is the low-level bcrypt mismatch error.
var ErrMismatchedHashAndPassword = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds)

// ErrNoEmptyString rejects empty passwords before hashing.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

var ErrEmailTaken = goerrors.New("email already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(goerrors.CodeConflict)

var ErrWalletTaken = goerrors.New("wallet already linked to another account", goerrors.CategoryConflict).
	WithTextCode(TextCodeWalletTaken).
	WithCode(goerrors.CodeConflict)

var ErrWalletAlreadyLinked = goerrors.New("account already has a linked wallet", goerrors.CategoryConflict).
	WithTextCode(TextCodeWalletLinked).
	WithCode(goerrors.CodeConflict)

// ErrAlreadyVerified is returned when a verification is attempted against
// an account that has already confirmed its email.
var ErrAlreadyVerified = goerrors.New("account is already verified", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyVerified).
	WithCode(goerrors.CodeConflict)

// ErrNotVerified blocks logins until the pending email verification completes.
var ErrNotVerified = goerrors.New("account email has not been verified", goerrors.CategoryAuth).
	WithTextCode(TextCodeNotVerified)

var ErrVerificationPending = goerrors.New("a verification token is already pending", goerrors.CategoryConflict).
	WithTextCode(TextCodeVerificationPending).
	WithCode(goerrors.CodeConflict)

var ErrTokenInvalid = goerrors.New("token does not match", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid)

var ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrPermanentBan is terminal; only manual support intervention clears it.
var ErrPermanentBan = goerrors.New("account is permanently banned", goerrors.CategoryAuth).
	WithTextCode(TextCodePermanentBanned)

var ErrChangePending = goerrors.New("an email change is already pending confirmation", goerrors.CategoryConflict).
	WithTextCode(TextCodeChangePending).
	WithCode(goerrors.CodeConflict)

var ErrChangeCooldown = goerrors.New("email was changed recently, try again later", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeChangeCooldown)

var ErrPasswordConfirmMismatch = goerrors.New("password confirmation does not match", goerrors.CategoryValidation).
	WithTextCode(TextCodePasswordMismatch).
	WithCode(goerrors.CodeBadRequest)

var ErrInvalidAdminSecret = goerrors.New("invalid admin secret", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidAdminSecret)

var ErrCodeNotFound = goerrors.New("invite code not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeCodeNotFound).
	WithCode(goerrors.CodeNotFound)

var ErrCodeExpired = goerrors.New("invite code has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeCodeExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrCodeRedeemed covers single-use codes. The redeemer is deliberately
// not disclosed.
var ErrCodeRedeemed = goerrors.New("invite code has already been redeemed", goerrors.CategoryConflict).
	WithTextCode(TextCodeCodeRedeemed).
	WithCode(goerrors.CodeConflict)

var ErrCodeExhausted = goerrors.New("invite code has reached its maximum uses", goerrors.CategoryConflict).
	WithTextCode(TextCodeCodeExhausted).
	WithCode(goerrors.CodeConflict)

var ErrPurposeRedeemed = goerrors.New("account already redeemed a code for this purpose", goerrors.CategoryConflict).
	WithTextCode(TextCodePurposeRedeemed).
	WithCode(goerrors.CodeConflict)

var ErrUniqueHashMismatch = goerrors.New("unique hash does not match this account", goerrors.CategoryAuth).
	WithTextCode(TextCodeUniqueHashMismatch)

// NewTempBanError builds the rejection for a login attempted while a
// temporary ban is active. The remaining duration is part of the message.
func NewTempBanError(remaining time.Duration) *goerrors.Error {
	remaining = remaining.Round(time.Second)
	if remaining < 0 {
		remaining = 0
	}
	return goerrors.New(
		fmt.Sprintf("account is temporarily banned, try again in %s", remaining),
		goerrors.CategoryAuth,
	).
		WithTextCode(TextCodeTempBanned).
		WithMetadata(map[string]any{"retry_in": remaining.String()})
}

// NewAttemptsWarning decorates the uniform credentials failure with the
// number of attempts left before a temporary ban.
func NewAttemptsWarning(remaining int) *goerrors.Error {
	return goerrors.New(
		fmt.Sprintf("email or password incorrect, %d attempts remaining", remaining),
		goerrors.CategoryAuth,
	).
		WithTextCode(TextCodeInvalidCreds).
		WithMetadata(map[string]any{"attempts_remaining": remaining})
}

// NewPasswordPolicyError wraps a policy violation with the validation details.
func NewPasswordPolicyError(reason error) *goerrors.Error {
	return goerrors.Wrap(reason, goerrors.CategoryValidation, "password does not meet the policy").
		WithTextCode(TextCodePasswordPolicy).
		WithCode(goerrors.CodeBadRequest)
}
