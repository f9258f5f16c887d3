package account

import (
	"crypto/rand"
	"encoding/hex"

	goerrors "github.com/goliatone/go-errors"
)

// alphanumeric charset used for human-shareable strings. Hex is preferred
// for machine-facing tokens.
const base62Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ" + "abcdefghijklmnopqrstuvwxyz" + "0123456789"

// RandomHex returns size cryptographically random bytes hex encoded, so
// the resulting string is 2*size characters long.
func RandomHex(size int) (string, error) {
	b, err := randomBytes(size)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// RandomString returns a random alphanumeric string of length size. The
// modulo mapping introduces a slight bias that is irrelevant at the sizes
// used here.
func RandomString(size int) (string, error) {
	b, err := randomBytes(size)
	if err != nil {
		return "", err
	}

	out := make([]byte, size)
	for i, c := range b {
		out[i] = base62Chars[int(c)%len(base62Chars)]
	}
	return string(out), nil
}

func randomBytes(size int) ([]byte, error) {
	if size <= 0 {
		return nil, goerrors.New("random size must be positive", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read random bytes")
	}
	return b, nil
}
