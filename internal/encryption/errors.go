package encryption

import "errors"

// Gateway failures are split into two kinds so callers can distinguish an
// unreachable or missing key from ciphertext that cannot be parsed. Both are
// isolated per field on the read path and fatal to the whole write on the
// write path.
var (
	ErrKeyUnavailable      = errors.New("encryption: key unavailable")
	ErrMalformedCiphertext = errors.New("encryption: malformed ciphertext")
)

// KeyUnavailable reports whether err is a key availability failure.
func KeyUnavailable(err error) bool {
	return errors.Is(err, ErrKeyUnavailable)
}

// MalformedCiphertext reports whether err is a ciphertext parse failure.
func MalformedCiphertext(err error) bool {
	return errors.Is(err, ErrMalformedCiphertext)
}
