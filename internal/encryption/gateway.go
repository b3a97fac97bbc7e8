// Package encryption defines the gateway this service uses to reach an
// external encryption provider. The service decides whether a field may be
// encrypted or decrypted; it never implements the ciphers itself.
package encryption

import (
	"context"

	"github.com/clinovault/clinovault/internal/schema"
)

// Gateway encrypts and decrypts individual field values. Implementations must
// be safe for concurrent use; calls may block on network I/O.
type Gateway interface {
	Encrypt(ctx context.Context, descriptor schema.FieldDescriptor, plaintext string) (string, error)
	Decrypt(ctx context.Context, descriptor schema.FieldDescriptor, ciphertext string) (string, error)
}
