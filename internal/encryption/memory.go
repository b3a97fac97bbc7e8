package encryption

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/clinovault/clinovault/internal/schema"
)

const memoryPrefix = "mem:v1:"

// MemoryGateway is a reversible in-process stand-in for the external
// provider, used in tests and local development. It performs no real
// cryptography. Failures can be injected per field to exercise the
// projector's isolation behavior.
type MemoryGateway struct {
	mu           sync.Mutex
	unavailable  map[string]struct{}
	encryptCalls int
	decryptCalls int
}

// NewMemoryGateway returns an empty gateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{unavailable: make(map[string]struct{})}
}

// FailKey marks a field so subsequent operations on it return
// ErrKeyUnavailable.
func (g *MemoryGateway) FailKey(recordType, fieldName string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unavailable[recordType+"."+fieldName] = struct{}{}
}

// Encrypt encodes the plaintext with a recognizable prefix.
func (g *MemoryGateway) Encrypt(ctx context.Context, descriptor schema.FieldDescriptor, plaintext string) (string, error) {
	if err := g.checkKey(descriptor, "encrypt"); err != nil {
		return "", err
	}
	g.mu.Lock()
	g.encryptCalls++
	g.mu.Unlock()
	return memoryPrefix + base64.StdEncoding.EncodeToString([]byte(plaintext)), nil
}

// Decrypt reverses Encrypt. Input without the expected prefix is malformed.
func (g *MemoryGateway) Decrypt(ctx context.Context, descriptor schema.FieldDescriptor, ciphertext string) (string, error) {
	if err := g.checkKey(descriptor, "decrypt"); err != nil {
		return "", err
	}
	g.mu.Lock()
	g.decryptCalls++
	g.mu.Unlock()
	if !strings.HasPrefix(ciphertext, memoryPrefix) {
		return "", fmt.Errorf("%w: %s.%s", ErrMalformedCiphertext, descriptor.RecordType, descriptor.FieldName)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, memoryPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %s.%s: %w", ErrMalformedCiphertext, descriptor.RecordType, descriptor.FieldName, err)
	}
	return string(decoded), nil
}

// DecryptCalls reports how many successful-path decrypt invocations happened.
func (g *MemoryGateway) DecryptCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decryptCalls
}

// EncryptCalls reports how many successful-path encrypt invocations happened.
func (g *MemoryGateway) EncryptCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.encryptCalls
}

func (g *MemoryGateway) checkKey(descriptor schema.FieldDescriptor, op string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.unavailable[descriptor.RecordType+"."+descriptor.FieldName]; ok {
		return fmt.Errorf("%w: %s %s.%s", ErrKeyUnavailable, op, descriptor.RecordType, descriptor.FieldName)
	}
	return nil
}
