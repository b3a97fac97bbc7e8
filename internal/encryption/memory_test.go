package encryption

import (
	"context"
	"testing"

	"github.com/clinovault/clinovault/internal/schema"
)

var testDescriptor = schema.FieldDescriptor{
	RecordType:      "patient",
	FieldName:       "ssn",
	EncryptionClass: schema.ClassEquality,
	ReadAttribute:   "view-restricted-identifier",
	WriteAttribute:  "edit-restricted-identifier",
}

func TestMemoryGatewayRoundTrip(t *testing.T) {
	g := NewMemoryGateway()
	ciphertext, err := g.Encrypt(context.Background(), testDescriptor, "123-45-6789")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if ciphertext == "123-45-6789" {
		t.Fatalf("ciphertext equals plaintext")
	}
	plaintext, err := g.Decrypt(context.Background(), testDescriptor, ciphertext)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if plaintext != "123-45-6789" {
		t.Fatalf("round trip mismatch: %q", plaintext)
	}
}

func TestMemoryGatewayMalformedCiphertext(t *testing.T) {
	g := NewMemoryGateway()
	_, err := g.Decrypt(context.Background(), testDescriptor, "not-a-ciphertext")
	if err == nil {
		t.Fatalf("expected malformed ciphertext error")
	}
	if !MalformedCiphertext(err) {
		t.Fatalf("expected MalformedCiphertext kind, got %v", err)
	}
	if KeyUnavailable(err) {
		t.Fatalf("error kinds must be distinguishable")
	}
}

func TestMemoryGatewayInjectedKeyFailure(t *testing.T) {
	g := NewMemoryGateway()
	g.FailKey("patient", "ssn")
	_, err := g.Decrypt(context.Background(), testDescriptor, memoryPrefix+"AAAA")
	if err == nil {
		t.Fatalf("expected key unavailable error")
	}
	if !KeyUnavailable(err) {
		t.Fatalf("expected KeyUnavailable kind, got %v", err)
	}
}
