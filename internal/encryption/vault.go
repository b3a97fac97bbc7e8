package encryption

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/vault/api"

	"github.com/clinovault/clinovault/internal/schema"
)

// VaultGateway reaches a HashiCorp Vault Transit engine. One transit key
// exists per encryption class; equality keys are convergent so identical
// plaintext under the same field context yields identical ciphertext.
type VaultGateway struct {
	client *api.Client
	mount  string
	prefix string
}

// VaultConfig configures the transit gateway.
type VaultConfig struct {
	Address string
	Token   string
	// Mount is the transit engine mount path, usually "transit".
	Mount string
	// KeyPrefix namespaces the per-class key names, e.g. "clinovault".
	KeyPrefix string
}

// NewVaultGateway builds a gateway against the configured Vault server.
func NewVaultGateway(cfg VaultConfig) (*VaultGateway, error) {
	apiCfg := api.DefaultConfig()
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("encryption: vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	mount := cfg.Mount
	if mount == "" {
		mount = "transit"
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "clinovault"
	}
	return &VaultGateway{client: client, mount: mount, prefix: prefix}, nil
}

// EnsureKeys creates the per-class transit keys if they do not exist yet.
// Safe to call on every startup; Vault treats key creation as idempotent.
func (g *VaultGateway) EnsureKeys(ctx context.Context) error {
	for _, class := range []schema.EncryptionClass{schema.ClassEquality, schema.ClassRange, schema.ClassOpaque} {
		params := map[string]interface{}{"type": "aes256-gcm96"}
		if class != schema.ClassOpaque {
			// Searchable classes need key derivation so ciphertext is stable
			// per field context.
			params["derived"] = true
			params["convergent_encryption"] = true
		}
		path := fmt.Sprintf("%s/keys/%s", g.mount, g.keyName(class))
		if _, err := g.client.Logical().WriteWithContext(ctx, path, params); err != nil {
			return fmt.Errorf("%w: create transit key %s: %w", ErrKeyUnavailable, g.keyName(class), err)
		}
	}
	return nil
}

// Encrypt produces transit ciphertext for the field value.
func (g *VaultGateway) Encrypt(ctx context.Context, descriptor schema.FieldDescriptor, plaintext string) (string, error) {
	payload := map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString([]byte(plaintext)),
	}
	if descriptor.EncryptionClass != schema.ClassOpaque {
		payload["context"] = fieldContext(descriptor)
	}
	path := fmt.Sprintf("%s/encrypt/%s", g.mount, g.keyName(descriptor.EncryptionClass))
	resp, err := g.client.Logical().WriteWithContext(ctx, path, payload)
	if err != nil {
		return "", g.classify(err, "encrypt", descriptor)
	}
	ciphertext, ok := stringField(resp, "ciphertext")
	if !ok {
		return "", fmt.Errorf("%w: transit encrypt returned no ciphertext for %s.%s", ErrKeyUnavailable, descriptor.RecordType, descriptor.FieldName)
	}
	return ciphertext, nil
}

// Decrypt recovers the field plaintext from transit ciphertext.
func (g *VaultGateway) Decrypt(ctx context.Context, descriptor schema.FieldDescriptor, ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, "vault:") {
		return "", fmt.Errorf("%w: %s.%s ciphertext is not transit formatted", ErrMalformedCiphertext, descriptor.RecordType, descriptor.FieldName)
	}
	payload := map[string]interface{}{"ciphertext": ciphertext}
	if descriptor.EncryptionClass != schema.ClassOpaque {
		payload["context"] = fieldContext(descriptor)
	}
	path := fmt.Sprintf("%s/decrypt/%s", g.mount, g.keyName(descriptor.EncryptionClass))
	resp, err := g.client.Logical().WriteWithContext(ctx, path, payload)
	if err != nil {
		return "", g.classify(err, "decrypt", descriptor)
	}
	encoded, ok := stringField(resp, "plaintext")
	if !ok {
		return "", fmt.Errorf("%w: transit decrypt returned no plaintext for %s.%s", ErrKeyUnavailable, descriptor.RecordType, descriptor.FieldName)
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: decode transit plaintext: %w", ErrMalformedCiphertext, err)
	}
	return string(decoded), nil
}

func (g *VaultGateway) keyName(class schema.EncryptionClass) string {
	return fmt.Sprintf("%s-%s", g.prefix, class)
}

// classify splits Vault failures into the two error kinds the projector
// distinguishes. Transit reports unparsable ciphertext as a 400.
func (g *VaultGateway) classify(err error, op string, descriptor schema.FieldDescriptor) error {
	var respErr *api.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == 400 {
		return fmt.Errorf("%w: transit %s %s.%s: %w", ErrMalformedCiphertext, op, descriptor.RecordType, descriptor.FieldName, err)
	}
	return fmt.Errorf("%w: transit %s %s.%s: %w", ErrKeyUnavailable, op, descriptor.RecordType, descriptor.FieldName, err)
}

func fieldContext(descriptor schema.FieldDescriptor) string {
	return base64.StdEncoding.EncodeToString([]byte(descriptor.RecordType + "." + descriptor.FieldName))
}

func stringField(resp *api.Secret, key string) (string, bool) {
	if resp == nil || resp.Data == nil {
		return "", false
	}
	value, ok := resp.Data[key].(string)
	return value, ok
}
