// Package fieldcrypt encrypts designated string attributes at rest.
//
// A single process-wide key governs every model. Ciphertexts are Fernet tokens
// and therefore always start with Prefix, which doubles as the detect-marker
// that keeps encryption idempotent.
package fieldcrypt

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fernet/fernet-go"
)

// Prefix is the leading token of every ciphertext produced by Service.
const Prefix = "gAAAAA"

// tokenTTL disables Fernet timestamp expiry; stored fields never expire.
const tokenTTL = 100 * 365 * 24 * time.Hour

// ErrMissingKey is returned by New when no key material is configured.
var ErrMissingKey = errors.New("fieldcrypt: encryption key is not configured")

// ErrDecrypt is returned when a value is not a valid token for the configured key.
var ErrDecrypt = errors.New("fieldcrypt: decryption failed")

// Model is implemented by every type that carries encrypted attributes.
// Attr returns a pointer to the named string attribute, or nil if the model
// has no such attribute.
type Model interface {
	ModelName() string
	Attr(name string) *string
}

// Registry maps a model name to the attribute names stored encrypted.
type Registry map[string][]string

// DefaultRegistry lists the encrypted attributes of the built-in models.
func DefaultRegistry() Registry {
	return Registry{
		"user":   {"email", "phone"},
		"vendor": {"contact_email", "contact_phone"},
	}
}

// FailureFunc observes a per-field failure. op is "encrypt" or "decrypt".
type FailureFunc func(ctx context.Context, model, attr, op string)

// Service encrypts and decrypts model attributes. It is safe for concurrent use;
// the key is immutable after New.
type Service struct {
	key       *fernet.Key
	registry  Registry
	onFailure FailureFunc
}

// Option configures a Service.
type Option func(*Service)

// WithFailureFunc registers a callback invoked on every swallowed field failure.
func WithFailureFunc(fn FailureFunc) Option {
	return func(s *Service) { s.onFailure = fn }
}

// New builds a Service from raw key material. A value that decodes as a Fernet
// key is used as is; any other non-empty value is stretched with SHA-256.
func New(rawKey string, registry Registry, opts ...Option) (*Service, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return nil, ErrMissingKey
	}
	key, err := fernet.DecodeKey(rawKey)
	if err != nil {
		sum := sha256.Sum256([]byte(rawKey))
		key, err = fernet.DecodeKey(base64.URLEncoding.EncodeToString(sum[:]))
		if err != nil {
			return nil, fmt.Errorf("fieldcrypt: derive key: %w", err)
		}
	}
	if registry == nil {
		registry = DefaultRegistry()
	}
	s := &Service{key: key, registry: registry}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// GenerateKey returns a fresh encoded Fernet key, suitable for GRC_ENCRYPTION_KEY.
func GenerateKey() (string, error) {
	var k fernet.Key
	if err := k.Generate(); err != nil {
		return "", err
	}
	return k.Encode(), nil
}

// IsEncrypted reports whether v carries the ciphertext marker.
func IsEncrypted(v string) bool {
	return strings.HasPrefix(v, Prefix)
}

// Encrypt returns the ciphertext of plain. Empty and already encrypted values
// are returned unchanged.
func (s *Service) Encrypt(plain string) (string, error) {
	if plain == "" || IsEncrypted(plain) {
		return plain, nil
	}
	tok, err := fernet.EncryptAndSign([]byte(plain), s.key)
	if err != nil {
		return "", fmt.Errorf("fieldcrypt: encrypt: %w", err)
	}
	return string(tok), nil
}

// Decrypt returns the plaintext of v. Values without the marker are legacy
// plaintext and are returned unchanged.
func (s *Service) Decrypt(v string) (string, error) {
	if !IsEncrypted(v) {
		return v, nil
	}
	msg := fernet.VerifyAndDecrypt([]byte(v), tokenTTL, []*fernet.Key{s.key})
	if msg == nil {
		return "", ErrDecrypt
	}
	return string(msg), nil
}

// Fields returns the encrypted attribute names configured for model.
func (s *Service) Fields(model string) []string {
	return s.registry[model]
}

// EncryptModel replaces every configured attribute of m with its ciphertext.
// A failing field is logged and left untouched so the write still proceeds.
func (s *Service) EncryptModel(ctx context.Context, m Model) {
	name := m.ModelName()
	for _, attr := range s.registry[name] {
		p := m.Attr(attr)
		if p == nil || *p == "" || IsEncrypted(*p) {
			continue
		}
		ct, err := s.Encrypt(*p)
		if err != nil {
			slog.WarnContext(ctx, "field encryption failed", "model", name, "field", attr, "error", err)
			s.fail(ctx, name, attr, "encrypt")
			continue
		}
		*p = ct
	}
}

// Plain returns the readable value of attr on m: the decrypted plaintext, or the
// raw stored value when decryption fails.
func (s *Service) Plain(ctx context.Context, m Model, attr string) string {
	p := m.Attr(attr)
	if p == nil {
		return ""
	}
	v, err := s.Decrypt(*p)
	if err != nil {
		slog.WarnContext(ctx, "field decryption failed", "model", m.ModelName(), "field", attr, "error", err)
		s.fail(ctx, m.ModelName(), attr, "decrypt")
		return *p
	}
	return v
}

// PlainFields returns the readable value of every configured attribute of m.
func (s *Service) PlainFields(ctx context.Context, m Model) map[string]string {
	attrs := s.registry[m.ModelName()]
	out := make(map[string]string, len(attrs))
	for _, attr := range attrs {
		if m.Attr(attr) == nil {
			continue
		}
		out[attr] = s.Plain(ctx, m, attr)
	}
	return out
}

func (s *Service) fail(ctx context.Context, model, attr, op string) {
	if s.onFailure != nil {
		s.onFailure(ctx, model, attr, op)
	}
}
