package crypto

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// EncryptedMarker is the key under which an encrypted credential blob keeps its ciphertext.
const EncryptedMarker = "_encrypted"

// Credentials is a decrypted connection secret set, e.g. username/password
// for basic auth or access_token/client_id/client_secret for oauth2.
type Credentials map[string]string

// CredentialCodec turns credential sets into encrypted blobs and back.
// Build it once at startup from configuration and pass it to whoever needs it.
type CredentialCodec struct {
	encryptor *Encryptor
	logger    *slog.Logger
}

// NewCredentialCodec creates a codec whose key is derived from secret.
func NewCredentialCodec(secret string, logger *slog.Logger) (*CredentialCodec, error) {
	encryptor, err := NewEncryptorFromSecret(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential encryptor: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialCodec{encryptor: encryptor, logger: logger}, nil
}

// Encrypt serializes and encrypts a credential set into a blob of the form
// {"_encrypted": "<base64 nonce+ciphertext>"}.
func (c *CredentialCodec) Encrypt(creds Credentials) (map[string]any, error) {
	if creds == nil {
		creds = Credentials{}
	}
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credentials: %w", err)
	}

	token, err := c.encryptor.Encrypt(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	return map[string]any{EncryptedMarker: token}, nil
}

// Decrypt reverses Encrypt. It fails closed: a malformed blob or one sealed
// with a different secret yields an empty credential set, never an error.
// Blobs without the marker predate encryption and are returned as-is.
func (c *CredentialCodec) Decrypt(blob map[string]any) Credentials {
	if len(blob) == 0 {
		return Credentials{}
	}

	raw, ok := blob[EncryptedMarker]
	if !ok {
		return plainCredentials(blob)
	}

	token, ok := raw.(string)
	if !ok {
		c.logger.Warn("credential blob has a non-string ciphertext")
		return Credentials{}
	}

	plaintext, err := c.encryptor.Decrypt(token)
	if err != nil {
		c.logger.Warn("failed to decrypt credentials", slog.String("error", err.Error()))
		return Credentials{}
	}

	var creds Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		c.logger.Warn("decrypted credentials are not a JSON object", slog.String("error", err.Error()))
		return Credentials{}
	}
	return creds
}

// IsEncrypted reports whether the blob carries the encryption marker.
func IsEncrypted(blob map[string]any) bool {
	_, ok := blob[EncryptedMarker]
	return ok
}

func plainCredentials(blob map[string]any) Credentials {
	creds := make(Credentials, len(blob))
	for k, v := range blob {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			creds[k] = val
		default:
			creds[k] = fmt.Sprint(val)
		}
	}
	return creds
}
