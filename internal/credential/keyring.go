package credential

import (
	"errors"
	"fmt"
	"strings"

	"github.com/99designs/keyring"
)

const (
	serviceName     = "webmail"
	clientSecretKey = "google-oauth-client-secret"
)

var (
	// ErrNotFound is returned when the keyring holds no client secret.
	ErrNotFound = errors.New("client secret not found in keyring")

	// ErrEmptySecret is returned when storing a blank client secret.
	ErrEmptySecret = errors.New("client secret is empty")
)

// SecretStore keeps the Google OAuth client secret in a keyring so it can
// stay out of the config file. The keyring is opened on each call; a
// locked or missing backend surfaces as an error from that call only.
type SecretStore struct {
	open func() (keyring.Keyring, error)
}

// SystemSecrets returns a store backed by the operating system keyring,
// falling back to an encrypted file under ~/.config/webmail.
func SystemSecrets() *SecretStore {
	return &SecretStore{open: openSystemKeyring}
}

// NewSecretStore returns a store over an already opened keyring.
func NewSecretStore(ring keyring.Keyring) *SecretStore {
	return &SecretStore{open: func() (keyring.Keyring, error) { return ring, nil }}
}

func openSystemKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/webmail/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("webmail-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// ClientSecret returns the stored client secret. A missing or blank entry
// yields ErrNotFound.
func (s *SecretStore) ClientSecret() (string, error) {
	ring, err := s.open()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(clientSecretKey)
	switch {
	case errors.Is(err, keyring.ErrKeyNotFound):
		return "", ErrNotFound
	case err != nil:
		return "", fmt.Errorf("reading client secret: %w", err)
	}

	secret := strings.TrimSpace(string(item.Data))
	if secret == "" {
		return "", ErrNotFound
	}
	return secret, nil
}

// SetClientSecret stores secret, replacing any previous value.
func (s *SecretStore) SetClientSecret(secret string) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ErrEmptySecret
	}

	ring, err := s.open()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:         clientSecretKey,
		Data:        []byte(secret),
		Label:       "webmail Google OAuth client secret",
		Description: "OAuth client secret for Google sign-in",
	})
	if err != nil {
		return fmt.Errorf("storing client secret: %w", err)
	}
	return nil
}

// DeleteClientSecret removes the stored client secret. Deleting a secret
// that was never stored yields ErrNotFound.
func (s *SecretStore) DeleteClientSecret() error {
	ring, err := s.open()
	if err != nil {
		return err
	}

	if _, err := ring.Get(clientSecretKey); errors.Is(err, keyring.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err := ring.Remove(clientSecretKey); err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting client secret: %w", err)
	}
	return nil
}
