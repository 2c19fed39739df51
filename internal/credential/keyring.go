package credential

import (
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "tank-location-sync"

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.SecretServiceBackend,
			keyring.KeychainBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/tank-location-sync/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("tank-location-sync-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// MailKey is the keyring entry holding the mailbox password for login
func MailKey(login string) string {
	return "mail:" + login
}

// Lookup is the signature of Get, swappable in tests
type Lookup func(key string) (string, error)

// ResolvePassword returns configured when set, otherwise the keyring value for login
func ResolvePassword(configured, login string, lookup Lookup) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if lookup == nil {
		lookup = Get
	}
	password, err := lookup(MailKey(login))
	if err != nil {
		return "", fmt.Errorf("no password configured for %s: %w", login, err)
	}
	return password, nil
}
