package credential

import (
	"errors"
	"testing"
)

func TestResolvePassword_PrefersConfigured(t *testing.T) {
	called := false
	lookup := func(key string) (string, error) {
		called = true
		return "from-keyring", nil
	}

	got, err := ResolvePassword("from-config", "reports@example.com", lookup)
	if err != nil {
		t.Fatalf("ResolvePassword() error: %v", err)
	}
	if got != "from-config" {
		t.Errorf("ResolvePassword() = %q, want %q", got, "from-config")
	}
	if called {
		t.Error("Expected keyring not to be consulted when a password is configured")
	}
}

func TestResolvePassword_FallsBackToKeyring(t *testing.T) {
	var gotKey string
	lookup := func(key string) (string, error) {
		gotKey = key
		return "from-keyring", nil
	}

	got, err := ResolvePassword("", "reports@example.com", lookup)
	if err != nil {
		t.Fatalf("ResolvePassword() error: %v", err)
	}
	if got != "from-keyring" {
		t.Errorf("ResolvePassword() = %q, want %q", got, "from-keyring")
	}
	if gotKey != "mail:reports@example.com" {
		t.Errorf("Expected keyring key 'mail:reports@example.com', got %q", gotKey)
	}
}

func TestResolvePassword_KeyringFailure(t *testing.T) {
	lookup := func(key string) (string, error) {
		return "", errors.New("item not found")
	}

	if _, err := ResolvePassword("", "reports@example.com", lookup); err == nil {
		t.Fatal("Expected error when neither config nor keyring provide a password")
	}
}
