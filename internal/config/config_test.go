package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("CURRENCY", "")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "not-a-number")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.Currency != "BOB" {
		t.Fatalf("expected default currency BOB, got %q", cfg.Currency)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected TTL fallback 480, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestLoadNormalizesCurrency(t *testing.T) {
	t.Setenv("CURRENCY", "usd")

	cfg := Load()
	if cfg.Currency != "USD" {
		t.Fatalf("expected USD, got %q", cfg.Currency)
	}
}
