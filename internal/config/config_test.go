package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.ManagerPIN != "" {
		t.Fatalf("expected empty MANAGER_PIN when unset, got %q", cfg.ManagerPIN)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DEBT_CACHE_TTL_SECONDS", "")
	t.Setenv("DEFAULT_PHONE_REGION", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.DebtCacheTTLSeconds != 30 {
		t.Fatalf("expected default cache TTL 30, got %d", cfg.DebtCacheTTLSeconds)
	}
	if cfg.DefaultPhoneRegion != "UZ" {
		t.Fatalf("expected default phone region UZ, got %q", cfg.DefaultPhoneRegion)
	}
}

func TestLoadRejectsNonPositiveTTL(t *testing.T) {
	t.Setenv("DEBT_CACHE_TTL_SECONDS", "-5")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "bogus")

	cfg := Load()
	if cfg.DebtCacheTTLSeconds != 30 {
		t.Fatalf("expected TTL fallback 30, got %d", cfg.DebtCacheTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected token TTL fallback 480, got %d", cfg.AccessTokenTTLMinutes)
	}
}
