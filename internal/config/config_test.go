package config

import (
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envMap(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr() != ":8080" {
		t.Errorf("expected :8080, got %q", cfg.Addr())
	}
	if cfg.DataDir != "./data" || cfg.StoreBackend != "file" {
		t.Errorf("unexpected storage defaults: %+v", cfg)
	}
	if cfg.SyncInterval != 5*time.Minute {
		t.Errorf("expected 5m sync interval, got %v", cfg.SyncInterval)
	}
	if !cfg.AdminDataRequireSession {
		t.Error("admin data should require a session by default")
	}
	if cfg.SessionSecret != DevSessionSecret {
		t.Errorf("expected dev secret default, got %q", cfg.SessionSecret)
	}
	if cfg.SecureCookies {
		t.Error("http frontend should not force secure cookies")
	}
	if cfg.RateLimitPerMinute != 30 {
		t.Errorf("expected 30/min, got %d", cfg.RateLimitPerMinute)
	}
	if cfg.TrustedProxyCount != 1 {
		t.Errorf("expected one trusted proxy, got %d", cfg.TrustedProxyCount)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"PORT":                       "9000",
		"FRONTEND_URL":               "https://example.org",
		"STORE_BACKEND":              "Postgres",
		"SYNC_TARGET":                "dynamodb",
		"SYNC_INTERVAL":              "90s",
		"ADMIN_ID":                   "admin",
		"ADMIN_PASSWORD":             "pw",
		"ADMIN_DATA_REQUIRE_SESSION": "false",
		"RATE_LIMIT_PER_MINUTE":      "5",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9000" || cfg.StoreBackend != "postgres" || cfg.SyncTarget != "dynamodb" {
		t.Errorf("unexpected values: %+v", cfg)
	}
	if cfg.SyncInterval != 90*time.Second {
		t.Errorf("expected 90s, got %v", cfg.SyncInterval)
	}
	if cfg.AdminDataRequireSession {
		t.Error("expected session gate disabled")
	}
	if !cfg.SecureCookies {
		t.Error("https frontend should enable secure cookies")
	}
	if cfg.AdminID != "admin" || cfg.AdminPassword != "pw" || cfg.RateLimitPerMinute != 5 {
		t.Errorf("unexpected admin/rate values: %+v", cfg)
	}
}

func TestFromEnv_AutoSyncTarget(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{"SYNC_TARGET": "auto"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SyncTarget != "" {
		t.Errorf("expected auto to resolve to empty, got %q", cfg.SyncTarget)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"backend":  {"STORE_BACKEND": "sqlite"},
		"target":   {"SYNC_TARGET": "couchdb"},
		"interval": {"SYNC_INTERVAL": "five minutes"},
		"negative": {"SYNC_INTERVAL": "-1m"},
		"rate":     {"RATE_LIMIT_PER_MINUTE": "0"},
		"gate":     {"ADMIN_DATA_REQUIRE_SESSION": "maybe"},
		"cookie":   {"COOKIE_SECURE": "sometimes"},
	}
	for name, env := range cases {
		if _, err := FromEnv(envMap(env)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestFromEnv_S3RequiresBucket(t *testing.T) {
	if _, err := FromEnv(envMap(map[string]string{"STORE_BACKEND": "s3"})); err == nil {
		t.Error("expected error when S3_BUCKET is missing")
	}

	cfg, err := FromEnv(envMap(map[string]string{"STORE_BACKEND": "s3", "S3_BUCKET": "forms"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.S3Bucket != "forms" || cfg.S3Prefix != "data" {
		t.Errorf("unexpected s3 settings: %q %q", cfg.S3Bucket, cfg.S3Prefix)
	}
}

func TestFromEnv_TrustedProxyCount(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{"TRUSTED_PROXY_COUNT": "0"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TrustedProxyCount != 0 {
		t.Errorf("expected 0, got %d", cfg.TrustedProxyCount)
	}
	for _, v := range []string{"-1", "two"} {
		if _, err := FromEnv(envMap(map[string]string{"TRUSTED_PROXY_COUNT": v})); err == nil {
			t.Errorf("TRUSTED_PROXY_COUNT=%q: expected error", v)
		}
	}
}
