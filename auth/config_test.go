package auth

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Provider: "static",
		Static: &StaticConfig{
			Users: []UserConfig{
				{
					APIKey:      "admin-key",
					DisplayName: "Admin",
					Role:        "admin",
				},
				{
					APIKey:         "reader-key",
					DisplayName:    "Reader",
					Role:           "readonly",
					AllowedBuckets: []string{"data"},
					RateLimit:      10,
					RateWindow:     30 * time.Second,
				},
			},
		},
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		if err := validConfig().Validate(); err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
	})

	t.Run("EmptyProvider", func(t *testing.T) {
		cfg := validConfig()
		cfg.Provider = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for empty provider")
		}
	})

	t.Run("UnknownProvider", func(t *testing.T) {
		cfg := validConfig()
		cfg.Provider = "vault"
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for unknown provider")
		}
	})

	t.Run("NoUsers", func(t *testing.T) {
		cfg := validConfig()
		cfg.Static.Users = nil
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for empty user list")
		}
	})

	t.Run("EmptyAPIKey", func(t *testing.T) {
		cfg := validConfig()
		cfg.Static.Users[0].APIKey = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for empty api_key")
		}
	})

	t.Run("InvalidRole", func(t *testing.T) {
		cfg := validConfig()
		cfg.Static.Users[0].Role = "root"
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for invalid role")
		}
	})

	t.Run("NonAdminNeedsBuckets", func(t *testing.T) {
		cfg := validConfig()
		cfg.Static.Users[1].AllowedBuckets = nil
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for readonly user without allowed_buckets")
		}
	})

	t.Run("DuplicateAPIKey", func(t *testing.T) {
		cfg := validConfig()
		cfg.Static.Users[1].APIKey = cfg.Static.Users[0].APIKey
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for duplicate api_key")
		}
	})
}

func TestUserConfig_ToPrincipal(t *testing.T) {
	t.Run("ExplicitLimits", func(t *testing.T) {
		user := UserConfig{
			APIKey:         "k",
			DisplayName:    "u",
			Role:           "readwrite",
			AllowedBuckets: []string{"data"},
			RateLimit:      42,
			RateWindow:     10 * time.Second,
		}

		p := user.ToPrincipal()
		if p.Role != RoleReadWrite {
			t.Errorf("Expected role readwrite, got %s", p.Role)
		}
		if p.RateLimit != 42 || p.RateWindow != 10*time.Second {
			t.Errorf("Expected explicit limits to be kept, got %d/%s", p.RateLimit, p.RateWindow)
		}
	})

	t.Run("DefaultLimits", func(t *testing.T) {
		user := UserConfig{APIKey: "k", Role: "admin"}

		p := user.ToPrincipal()
		if p.RateLimit != DefaultRateLimit {
			t.Errorf("Expected default rate limit %d, got %d", DefaultRateLimit, p.RateLimit)
		}
		if p.RateWindow != DefaultRateWindow {
			t.Errorf("Expected default rate window %s, got %s", DefaultRateWindow, p.RateWindow)
		}
	})
}

func TestNewAuthorizerFromConfig(t *testing.T) {
	t.Run("Static", func(t *testing.T) {
		authorizer, err := NewAuthorizerFromConfig(validConfig(), nil)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if authorizer == nil {
			t.Fatal("Expected authorizer instance")
		}
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		cfg := validConfig()
		cfg.Static.Users = nil
		if _, err := NewAuthorizerFromConfig(cfg, nil); err == nil {
			t.Error("Expected error for invalid config")
		}
	})
}
