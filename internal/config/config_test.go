package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORE_DRIVER", "RETENTION_DAYS", "DEFAULT_CONSULTATION_MINUTES", "STAFF_USERS", "TIMEZONE", "RETENTION_CRON", "NOTIFY_REMIND_AT_POSITION", "NOTIFY_QUEUE", "NOTIFY_ADVANCE_DEPTH"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected port 8080, got %s", cfg.Port)
	}
	if cfg.StoreDriver != "memory" {
		t.Fatalf("expected memory driver, got %s", cfg.StoreDriver)
	}
	if cfg.DefaultConsultation != 15*time.Minute {
		t.Fatalf("expected 15m default, got %s", cfg.DefaultConsultation)
	}
	if cfg.RetentionDays != 1 || cfg.RetentionCron != "5 0 * * *" {
		t.Fatalf("unexpected retention %d %q", cfg.RetentionDays, cfg.RetentionCron)
	}
	if cfg.NotifyQueue != "notifications" || cfg.NotifyRemindAt != 2 || cfg.NotifyAdvanceDepth != 5 {
		t.Fatalf("unexpected notify defaults %q %d %d", cfg.NotifyQueue, cfg.NotifyRemindAt, cfg.NotifyAdvanceDepth)
	}
	if len(cfg.StaffUsers) != 0 {
		t.Fatalf("expected no staff users, got %v", cfg.StaffUsers)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("AVERAGE_WINDOW", "20")
	t.Setenv("RATE_LIMIT_BURST", "not-a-number")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("NOTIFY_ADVANCE_DEPTH", "3")
	t.Setenv("STAFF_USERS", "nurse:$2a$10$abc, desk:$2a$10$def,broken")

	cfg := Load()
	if cfg.StoreDriver != "postgres" {
		t.Fatalf("expected postgres, got %s", cfg.StoreDriver)
	}
	if cfg.AverageWindow != 20 {
		t.Fatalf("expected window 20, got %d", cfg.AverageWindow)
	}
	if cfg.RateLimitBurst != 30 {
		t.Fatalf("expected fallback burst 30, got %d", cfg.RateLimitBurst)
	}
	if cfg.NotifyAdvanceDepth != 3 {
		t.Fatalf("expected advance depth 3, got %d", cfg.NotifyAdvanceDepth)
	}
	if cfg.Location != time.UTC {
		t.Fatalf("expected UTC, got %s", cfg.Location)
	}
	if cfg.StaffUsers["nurse"] != "$2a$10$abc" || cfg.StaffUsers["desk"] != "$2a$10$def" || len(cfg.StaffUsers) != 2 {
		t.Fatalf("unexpected staff users %v", cfg.StaffUsers)
	}
}
