package main

import (
	"os"
	"path/filepath"
	"testing"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"COACHPIPE_STATE_DIR", "DATABASE_DSN", "DATABASE_URL",
		"WHATSAPP_DB_DSN", "API_ADDR", "ENGAGEMENT_SCAN_SCHEDULE", "NOTIFIER",
	} {
		os.Unsetenv(key)
	}
}

func TestLoadEnvironmentConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	config := loadEnvironmentConfig()

	if config.StateDir != DefaultStateDir {
		t.Errorf("Expected default state dir %q, got %q", DefaultStateDir, config.StateDir)
	}

	expectedAppDSN := filepath.Join(DefaultStateDir, DefaultAppDBFileName)
	if config.ApplicationDBDSN != expectedAppDSN {
		t.Errorf("Expected default app DSN %q, got %q", expectedAppDSN, config.ApplicationDBDSN)
	}

	expectedWhatsAppDSN := "file:" + filepath.Join(DefaultStateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	if config.WhatsAppDBDSN != expectedWhatsAppDSN {
		t.Errorf("Expected default WhatsApp DSN %q, got %q", expectedWhatsAppDSN, config.WhatsAppDBDSN)
	}
}

func TestLoadEnvironmentConfigLegacyDatabaseURL(t *testing.T) {
	clearConfigEnv(t)

	legacyDSN := "postgres://coach:pw@localhost/coachpipe"
	os.Setenv("DATABASE_URL", legacyDSN)
	defer os.Unsetenv("DATABASE_URL")

	config := loadEnvironmentConfig()

	if config.ApplicationDBDSN != legacyDSN {
		t.Errorf("Expected app DSN to fall back to DATABASE_URL %q, got %q", legacyDSN, config.ApplicationDBDSN)
	}
}

func TestLoadEnvironmentConfigSeparateDSNs(t *testing.T) {
	clearConfigEnv(t)

	appDSN := "postgres://coach:pw@localhost/app"
	whatsappDSN := "postgres://coach:pw@localhost/whatsapp"
	os.Setenv("DATABASE_DSN", appDSN)
	os.Setenv("WHATSAPP_DB_DSN", whatsappDSN)
	defer func() {
		os.Unsetenv("DATABASE_DSN")
		os.Unsetenv("WHATSAPP_DB_DSN")
	}()

	config := loadEnvironmentConfig()

	if config.ApplicationDBDSN != appDSN {
		t.Errorf("Expected app DSN %q, got %q", appDSN, config.ApplicationDBDSN)
	}
	if config.WhatsAppDBDSN != whatsappDSN {
		t.Errorf("Expected WhatsApp DSN %q, got %q", whatsappDSN, config.WhatsAppDBDSN)
	}
}

func TestLoadEnvironmentConfigCustomStateDir(t *testing.T) {
	clearConfigEnv(t)

	customStateDir := "/tmp/custom_coachpipe"
	os.Setenv("COACHPIPE_STATE_DIR", customStateDir)
	defer os.Unsetenv("COACHPIPE_STATE_DIR")

	config := loadEnvironmentConfig()

	if config.StateDir != customStateDir {
		t.Errorf("Expected custom state dir %q, got %q", customStateDir, config.StateDir)
	}
	expectedAppDSN := filepath.Join(customStateDir, DefaultAppDBFileName)
	if config.ApplicationDBDSN != expectedAppDSN {
		t.Errorf("Expected app DSN with custom state dir %q, got %q", expectedAppDSN, config.ApplicationDBDSN)
	}
}

func TestBuildNotifierNone(t *testing.T) {
	none := "none"
	empty := ""
	for _, choice := range []*string{&none, &empty} {
		n, cleanup, err := buildNotifier(Flags{notifier: choice})
		if err != nil {
			t.Errorf("notifier %q should be accepted, got %v", *choice, err)
		}
		if n != nil || cleanup != nil {
			t.Errorf("notifier %q should yield no backend", *choice)
		}
	}

	bogus := "carrier-pigeon"
	if _, _, err := buildNotifier(Flags{notifier: &bogus}); err == nil {
		t.Error("unknown notifier backend should be rejected")
	}
}
