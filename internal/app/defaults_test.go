package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/custom/config.toml")
		t.Setenv(EnvHome, "/custom/drive")
		t.Setenv(EnvServerURL, "https://files.example.com")

		d, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}
		if d.ConfigPath != "/custom/config.toml" {
			t.Errorf("ConfigPath = %q, want %q", d.ConfigPath, "/custom/config.toml")
		}
		if d.BaseDir != "/custom/drive" {
			t.Errorf("BaseDir = %q, want %q", d.BaseDir, "/custom/drive")
		}
		if d.LogDir != "/custom/drive/log" {
			t.Errorf("LogDir = %q, want %q", d.LogDir, "/custom/drive/log")
		}
		if d.ServerURL != "https://files.example.com" {
			t.Errorf("ServerURL = %q", d.ServerURL)
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		t.Setenv(EnvHome, "")
		t.Setenv(EnvServerURL, "")

		d, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}
		homeDir, _ := os.UserHomeDir()

		if want := filepath.Join(homeDir, ".config", "drive.toml"); d.ConfigPath != want {
			t.Errorf("ConfigPath = %q, want %q", d.ConfigPath, want)
		}
		wantBase := filepath.Join(homeDir, ".local", "share", "drive")
		if d.BaseDir != wantBase {
			t.Errorf("BaseDir = %q, want %q", d.BaseDir, wantBase)
		}
		if want := filepath.Join(wantBase, "log"); d.LogDir != want {
			t.Errorf("LogDir = %q, want %q", d.LogDir, want)
		}
		if d.ServerURL != DefaultServerURL {
			t.Errorf("ServerURL = %q, want %q", d.ServerURL, DefaultServerURL)
		}
	})
}
