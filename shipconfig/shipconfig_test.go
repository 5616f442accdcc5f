package shipconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ship_config.yaml")
	writeFile(t, path, "ship_ip: \"10.0.0.5\"\nship_port: \"8443\"\nship_code: \"sampel-palnet\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ShipIP != "10.0.0.5" || cfg.ShipPort != "8443" || cfg.ShipCode != "sampel-palnet" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.URL() != "http://10.0.0.5:8443" {
		t.Errorf("URL() = %q", cfg.URL())
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ship_config.yaml")
	writeFile(t, path, "ship_ip: \"0.0.0.0\"\nship_port: \"8080\"\nship_code: \"from-file\"\n")

	t.Setenv("URBIT_SHIP_CODE", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ShipCode != "from-env" {
		t.Errorf("ShipCode = %q, want env override", cfg.ShipCode)
	}
	if cfg.ShipIP != "0.0.0.0" {
		t.Errorf("ShipIP = %q, want file value preserved", cfg.ShipIP)
	}
}

func TestLoadMissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("URBIT_SHIP_IP", "127.0.0.1")
	t.Setenv("URBIT_SHIP_PORT", "80")
	t.Setenv("URBIT_SHIP_CODE", "env-only")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.URL() != "http://127.0.0.1:80" || cfg.ShipCode != "env-only" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestWriteDefaultRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ship_config.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ShipPort != "8080" {
		t.Errorf("default port = %q", cfg.ShipPort)
	}

	if err := WriteDefault(path); err == nil {
		t.Fatal("WriteDefault should refuse to overwrite")
	}
}

func TestWatchDeliversReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ship_config.yaml")
	writeFile(t, path, "ship_ip: \"0.0.0.0\"\nship_port: \"8080\"\nship_code: \"one\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := Watch(ctx, path, nil)
	if err != nil {
		t.Fatal(err)
	}

	writeFile(t, path, "ship_ip: \"0.0.0.0\"\nship_port: \"8080\"\nship_code: \"two\"\n")

	select {
	case cfg := <-updates:
		if cfg.ShipCode != "two" {
			t.Errorf("reloaded code = %q", cfg.ShipCode)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload delivered")
	}

	cancel()
	select {
	case _, ok := <-updates:
		if ok {
			// A second event may have been buffered; the channel still has
			// to close shortly after.
			select {
			case _, ok := <-updates:
				if ok {
					t.Fatal("channel did not close after cancel")
				}
			case <-time.After(5 * time.Second):
				t.Fatal("channel did not close after cancel")
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel did not close after cancel")
	}
}
