package app

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"snapkeep/internal/config"
	"snapkeep/internal/snap"
	"snapkeep/internal/testutil"
)

// newTestConfig returns a config with in-memory vault and database and a
// source directory holding one script.
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	source := filepath.Join(base, "MyGame")
	if err := os.MkdirAll(filepath.Join(source, "Scripts"), 0755); err != nil {
		t.Fatalf("creating source: %v", err)
	}
	writeFile(t, filepath.Join(source, "Scripts", "Player.cs"), "class Player {}\n")

	cfg := config.NewConfig("MyGame", source, base)
	cfg.Vault = config.VaultConfig{Type: "memory", Name: "test"}
	cfg.Database = config.DatabaseConfig{Type: "memory"}
	return cfg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func newTestApp(t *testing.T, cfg *config.Config, operation string) (*App, *testutil.StubClock) {
	t.Helper()
	clock := testutil.FixedClock()
	a, err := newApp(cfg, operation, slog.LevelError, clock, testutil.NewStubIDGenerator())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	return a, clock
}

func TestNewApp_InvalidConfig(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.RepositoryName = ""

	if _, err := NewApp(cfg, "Scan", false); err == nil {
		t.Error("NewApp() expected error for missing repository name, got nil")
	}
}

func TestNewApp_UnmigratedDatabase(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Database = config.DatabaseConfig{Type: "sqlite", DataDir: t.TempDir()}

	if _, err := NewApp(cfg, "Scan", false); err == nil {
		t.Fatal("NewApp() expected schema error before migration, got nil")
	}

	if err := MigrateDatabase(cfg.Database); err != nil {
		t.Fatalf("MigrateDatabase() error = %v", err)
	}
	a, err := NewApp(cfg, "Scan", false)
	if err != nil {
		t.Fatalf("NewApp() after migration error = %v", err)
	}
	a.Close()
}

func TestApp_ScanRestoreCompare(t *testing.T) {
	cfg := newTestConfig(t)
	a, clock := newTestApp(t, cfg, "Scan")
	defer a.Close()

	first, err := a.Scan()
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if first.FileCount != 1 {
		t.Errorf("FileCount = %d, want 1", first.FileCount)
	}

	writeFile(t, filepath.Join(cfg.SourceDir, "Scripts", "Player.cs"), "class Player { int hp; }\n")
	clock.Advance(time.Second)

	second, err := a.Scan()
	if err != nil {
		t.Fatalf("second Scan() error = %v", err)
	}
	if second.Previous == nil || *second.Previous != first.ArchiveID {
		t.Errorf("Previous = %v, want %s", second.Previous, first.ArchiveID)
	}

	points := a.ListRestorePoints()
	if len(points) != 2 {
		t.Fatalf("ListRestorePoints() returned %d points, want 2", len(points))
	}
	if points[0].ArchiveID != second.ArchiveID {
		t.Errorf("points[0] = %s, want newest %s", points[0].ArchiveID, second.ArchiveID)
	}

	report, err := a.Compare(1, 0)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if len(report.ModifiedFiles) != 1 || report.ModifiedFiles[0] != "Scripts/Player.cs" {
		t.Errorf("ModifiedFiles = %v, want [Scripts/Player.cs]", report.ModifiedFiles)
	}

	target := filepath.Join(t.TempDir(), "out")
	result, err := a.Restore(1, target)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if result.RestorePoint.ArchiveID != first.ArchiveID {
		t.Errorf("restored %s, want %s", result.RestorePoint.ArchiveID, first.ArchiveID)
	}
	got, err := os.ReadFile(filepath.Join(target, "Scripts", "Player.cs"))
	if err != nil {
		t.Fatalf("reading restored file: %v", err)
	}
	if string(got) != "class Player {}\n" {
		t.Errorf("restored content = %q, want original", got)
	}

	ops, err := a.GetHistory(10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("GetHistory() returned %d operations, want 1", len(ops))
	}
	if ops[0].Operation != "Scan" || ops[0].Repository != "MyGame" {
		t.Errorf("operation = %+v, want Scan on MyGame", ops[0])
	}
}

func TestApp_RestoreInvalidIndex(t *testing.T) {
	cfg := newTestConfig(t)
	a, _ := newTestApp(t, cfg, "Restore")
	defer a.Close()

	_, err := a.Restore(0, "")
	if !errors.Is(err, snap.ErrNoSnapshotsFound) {
		t.Fatalf("Restore() error = %v, want ErrNoSnapshotsFound", err)
	}
	if a.op.Status != snap.StatusError {
		t.Errorf("operation status = %q, want %q", a.op.Status, snap.StatusError)
	}
}

func TestApp_EncryptedArchives(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Encryption.Type = "test"
	a, _ := newTestApp(t, cfg, "Scan")
	defer a.Close()

	if !a.Encrypted() {
		t.Fatal("Encrypted() = false, want true")
	}
	if err := a.SetupKeys("secret"); err != nil {
		t.Fatalf("SetupKeys() error = %v", err)
	}
	if _, err := a.Scan(); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	target := t.TempDir()
	if _, err := a.Restore(0, target); !errors.Is(err, snap.ErrDataUnavailable) {
		t.Fatalf("Restore() before Unlock error = %v, want ErrDataUnavailable", err)
	}

	if err := a.Unlock("wrong"); err == nil {
		t.Fatal("Unlock() with wrong passphrase expected error, got nil")
	}
	if err := a.Unlock("secret"); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if _, err := a.Restore(0, target); err != nil {
		t.Fatalf("Restore() after Unlock error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(target, "Scripts", "Player.cs")); err != nil {
		t.Errorf("restored file missing: %v", err)
	}
}

func TestApp_SetupKeysWithoutEncryption(t *testing.T) {
	cfg := newTestConfig(t)
	a, _ := newTestApp(t, cfg, "KeysInit")
	defer a.Close()

	if a.Encrypted() {
		t.Error("Encrypted() = true, want false")
	}
	if err := a.SetupKeys("secret"); err == nil {
		t.Error("SetupKeys() expected error when encryption is disabled, got nil")
	}
	if err := a.Unlock("anything"); err != nil {
		t.Errorf("Unlock() without encryption error = %v, want nil", err)
	}
}

func TestVaultExclusion(t *testing.T) {
	source := filepath.FromSlash("/work/MyGame")

	tests := []struct {
		name   string
		cfg    config.VaultConfig
		want   string
		wantOK bool
	}{
		{
			name:   "vault inside source",
			cfg:    config.VaultConfig{Type: "filesystem", FSVaultRoot: filepath.FromSlash("/work/MyGame/codebase_backups")},
			want:   "./codebase_backups",
			wantOK: true,
		},
		{
			name:   "nested vault inside source",
			cfg:    config.VaultConfig{Type: "filesystem", FSVaultRoot: filepath.FromSlash("/work/MyGame/tools/archives")},
			want:   "./tools/archives",
			wantOK: true,
		},
		{
			name:   "vault name with glob characters",
			cfg:    config.VaultConfig{Type: "filesystem", FSVaultRoot: filepath.FromSlash("/work/MyGame/backups[1]*")},
			want:   `./backups\[1\]\*`,
			wantOK: true,
		},
		{
			name: "vault outside source",
			cfg:  config.VaultConfig{Type: "filesystem", FSVaultRoot: filepath.FromSlash("/data/archives")},
		},
		{
			name: "vault is a sibling",
			cfg:  config.VaultConfig{Type: "filesystem", FSVaultRoot: filepath.FromSlash("/work/MyGame-archives")},
		},
		{
			name: "vault is the source",
			cfg:  config.VaultConfig{Type: "filesystem", FSVaultRoot: source},
		},
		{
			name: "not a filesystem vault",
			cfg:  config.VaultConfig{Type: "memory"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := vaultExclusion(source, tt.cfg)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("vaultExclusion() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
