package config

import "testing"

func TestLoadRequiresSharedSecret(t *testing.T) {
	t.Setenv("SHARED_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load without SHARED_SECRET should fail")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SHARED_SECRET", "hush")
	t.Setenv("ADDR", "")
	t.Setenv("ADMIN_USERNAME", "")
	t.Setenv("S3_ENDPOINT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.AdminUsername != "admin" {
		t.Errorf("AdminUsername = %q, want admin", cfg.AdminUsername)
	}
	if cfg.StorageConfigured() {
		t.Error("storage should not be configured without S3 settings")
	}
}

func TestLoadInvalidSessionTTL(t *testing.T) {
	t.Setenv("SHARED_SECRET", "hush")
	t.Setenv("SESSION_TTL", "not-a-duration")
	if _, err := Load(); err == nil {
		t.Fatal("Load with bad SESSION_TTL should fail")
	}
}

func TestStorageConfigured(t *testing.T) {
	t.Setenv("SHARED_SECRET", "hush")
	t.Setenv("S3_ENDPOINT", "minio:9000")
	t.Setenv("INPUT_BUCKET", "audio-in")
	t.Setenv("OUTPUT_BUCKET", "transcripts-out")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.StorageConfigured() {
		t.Error("storage should be configured")
	}
}
