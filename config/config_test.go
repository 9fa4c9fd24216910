package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LIVEVOICE_BACKEND", "")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("LIVEVOICE_RECENT_WINDOW", "")
	t.Setenv("LIVEVOICE_SLICE_INTERVAL", "")

	cfg := Load()
	if cfg.Backend != BackendRedis {
		t.Errorf("Backend = %q", cfg.Backend)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
	if cfg.RecentWindow != 30*time.Second {
		t.Errorf("RecentWindow = %s", cfg.RecentWindow)
	}
	if cfg.SliceInterval != 850*time.Millisecond || cfg.SliceLength != 800*time.Millisecond {
		t.Errorf("slice = %s/%s", cfg.SliceInterval, cfg.SliceLength)
	}
	if cfg.ChunkTail != 3 || cfg.RetireDelay != 5*time.Second {
		t.Errorf("tail=%d retire=%s", cfg.ChunkTail, cfg.RetireDelay)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LIVEVOICE_BACKEND", "Memory")
	t.Setenv("LIVEVOICE_RECENT_WINDOW", "60s")
	t.Setenv("LIVEVOICE_RETIRE_DELAY", "2")
	t.Setenv("LIVEVOICE_SAMPLE_RATE", "16000")
	t.Setenv("LIVEVOICE_TRANSCRIBE", "true")
	t.Setenv("LIVEVOICE_CHUNK_TAIL", "notanumber")

	cfg := Load()
	if cfg.Backend != BackendMemory {
		t.Errorf("Backend = %q", cfg.Backend)
	}
	if cfg.RecentWindow != time.Minute {
		t.Errorf("RecentWindow = %s", cfg.RecentWindow)
	}
	if cfg.RetireDelay != 2*time.Second {
		t.Errorf("RetireDelay = %s", cfg.RetireDelay)
	}
	if cfg.SampleRate != 16000 || !cfg.Transcribe {
		t.Errorf("rate=%d transcribe=%v", cfg.SampleRate, cfg.Transcribe)
	}
	if cfg.ChunkTail != 3 {
		t.Errorf("unparsable ChunkTail should fall back to default, got %d", cfg.ChunkTail)
	}
}

func TestRedisAddrFallbacks(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("REDIS_URI", "")
	t.Setenv("REDIS_URL", "redis://example:6379/0")
	if got := Load().RedisAddr; got != "redis://example:6379/0" {
		t.Errorf("RedisAddr = %q", got)
	}
}

func TestValidate(t *testing.T) {
	base := func(t *testing.T) *Config {
		t.Setenv("LIVEVOICE_BACKEND", "memory")
		return Load()
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"zero window", func(c *Config) { c.RecentWindow = 0 }, "LIVEVOICE_RECENT_WINDOW"},
		{"negative retire", func(c *Config) { c.RetireDelay = -time.Second }, "LIVEVOICE_RETIRE_DELAY"},
		{"zero rate", func(c *Config) { c.SampleRate = 0 }, "LIVEVOICE_SAMPLE_RATE"},
		{"slice far longer than interval", func(c *Config) { c.SliceLength = 2 * time.Second }, "must not exceed twice"},
		{"unknown backend", func(c *Config) { c.Backend = "firebase" }, "unknown LIVEVOICE_BACKEND"},
		{"redis without addr", func(c *Config) { c.Backend = BackendRedis; c.RedisAddr = "" }, "REDIS_ADDR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base(t)
			tt.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestValidateAcceptsOverlappingSlices(t *testing.T) {
	t.Setenv("LIVEVOICE_BACKEND", "memory")
	t.Setenv("LIVEVOICE_SLICE_INTERVAL", "800ms")
	t.Setenv("LIVEVOICE_SLICE_LENGTH", "850ms")

	c := Load()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want overlapping slices accepted", err)
	}
}
