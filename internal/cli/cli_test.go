package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"

	"github.com/yoockh/livevoice/config"
	"github.com/yoockh/livevoice/internal/logger"
)

func execute(t *testing.T, cfg *config.Config, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd(&Dependencies{Config: cfg, Logger: logger.Discard()})
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func TestRenamePersistsName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.toml")
	cfg := &config.Config{IdentityFile: path}

	out := execute(t, cfg, "rename", "Ana", "Maria")
	if !strings.Contains(out, `"Ana Maria"`) {
		t.Errorf("output = %q", out)
	}

	var st struct {
		User struct {
			ID   string `toml:"id"`
			Name string `toml:"name"`
		} `toml:"user"`
	}
	if _, err := toml.DecodeFile(path, &st); err != nil {
		t.Fatal(err)
	}
	if st.User.Name != "Ana Maria" || st.User.ID == "" {
		t.Errorf("identity file = %+v", st.User)
	}

	id := st.User.ID
	execute(t, cfg, "rename", "Bea")
	if _, err := toml.DecodeFile(path, &st); err != nil {
		t.Fatal(err)
	}
	if st.User.ID != id {
		t.Error("rename must keep the participant id")
	}
}

func TestVersionFlag(t *testing.T) {
	out := execute(t, &config.Config{}, "--version")
	if !strings.HasPrefix(out, "livevoice dev") {
		t.Errorf("version = %q", out)
	}
}

func TestDoctorReportsChecks(t *testing.T) {
	t.Setenv("LIVEVOICE_BACKEND", "memory")
	cfg := config.Load()
	cfg.FFmpegPath = "livevoice-test-no-ffmpeg"
	cfg.PlayerCmd = "none"
	cfg.GCSBucket, cfg.BlobDir, cfg.MongoURI = "", "", ""

	out := execute(t, cfg, "doctor")
	for _, want := range []string{
		"[FAIL] ffmpeg",
		"[ok] Capture codec: audio/wav",
		"[ok] Backend: in-process memory store",
		"Some prerequisites are missing.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("doctor output missing %q:\n%s", want, out)
		}
	}
}
