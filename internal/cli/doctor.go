package cli

import (
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yoockh/livevoice/config"
	"github.com/yoockh/livevoice/internal/audio"
	"github.com/yoockh/livevoice/internal/capture"
	"github.com/yoockh/livevoice/internal/playback"
)

func check(w io.Writer, name string, ok bool, detail string) {
	mark := "ok"
	if !ok {
		mark = "FAIL"
	}
	fmt.Fprintf(w, "  [%s] %s: %s\n", mark, name, detail)
}

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			cfg := deps.Config
			ok := true

			if err := cfg.Validate(); err != nil {
				check(w, "Configuration", false, err.Error())
				ok = false
			} else {
				check(w, "Configuration", true, "valid")
			}

			ff := audio.NewFFmpeg(cfg.FFmpegPath)
			if err := ff.Check(); err != nil {
				check(w, "ffmpeg", false, err.Error())
				ok = false
			} else {
				check(w, "ffmpeg", true, "installed")
			}

			codec := audio.Negotiate(audio.PreferredMimeTypes, capture.NewCodecs(ff).Supports)
			check(w, "Capture codec", true, codec)

			player := cfg.PlayerCmd
			if player == "" {
				player = playback.DefaultPlayerCommand
			}
			if fields := strings.Fields(player); len(fields) > 0 && player != "none" {
				bin := fields[0]
				if _, err := exec.LookPath(bin); err != nil {
					check(w, "Audio player", false, bin+" not found; remote audio will be discarded")
					ok = false
				} else {
					check(w, "Audio player", true, bin)
				}
			}

			switch cfg.Backend {
			case config.BackendMemory:
				check(w, "Backend", true, "in-process memory store (local only)")
			default:
				rdb, err := config.NewRedisClient(cmd.Context(), cfg.RedisAddr)
				if err != nil {
					check(w, "Backend", false, "redis unreachable: "+err.Error())
					ok = false
				} else {
					_ = rdb.Close()
					check(w, "Backend", true, "redis reachable")
				}
			}

			if cfg.GCSBucket != "" {
				check(w, "Blob storage", true, "gs://"+cfg.GCSBucket)
			} else if cfg.BlobDir != "" {
				check(w, "Blob storage", true, cfg.BlobDir)
			} else {
				check(w, "Blob storage", false, "not set; recordings stay on this node. Set GCS_BUCKET or LIVEVOICE_BLOB_DIR")
			}

			if cfg.MongoURI != "" {
				check(w, "Chat archive", true, "mongo database "+cfg.MongoDB)
			} else {
				check(w, "Chat archive", true, "disabled (MONGO_URI not set)")
			}

			if ok {
				fmt.Fprintln(w, "\nAll prerequisites met.")
			} else {
				fmt.Fprintln(w, "\nSome prerequisites are missing.")
			}
			return nil
		},
	}
}
