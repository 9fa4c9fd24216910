package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// FFmpeg wraps the ffmpeg binary used for microphone access and for the
// webm/opus codecs that have no in-process implementation.
type FFmpeg struct {
	Path string

	once     sync.Once
	encoders map[string]bool
}

func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path}
}

func (f *FFmpeg) Check() error {
	if _, err := exec.LookPath(f.Path); err != nil {
		return fmt.Errorf("ffmpeg not found (%s). Install it with your package manager", f.Path)
	}
	return nil
}

// HasEncoder reports whether `ffmpeg -encoders` lists name.
func (f *FFmpeg) HasEncoder(name string) bool {
	f.once.Do(func() {
		f.encoders = map[string]bool{}
		if f.Check() != nil {
			return
		}
		out, err := exec.Command(f.Path, "-hide_banner", "-encoders").Output()
		if err != nil {
			return
		}
		for _, line := range strings.Split(string(out), "\n") {
			fields := strings.Fields(line)
			if len(fields) >= 2 && len(fields[0]) == 6 {
				f.encoders[fields[1]] = true
			}
		}
	})
	return f.encoders[name]
}

// Supports is the capability probe for Negotiate.
func (f *FFmpeg) Supports(mime string) bool {
	switch mime {
	case MimeWebMOpus:
		return f.HasEncoder("libopus")
	case MimeWebM:
		return f.HasEncoder("libopus") || f.HasEncoder("libvorbis")
	case MimeWAV:
		return true
	default:
		return false
	}
}

// EncodeArgs returns the arguments that turn s16le mono PCM on stdin into mime on stdout.
func (f *FFmpeg) EncodeArgs(mime string, sampleRate int) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le", "-ar", strconv.Itoa(sampleRate), "-ac", "1", "-i", "pipe:0",
	}
	switch mime {
	case MimeWebMOpus:
		args = append(args, "-c:a", "libopus", "-b:a", "24k", "-application", "voip")
	case MimeWebM:
		if f.HasEncoder("libopus") {
			args = append(args, "-c:a", "libopus")
		} else {
			args = append(args, "-c:a", "libvorbis")
		}
	}
	return append(args, "-f", "webm", "pipe:1")
}

// Decode converts any container ffmpeg understands into mono PCM at sampleRate.
func (f *FFmpeg) Decode(ctx context.Context, data []byte, sampleRate int) (*Buffer, error) {
	cmd := exec.CommandContext(ctx, f.Path,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le", "-ac", "1", "-ar", strconv.Itoa(sampleRate),
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if len(out) < 2 {
		return nil, fmt.Errorf("ffmpeg decode: no audio in fragment")
	}
	return &Buffer{Samples: BytesToSamples(out), SampleRate: sampleRate}, nil
}
