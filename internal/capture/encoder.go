package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/yoockh/livevoice/internal/audio"
)

// SliceEncoder turns the PCM written during one slice into a self-contained fragment.
type SliceEncoder interface {
	Write(samples []int16) error
	Finish() ([]byte, error)
	Abort()
}

// Codecs advertises the fragment formats this node can produce.
type Codecs interface {
	Supports(mime string) bool
	NewSliceEncoder(mime string, sampleRate int) (SliceEncoder, error)
}

// NewCodecs returns the WAV codec plus whatever ff can encode. ff may be nil.
func NewCodecs(ff *audio.FFmpeg) Codecs {
	return &codecs{ff: ff}
}

type codecs struct {
	ff *audio.FFmpeg
}

func (c *codecs) Supports(mime string) bool {
	if mime == audio.MimeWAV {
		return true
	}
	return c.ff != nil && c.ff.Supports(mime)
}

func (c *codecs) NewSliceEncoder(mime string, sampleRate int) (SliceEncoder, error) {
	if mime == audio.MimeWAV {
		return NewWAVEncoder(sampleRate), nil
	}
	if !c.Supports(mime) {
		return nil, fmt.Errorf("unsupported codec %q", mime)
	}
	return newFFmpegEncoder(c.ff, mime, sampleRate)
}

// WAVEncoder buffers PCM and wraps it in a RIFF header on Finish.
type WAVEncoder struct {
	rate    int
	samples []int16
}

func NewWAVEncoder(sampleRate int) *WAVEncoder {
	return &WAVEncoder{rate: sampleRate}
}

func (e *WAVEncoder) Write(samples []int16) error {
	e.samples = append(e.samples, samples...)
	return nil
}

func (e *WAVEncoder) Finish() ([]byte, error) {
	if len(e.samples) == 0 {
		return nil, errors.New("empty slice")
	}
	return audio.EncodeWAV(e.samples, e.rate)
}

func (e *WAVEncoder) Abort() { e.samples = nil }

type ffmpegEncoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout bytes.Buffer
	stderr bytes.Buffer
	once   sync.Once
}

func newFFmpegEncoder(ff *audio.FFmpeg, mime string, sampleRate int) (*ffmpegEncoder, error) {
	e := &ffmpegEncoder{}
	e.cmd = exec.Command(ff.Path, ff.EncodeArgs(mime, sampleRate)...)
	e.cmd.Stdout = &e.stdout
	e.cmd.Stderr = &e.stderr

	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	e.stdin = stdin
	if err := e.cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting ffmpeg encoder: %w", err)
	}
	return e, nil
}

func (e *ffmpegEncoder) Write(samples []int16) error {
	_, err := e.stdin.Write(audio.SamplesToBytes(samples))
	return err
}

func (e *ffmpegEncoder) Finish() ([]byte, error) {
	var err error
	e.once.Do(func() {
		_ = e.stdin.Close()
		err = e.cmd.Wait()
	})
	if err != nil {
		return nil, fmt.Errorf("ffmpeg encoder: %w: %s", err, strings.TrimSpace(e.stderr.String()))
	}
	if e.stdout.Len() == 0 {
		return nil, errors.New("ffmpeg encoder produced no output")
	}
	return e.stdout.Bytes(), nil
}

func (e *ffmpegEncoder) Abort() {
	e.once.Do(func() {
		_ = e.stdin.Close()
		if e.cmd.Process != nil {
			_ = e.cmd.Process.Kill()
		}
		_ = e.cmd.Wait()
	})
}
