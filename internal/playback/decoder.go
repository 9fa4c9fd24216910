package playback

import (
	"context"
	"errors"
	"fmt"

	"github.com/yoockh/livevoice/internal/audio"
)

// Decoder turns one self-contained fragment into PCM.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (*audio.Buffer, error)
}

type WAVDecoder struct{}

func (WAVDecoder) Decode(_ context.Context, data []byte) (*audio.Buffer, error) {
	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, errors.New("wav fragment has no samples")
	}
	return &audio.Buffer{Samples: samples, SampleRate: rate}, nil
}

// FFmpegDecoder handles webm/opus and anything else ffmpeg reads.
type FFmpegDecoder struct {
	FFmpeg     *audio.FFmpeg
	SampleRate int
}

func (d FFmpegDecoder) Decode(ctx context.Context, data []byte) (*audio.Buffer, error) {
	return d.FFmpeg.Decode(ctx, data, d.SampleRate)
}

// SniffDecoder picks a decoder from the fragment's magic bytes.
type SniffDecoder struct {
	WAV   Decoder
	Other Decoder // nil when ffmpeg is unavailable
}

func NewSniffDecoder(ff *audio.FFmpeg, sampleRate int) *SniffDecoder {
	d := &SniffDecoder{WAV: WAVDecoder{}}
	if ff != nil && ff.Check() == nil {
		d.Other = FFmpegDecoder{FFmpeg: ff, SampleRate: sampleRate}
	}
	return d
}

func (d *SniffDecoder) Decode(ctx context.Context, data []byte) (*audio.Buffer, error) {
	kind := audio.Sniff(data)
	switch {
	case kind == audio.MimeWAV:
		return d.WAV.Decode(ctx, data)
	case kind == "":
		return nil, errors.New("unrecognized fragment format")
	case d.Other == nil:
		return nil, fmt.Errorf("no decoder for %s", kind)
	default:
		return d.Other.Decode(ctx, data)
	}
}
