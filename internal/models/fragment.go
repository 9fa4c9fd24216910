package models

import (
	"encoding/base64"
	"errors"
	"strings"
)

// AudioFragment is one short, independently decodable unit of encoded audio.
type AudioFragment struct {
	Seq      int64  `json:"seq"`
	MimeType string `json:"mime"`
	Data     []byte `json:"data"` // base64 on the wire
}

// Base64 returns the payload as delivered to playback.
func (f AudioFragment) Base64() string {
	return base64.StdEncoding.EncodeToString(f.Data)
}

// DecodeBase64Payload accepts plain base64 or a data: URL and returns the raw bytes.
func DecodeBase64Payload(s string) ([]byte, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return nil, errors.New("empty payload")
	}
	if strings.HasPrefix(raw, "data:") {
		i := strings.Index(raw, ",")
		if i < 0 {
			return nil, errors.New("malformed data url")
		}
		raw = raw[i+1:] // strip data:...;base64,
	}
	return base64.StdEncoding.DecodeString(raw)
}
