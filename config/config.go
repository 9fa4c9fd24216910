package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Config struct {
	// Store
	Backend         string
	RedisAddr       string
	KeyPrefix       string
	StreamRetention time.Duration

	// Blobs and archive
	GCSBucket  string
	BlobDir    string
	MongoURI   string
	MongoDB    string
	ArchiveTTL time.Duration

	// Identity
	IdentityFile string

	// Capture
	FFmpegPath    string
	SampleRate    int
	SliceInterval time.Duration
	SliceLength   time.Duration
	MicFormat     string
	MicDevice     string

	// Streaming protocol
	RecentWindow time.Duration
	RetireDelay  time.Duration
	ChunkTail    int
	MaxPending   int
	FlushAfter   time.Duration

	// Playback
	PlayerCmd string

	// Transcription
	Transcribe bool
	Language   string

	// Bridge
	Port      string
	JWTSecret string
	LogLevel  string
}

// Load reads the node configuration from the environment, loading a .env
// file first if one exists.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Backend:         strings.ToLower(getEnv("LIVEVOICE_BACKEND", BackendRedis)),
		RedisAddr:       redisAddr(),
		KeyPrefix:       getEnv("LIVEVOICE_KEY_PREFIX", "livevoice:"),
		StreamRetention: getEnvDuration("LIVEVOICE_STREAM_RETENTION", 10*time.Minute),

		GCSBucket:  getEnv("GCS_BUCKET", ""),
		BlobDir:    getEnv("LIVEVOICE_BLOB_DIR", ""),
		MongoURI:   getEnv("MONGO_URI", ""),
		MongoDB:    getEnv("MONGO_DB", "livevoice"),
		ArchiveTTL: getEnvDuration("LIVEVOICE_ARCHIVE_TTL", 30*24*time.Hour),

		IdentityFile: getEnv("LIVEVOICE_IDENTITY_FILE", defaultIdentityFile()),

		FFmpegPath:    getEnv("LIVEVOICE_FFMPEG", "ffmpeg"),
		SampleRate:    getEnvInt("LIVEVOICE_SAMPLE_RATE", 16000),
		SliceInterval: getEnvDuration("LIVEVOICE_SLICE_INTERVAL", 850*time.Millisecond),
		SliceLength:   getEnvDuration("LIVEVOICE_SLICE_LENGTH", 800*time.Millisecond),
		MicFormat:     getEnv("LIVEVOICE_MIC_FORMAT", ""),
		MicDevice:     getEnv("LIVEVOICE_MIC_DEVICE", ""),

		RecentWindow: getEnvDuration("LIVEVOICE_RECENT_WINDOW", 30*time.Second),
		RetireDelay:  getEnvDuration("LIVEVOICE_RETIRE_DELAY", 5*time.Second),
		ChunkTail:    getEnvInt("LIVEVOICE_CHUNK_TAIL", 3),
		MaxPending:   getEnvInt("LIVEVOICE_MAX_PENDING", 3),
		FlushAfter:   getEnvDuration("LIVEVOICE_FLUSH_AFTER", 1200*time.Millisecond),

		PlayerCmd: getEnv("LIVEVOICE_PLAYER_CMD", ""),

		Transcribe: getEnvBool("LIVEVOICE_TRANSCRIBE", false),
		Language:   getEnv("LIVEVOICE_LANGUAGE", "en-US"),

		Port:      getEnv("PORT", "8080"),
		JWTSecret: getEnv("BRIDGE_JWT_SECRET", ""),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR (or REDIS_URI/REDIS_URL) is required for the redis backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown LIVEVOICE_BACKEND %q", c.Backend))
	}

	durations := []struct {
		name string
		v    time.Duration
	}{
		{"LIVEVOICE_STREAM_RETENTION", c.StreamRetention},
		{"LIVEVOICE_SLICE_INTERVAL", c.SliceInterval},
		{"LIVEVOICE_SLICE_LENGTH", c.SliceLength},
		{"LIVEVOICE_RECENT_WINDOW", c.RecentWindow},
		{"LIVEVOICE_RETIRE_DELAY", c.RetireDelay},
		{"LIVEVOICE_FLUSH_AFTER", c.FlushAfter},
	}
	for _, d := range durations {
		if d.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", d.name, d.v))
		}
	}
	// overlapping slices are fine; more than two live encoders per tick is not
	if c.SliceInterval > 0 && c.SliceLength > 2*c.SliceInterval {
		errs = append(errs, errors.New("LIVEVOICE_SLICE_LENGTH must not exceed twice LIVEVOICE_SLICE_INTERVAL"))
	}
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("LIVEVOICE_SAMPLE_RATE must be positive, got %d", c.SampleRate))
	}
	if c.ChunkTail <= 0 {
		errs = append(errs, fmt.Errorf("LIVEVOICE_CHUNK_TAIL must be positive, got %d", c.ChunkTail))
	}
	if c.MaxPending <= 0 {
		errs = append(errs, fmt.Errorf("LIVEVOICE_MAX_PENDING must be positive, got %d", c.MaxPending))
	}
	return errors.Join(errs...)
}

func redisAddr() string {
	for _, k := range []string{"REDIS_ADDR", "REDIS_URI", "REDIS_URL"} {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func defaultIdentityFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".livevoice.toml"
	}
	return dir + string(os.PathSeparator) + "livevoice" + string(os.PathSeparator) + "identity.toml"
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		logrus.WithError(err).Warnf("failed to parse %s as int, using default", key)
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logrus.WithError(err).Warnf("failed to parse %s as float, using default", key)
		return defaultValue
	}
	return f
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		logrus.WithError(err).Warnf("failed to parse %s as bool, using default", key)
		return defaultValue
	}
	return b
}

// getEnvDuration accepts Go durations ("850ms") or plain seconds ("30").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs := getEnvFloat(key, -1); secs >= 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}
