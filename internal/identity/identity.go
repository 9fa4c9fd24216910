// Package identity holds the process-wide participant identity and output
// volume behind an explicit, injectable Context.
package identity

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/yoockh/livevoice/internal/models"
	"github.com/yoockh/livevoice/internal/utils"
)

const DefaultVolume = 1.0

type fileState struct {
	User   models.Participant `toml:"user"`
	Volume *float64           `toml:"volume,omitempty"`
}

// Context is the local participant and its volume. Safe for concurrent use.
type Context struct {
	mu     sync.RWMutex
	path   string
	user   models.Participant
	volume float64
	named  bool

	volumeObservers []func(float64)
}

// LoadOrCreate reads the identity file at path, generating and persisting a
// fresh participant id when the file does not exist. An empty path keeps
// the identity in memory only.
func LoadOrCreate(path string) (*Context, error) {
	const op = "identity.LoadOrCreate"

	c := &Context{path: path, volume: DefaultVolume}
	if path != "" {
		var st fileState
		_, err := toml.DecodeFile(path, &st)
		switch {
		case err == nil:
			c.user = st.User
			c.named = st.User.Name != ""
			if st.Volume != nil {
				c.volume = clampVolume(*st.Volume)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, utils.E(utils.CodeInternal, op, "failed to read identity file", err)
		}
	}

	if c.user.ID == "" {
		c.user.ID = uuid.NewString()
	}
	if c.user.Name == "" {
		c.user.Name = models.DefaultName
	}
	if err := c.save(); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to persist identity", err)
	}
	return c, nil
}

// New builds an in-memory context, mostly for tests and tools.
func New(id, name string) *Context {
	if name == "" {
		name = models.DefaultName
	}
	return &Context{user: models.Participant{ID: id, Name: name}, volume: DefaultVolume, named: name != models.DefaultName}
}

func (c *Context) Participant() models.Participant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

func (c *Context) ID() string { return c.Participant().ID }

func (c *Context) Name() string { return c.Participant().Name }

// Named reports whether the participant has ever chosen a display name.
func (c *Context) Named() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.named
}

// Rename changes the display name. The id never changes. When the file
// cannot be written the previous name stays in effect.
func (c *Context) Rename(name string) error {
	const op = "Context.Rename"

	name = strings.TrimSpace(name)
	if name == "" {
		name = models.DefaultName
	}

	c.mu.Lock()
	prevName, prevNamed := c.user.Name, c.named
	c.user.Name = name
	c.named = true
	err := c.saveLocked()
	if err != nil {
		c.user.Name, c.named = prevName, prevNamed
	}
	c.mu.Unlock()

	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to persist identity", err)
	}
	return nil
}

func (c *Context) Volume() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.volume
}

// SetVolume clamps v to [0,1], stores it and notifies volume observers.
// A failed write keeps the previous volume and notifies nobody.
func (c *Context) SetVolume(v float64) error {
	v = clampVolume(v)

	c.mu.Lock()
	prev := c.volume
	c.volume = v
	if err := c.saveLocked(); err != nil {
		c.volume = prev
		c.mu.Unlock()
		return utils.E(utils.CodeInternal, "Context.SetVolume", "failed to persist identity", err)
	}
	observers := append([]func(float64){}, c.volumeObservers...)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(v)
	}
	return nil
}

// OnVolumeChange registers fn and immediately calls it with the current volume.
func (c *Context) OnVolumeChange(fn func(float64)) {
	c.mu.Lock()
	c.volumeObservers = append(c.volumeObservers, fn)
	v := c.volume
	c.mu.Unlock()
	fn(v)
}

func (c *Context) save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

func (c *Context) saveLocked() error {
	if c.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}

	tmp := c.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	vol := c.volume
	if err := toml.NewEncoder(f).Encode(fileState{User: c.user, Volume: &vol}); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, c.path)
}

func clampVolume(v float64) float64 {
	switch {
	case v != v: // NaN
		return DefaultVolume
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
