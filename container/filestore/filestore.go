// Package filestore keeps one file per session under a directory. The file's
// modification time is the record's last-access time.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/container"
)

// DefaultPrefix is prepended to every session id to form a file name.
const DefaultPrefix = "sess_"

// Config configures the file backend.
type Config struct {
	// Dir holds the session files. Empty means the request's save path, then os.TempDir.
	Dir         string
	Prefix      string
	MaxLifetime time.Duration
}

// Store is the file backend provider.
type Store struct {
	cfg Config
}

// New returns a file store. The directory is created lazily on first Init.
func New(cfg Config) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	return &Store{cfg: cfg}
}

// NewContainer implements container.Provider.
func (s *Store) NewContainer() container.Container {
	return &conn{store: s}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

type conn struct {
	store *Store
	dir   string
	now   time.Time
	ready bool
}

func (c *conn) Init(_ context.Context, p container.InitParams) error {
	dir := c.store.cfg.Dir
	if dir == "" {
		dir = p.SavePath
	}
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("filestore: create %s: %w", dir, err)
	}
	c.dir = dir
	c.now = p.Now
	if c.now.IsZero() {
		c.now = time.Now()
	}
	c.ready = true
	return nil
}

func (c *conn) path(id string) (string, error) {
	if !c.ready {
		return "", container.ErrNotInitialized
	}
	if !container.ValidID(id) {
		return "", container.ErrInvalidID
	}
	return filepath.Join(c.dir, c.store.cfg.Prefix+id), nil
}

func (c *conn) Get(_ context.Context, id string) ([]byte, bool, error) {
	p, err := c.path(id)
	if err != nil {
		return nil, false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("filestore: stat: %w", err)
	}
	if c.store.cfg.MaxLifetime > 0 && !container.Live(info.ModTime(), c.now, c.store.cfg.MaxLifetime) {
		return nil, false, nil
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("filestore: read: %w", err)
	}
	return data, true, nil
}

// Set writes to a temp file in the same directory and renames it over the target, so
// concurrent readers see either the old or the new payload.
func (c *conn) Set(_ context.Context, id string, payload []byte) (bool, error) {
	p, err := c.path(id)
	if err != nil {
		return false, err
	}
	tmp, err := os.CreateTemp(c.dir, ".tmp_"+c.store.cfg.Prefix)
	if err != nil {
		return false, fmt.Errorf("filestore: temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return false, fmt.Errorf("filestore: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return false, fmt.Errorf("filestore: write: %w", err)
	}
	if err := os.Chtimes(tmpName, c.now, c.now); err != nil {
		_ = os.Remove(tmpName)
		return false, fmt.Errorf("filestore: chtimes: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		_ = os.Remove(tmpName)
		return false, fmt.Errorf("filestore: rename: %w", err)
	}
	return true, nil
}

func (c *conn) Touch(_ context.Context, id string, _ []byte) (bool, error) {
	p, err := c.path(id)
	if err != nil {
		return false, err
	}
	err = os.Chtimes(p, c.now, c.now)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("filestore: touch: %w", err)
	}
	return true, nil
}

func (c *conn) GC(_ context.Context, maxLifetime time.Duration) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return false, fmt.Errorf("filestore: gc: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), c.store.cfg.Prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !container.Live(info.ModTime(), c.now, maxLifetime) {
			if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return false, fmt.Errorf("filestore: gc remove: %w", err)
			}
		}
	}
	return true, nil
}

func (c *conn) Delete(_ context.Context, id string) (bool, error) {
	p, err := c.path(id)
	if err != nil {
		return false, err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("filestore: delete: %w", err)
	}
	return true, nil
}

func (c *conn) Close() error {
	c.ready = false
	return nil
}
