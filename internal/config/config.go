package config

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kelseyhightower/envconfig"
)

// Config holds daemon settings from the environment plus the extra
// application directories listed in the rc file.
type Config struct {
	static  env
	dynamic rc
}

type (
	env struct {
		UnixSocket     string            `envconfig:"ADE_APPSD_SOCK"`
		Workers        int               `envconfig:"ADE_APPSD_WORKERS" default:"4"`
		AppDirs        []string          `envconfig:"ADE_APPSD_APP_DIRS"`
		DataDir        string            `envconfig:"ADE_APPSD_DATA_DIR"`
		Store          string            `envconfig:"ADE_APPSD_STORE" default:"bolt"`
		CatalogURL     string            `envconfig:"ADE_APPSD_CATALOG_URL"`
		CatalogRPS     float64           `envconfig:"ADE_APPSD_CATALOG_RPS" default:"2"`
		LookupTimeout  time.Duration     `envconfig:"ADE_APPSD_LOOKUP_TIMEOUT" default:"5s"`
		CatalogTimeout time.Duration     `envconfig:"ADE_APPSD_CATALOG_TIMEOUT" default:"10s"`
		MatchCache     int               `envconfig:"ADE_APPSD_MATCH_CACHE" default:"256"`
		Experiences    map[string]string `envconfig:"ADE_APPSD_EXPERIENCES"`
		LogLevel       string            `envconfig:"ADE_APPSD_LOG_LEVEL" default:"info"`
		RCFile         string            `envconfig:"ADE_APPSD_RC" default:"~/.config/ade/appsd.rc"`
	}
	rc struct {
		sync.RWMutex
		additionalDirs []string
	}
)

// Load reads the environment and the rc file
func Load() (*Config, error) {
	c := &Config{}

	// Load environment variables
	if err := envconfig.Process("", &c.static); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	socket, err := resolveSocket(c.static.UnixSocket)
	if err != nil {
		return nil, err
	}
	c.static.UnixSocket = socket
	c.static.RCFile = expandPath(c.static.RCFile)

	if c.static.DataDir == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user cache directory: %w", err)
		}
		c.static.DataDir = filepath.Join(cacheDir, "ade")
	}
	c.static.DataDir = expandPath(c.static.DataDir)

	// Load rc file
	if err := c.loadRC(); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", c.static.RCFile, err)
	}

	return c, nil
}

// SocketPath resolves the daemon socket from ADE_APPSD_SOCK or the per-user
// default without touching the rc file. Clients use it to find the daemon.
func SocketPath() (string, error) {
	var e struct {
		UnixSocket string `envconfig:"ADE_APPSD_SOCK"`
	}
	if err := envconfig.Process("", &e); err != nil {
		return "", fmt.Errorf("failed to process environment: %w", err)
	}
	return resolveSocket(e.UnixSocket)
}

func resolveSocket(path string) (string, error) {
	if path == "" {
		currentUser, err := user.Current()
		if err != nil {
			return "", fmt.Errorf("failed to get current user: %w", err)
		}
		path = fmt.Sprintf("/tmp/ade-%s/appsd", currentUser.Uid)
	}
	return expandPath(path), nil
}

func (c *Config) loadRC() error {
	rcPath := c.static.RCFile

	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(rcPath), 0750); err != nil {
		return err
	}

	// Try to read rc file
	file, err := os.Open(rcPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Create empty file
			file, err = os.Create(rcPath)
			if err != nil {
				return err
			}
			file.Close()
			return nil
		}
		return err
	}
	defer file.Close()

	var dirs []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		dirs = append(dirs, expandPath(line))
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	c.dynamic.Lock()
	c.dynamic.additionalDirs = dirs
	c.dynamic.Unlock()
	return nil
}

// Watch reloads the rc file whenever it is written and calls onChange after
// each successful reload. It returns when ctx is done.
func (c *Config) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file are seen
	if err := watcher.Add(filepath.Dir(c.static.RCFile)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != c.static.RCFile || !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			if err := c.loadRC(); err != nil {
				slog.Warn("failed to reload rc file", "path", c.static.RCFile, "error", err)
				continue
			}
			if onChange != nil {
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}

// DefaultAppDirs are scanned when ADE_APPSD_APP_DIRS is unset
func DefaultAppDirs() []string {
	return []string{
		"/usr/share/applications",
		"/usr/local/share/applications",
		expandPath("~/.local/share/applications"),
	}
}

// AppDirs returns the application directories to index (environment or
// defaults, then the rc file entries)
func (c *Config) AppDirs() []string {
	c.dynamic.RLock()
	defer c.dynamic.RUnlock()

	base := c.static.AppDirs
	if len(base) == 0 {
		base = DefaultAppDirs()
	}
	dirs := make([]string, 0, len(base)+len(c.dynamic.additionalDirs))
	for _, d := range base {
		if d = strings.TrimSpace(d); d != "" {
			dirs = append(dirs, expandPath(d))
		}
	}
	return append(dirs, c.dynamic.additionalDirs...)
}

// UnixSocket returns the Unix socket path
func (c *Config) UnixSocket() string {
	return c.static.UnixSocket
}

// RCFile returns the rc file path
func (c *Config) RCFile() string {
	return c.static.RCFile
}

// Workers returns the number of concurrent per-app lookups
func (c *Config) Workers() int {
	if c.static.Workers <= 0 {
		return 4 // Default
	}
	return c.static.Workers
}

// DataDir returns where the query index store lives
func (c *Config) DataDir() string {
	return c.static.DataDir
}

// Store returns the storage backend name
func (c *Config) Store() string {
	return c.static.Store
}

// CatalogURL returns the remote catalog base URL; empty disables enrichment
func (c *Config) CatalogURL() string {
	return c.static.CatalogURL
}

// CatalogRPS returns the catalog request rate limit
func (c *Config) CatalogRPS() float64 {
	if c.static.CatalogRPS <= 0 {
		return 2
	}
	return c.static.CatalogRPS
}

// LookupTimeout bounds each per-app info lookup
func (c *Config) LookupTimeout() time.Duration {
	return c.static.LookupTimeout
}

// CatalogTimeout bounds one catalog batch request
func (c *Config) CatalogTimeout() time.Duration {
	return c.static.CatalogTimeout
}

// MatchCache returns how many compiled name patterns to keep
func (c *Config) MatchCache() int {
	if c.static.MatchCache <= 0 {
		return 256
	}
	return c.static.MatchCache
}

// Experiences returns the experience id to query key table
func (c *Config) Experiences() map[string]string {
	return c.static.Experiences
}

// LogLevel returns the configured log level name
func (c *Config) LogLevel() string {
	return c.static.LogLevel
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return strings.Replace(path, "~", home, 1)
	}
	return path
}
