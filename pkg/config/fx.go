package config

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

var Module = fx.Module("config", fx.Provide(NewLoader))

// Loader loads the configuration file named on the command line once and
// hands the result to every command that needs it.
type Loader struct {
	mu  sync.Mutex
	cfg *Config
}

// NewLoader creates an empty Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads the configuration from path. A missing file is not an error;
// Config returns nil afterwards so commands that don't need a configuration
// (help, version) keep working.
func (l *Loader) Load(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		l.cfg = nil
		return nil
	}

	cfg, err := LoadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to load %s", path)
	}

	l.cfg = cfg
	return nil
}

// Set replaces the loaded configuration.
func (l *Loader) Set(cfg *Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = cfg
}

// Config returns the loaded configuration or nil when none was found.
func (l *Loader) Config() *Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}
