package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"anchorwatch/internal/logger"
)

// ChangeListener receives the freshly loaded config after a file change.
type ChangeListener func(*Config)

// Reloader watches the config file and re-runs the full load pipeline
// (defaults, env overrides, validation) on every write. A reload that fails
// validation is logged and dropped; the previous config stays active.
type Reloader struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	current   *Config
	listeners []ChangeListener
}

func NewReloader(path string) (*Reloader, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	r := &Reloader{path: path, current: cfg}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		next, err := Load(r.path)
		if err != nil {
			logger.Errorf("config reload failed (%s): %v", evt.Name, err)
			return
		}
		r.mu.Lock()
		r.current = next
		listeners := append([]ChangeListener(nil), r.listeners...)
		r.mu.Unlock()
		logger.Infof("config reloaded from %s", r.path)
		for _, fn := range listeners {
			if fn == nil {
				continue
			}
			go func(cb ChangeListener) {
				defer func() {
					if rec := recover(); rec != nil {
						logger.Errorf("config listener panic: %v", rec)
					}
				}()
				cb(next)
			}(fn)
		}
	})
	v.WatchConfig()
	r.v = v
	return r, nil
}

func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

func (r *Reloader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}
