package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	watcherDebounce = 100 * time.Millisecond
	watcherPoll     = 5 * time.Second
)

// ConfigWatcher monitors the env file and reapplies processor credentials on change.
type ConfigWatcher struct {
	processor   *Processor
	envPath     string
	watcher     *fsnotify.Watcher
	stopChan    chan struct{}
	stopOnce    sync.Once
	lastModTime time.Time
	mu          sync.Mutex
	onReload    func(changed []string)
}

// NewConfigWatcher creates a watcher for cfg.EnvFile.
func NewConfigWatcher(cfg *Config) (*ConfigWatcher, error) {
	envPath, err := filepath.Abs(cfg.EnvFile)
	if err != nil {
		envPath = cfg.EnvFile
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	cw := &ConfigWatcher{
		processor: cfg.Processor,
		envPath:   envPath,
		watcher:   watcher,
		stopChan:  make(chan struct{}),
	}
	if stat, err := os.Stat(envPath); err == nil {
		cw.lastModTime = stat.ModTime()
	}
	return cw, nil
}

// SetReloadCallback registers fn to run after a reload that changed at least one key.
func (cw *ConfigWatcher) SetReloadCallback(fn func(changed []string)) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.onReload = fn
}

// Start begins watching the env file's directory, falling back to polling.
func (cw *ConfigWatcher) Start() error {
	dir := filepath.Dir(cw.envPath)
	if err := cw.watcher.Add(dir); err != nil {
		log.Warn().Err(err).Str("path", dir).Msg("Failed to watch config directory, falling back to polling")
		go cw.pollForChanges()
		return nil
	}

	go cw.handleEvents(cw.watcher.Events, cw.watcher.Errors)
	log.Info().Str("env_path", cw.envPath).Msg("Started watching env file for changes")
	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (cw *ConfigWatcher) Stop() {
	cw.stopOnce.Do(func() {
		close(cw.stopChan)
		cw.watcher.Close()
	})
}

// ReloadConfig manually triggers a reload (e.g., from SIGHUP).
func (cw *ConfigWatcher) ReloadConfig() {
	cw.reloadConfig()
}

func (cw *ConfigWatcher) handleEvents(events <-chan fsnotify.Event, errs <-chan error) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Name != cw.envPath && filepath.Base(event.Name) != filepath.Base(cw.envPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Debounce - editors often write in several steps
			time.Sleep(watcherDebounce)
			log.Info().Str("event", event.Op.String()).Msg("Detected env file change")
			cw.reloadConfig()

		case err, ok := <-errs:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Config watcher error")

		case <-cw.stopChan:
			return
		}
	}
}

func (cw *ConfigWatcher) pollForChanges() {
	ticker := time.NewTicker(watcherPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stat, err := os.Stat(cw.envPath)
			if err != nil {
				continue
			}
			cw.mu.Lock()
			changed := stat.ModTime().After(cw.lastModTime)
			if changed {
				cw.lastModTime = stat.ModTime()
			}
			cw.mu.Unlock()
			if changed {
				log.Info().Msg("Detected env file change via polling")
				cw.reloadConfig()
			}
		case <-cw.stopChan:
			return
		}
	}
}

func (cw *ConfigWatcher) reloadConfig() {
	values, err := godotenv.Read(cw.envPath)
	if err != nil {
		log.Error().Err(err).Str("path", cw.envPath).Msg("Failed to read env file")
		return
	}

	changed, err := cw.processor.Apply(values)
	if err != nil {
		log.Error().Err(err).Msg("Rejected env file reload")
		return
	}
	if len(changed) == 0 {
		log.Debug().Msg("Env file reloaded with no processor changes")
		return
	}

	active := cw.processor.Active()
	// Key names only; never log credential values.
	log.Info().
		Strs("changed", changed).
		Str("mode", active.Mode()).
		Msg("Applied processor credential changes from env file")

	cw.mu.Lock()
	cb := cw.onReload
	cw.mu.Unlock()
	if cb != nil {
		cb(changed)
	}
}
