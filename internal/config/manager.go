package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Manager loads an HFTConfig and optionally watches its source file for
// changes, hot-swapping only the Risk and Strategy sections (see
// config.go's package doc for why the rest is load-once).
type Manager struct {
	logger     *zap.Logger
	viper      *viper.Viper
	configPath string

	current atomic.Value // *HFTConfig

	watcher    *fsnotify.Watcher
	reloadChan chan struct{}

	callbacks []func(*HFTConfig)
	cbLock    sync.RWMutex

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewManager loads configPath (if it exists) over the package defaults
// and returns a Manager. watch controls whether the file is watched for
// hot reload; it is typically false in tests and true in cmd/hftd.
func NewManager(logger *zap.Logger, configPath string, watch bool) (*Manager, error) {
	m := &Manager{
		logger:     logger,
		viper:      viper.New(),
		configPath: configPath,
		reloadChan: make(chan struct{}, 1),
		stopChan:   make(chan struct{}),
	}

	m.viper.SetConfigFile(configPath)
	m.viper.SetEnvPrefix("HFT")
	m.viper.AutomaticEnv()

	if err := m.load(); err != nil {
		return nil, err
	}

	if watch {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("create config watcher: %w", err)
		}
		m.watcher = watcher
		if err := m.watcher.Add(filepath.Dir(configPath)); err != nil {
			_ = m.watcher.Close()
			return nil, fmt.Errorf("watch config directory: %w", err)
		}
		m.wg.Add(1)
		go m.watchLoop()
	}

	return m, nil
}

// load reads the config file (if present) on top of the compiled
// defaults, validates it, and stores it as the current config.
func (m *Manager) load() error {
	cfg := DefaultHFTConfig()

	if _, err := os.Stat(m.configPath); err == nil {
		if err := m.viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := m.viper.Unmarshal(cfg); err != nil {
			return fmt.Errorf("unmarshal config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	m.current.Store(cfg)
	return nil
}

// reload re-reads the file but only swaps in the Risk and Strategy
// sections of the running config; Network/OrderBook/FPGA/Execution/
// Monitoring stay pinned to whatever was loaded at startup.
func (m *Manager) reload() error {
	if err := m.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	reloaded := DefaultHFTConfig()
	if err := m.viper.Unmarshal(reloaded); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	if err := reloaded.Validate(); err != nil {
		return fmt.Errorf("validate reloaded config: %w", err)
	}

	prev := m.Get()
	next := *prev
	next.Risk = reloaded.Risk
	next.Strategy = reloaded.Strategy
	m.current.Store(&next)

	m.notify(&next)
	return nil
}

// Get returns the current config. Safe for concurrent use.
func (m *Manager) Get() *HFTConfig {
	return m.current.Load().(*HFTConfig)
}

// OnReload registers a callback invoked (in its own goroutine) after
// every successful hot reload.
func (m *Manager) OnReload(cb func(*HFTConfig)) {
	m.cbLock.Lock()
	defer m.cbLock.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

func (m *Manager) notify(cfg *HFTConfig) {
	m.cbLock.RLock()
	defer m.cbLock.RUnlock()
	for _, cb := range m.callbacks {
		go cb(cfg)
	}
}

func (m *Manager) watchLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopChan:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Name == m.configPath && (event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create) {
				select {
				case m.reloadChan <- struct{}{}:
				default:
				}
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("config watcher error", zap.Error(err))
		case <-m.reloadChan:
			time.Sleep(100 * time.Millisecond)
			if err := m.reload(); err != nil {
				m.logger.Error("config reload failed", zap.Error(err))
			} else {
				m.logger.Info("config hot-reloaded", zap.String("path", m.configPath))
			}
		}
	}
}

// Close stops the watcher goroutine, if any.
func (m *Manager) Close() error {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
	m.wg.Wait()
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}
