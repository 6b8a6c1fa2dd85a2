package lockless

import (
	"fmt"
	"sync"
	"time"

	"github.com/agilira/argus"
)

// CadenceSetter is the subset of grcu.GcThread's API HotConfig needs.
// Defined as an interface, rather than importing grcu directly, so the
// root package stays decoupled from the concurrency packages' internal
// layout the same way balios.HotConfig only depends on the Cache
// interface, not on a concrete cache type.
type CadenceSetter interface {
	SetCadence(d time.Duration)
}

// LoadFactorSetter is the subset of hashmap.Map[K, V]'s API HotConfig
// needs. hashmap.Map is generic, so a plain interface is the only way
// to hold "some map" here without parameterizing HotConfig itself.
type LoadFactorSetter interface {
	SetLoadFactor(f float64)
}

// HotConfig watches a configuration file via Argus and passes new
// values of the two knobs the design allows to vary without a
// redeploy to their targets: a grcu.GcThread's tick cadence (through
// SetCadence, which a GcThread that is already running does not pick
// up) and a hashmap.Map's resize load factor (through SetLoadFactor,
// read again on every insert).
// Grounded on balios/hot-reload.go's watcher wiring and parse helpers,
// retargeted from cache TTL/window-ratio knobs to these two.
type HotConfig struct {
	watcher *argus.Watcher
	mu      sync.RWMutex
	config  Config

	gcThread CadenceSetter
	hashMap  LoadFactorSetter

	// OnReload is called after configuration is successfully reloaded.
	// Must be fast and non-blocking.
	OnReload func(oldConfig, newConfig Config)
}

// HotConfigOptions configures a HotConfig.
type HotConfigOptions struct {
	// ConfigPath is the file Argus watches. Supports JSON, YAML, TOML,
	// HCL, INI, Properties.
	ConfigPath string

	// PollInterval is how often Argus checks the file for changes.
	// Default 1s, minimum 100ms.
	PollInterval time.Duration

	// GcThread, if set, has its cadence retuned on reload from the
	// config file's "gc_cadence" duration string.
	GcThread CadenceSetter

	// HashMap, if set, has its load factor retuned on reload from the
	// config file's "hashmap_load_factor" float.
	HashMap LoadFactorSetter

	OnReload func(oldConfig, newConfig Config)
}

// NewHotConfig starts watching opts.ConfigPath immediately.
//
// Example configuration file (YAML):
//
//	lockless:
//	  gc_cadence: "4ms"
//	  hashmap_load_factor: 0.7
func NewHotConfig(opts HotConfigOptions) (*HotConfig, error) {
	if opts.ConfigPath == "" {
		return nil, fmt.Errorf("config_path is required")
	}

	if opts.PollInterval == 0 {
		opts.PollInterval = time.Second
	} else if opts.PollInterval < 100*time.Millisecond {
		opts.PollInterval = 100 * time.Millisecond
	}

	hc := &HotConfig{
		config:   DefaultConfig(),
		gcThread: opts.GcThread,
		hashMap:  opts.HashMap,
		OnReload: opts.OnReload,
	}

	watcher, err := argus.UniversalConfigWatcherWithConfig(opts.ConfigPath, hc.handleConfigChange, argus.Config{
		PollInterval: opts.PollInterval,
	})
	if err != nil {
		return nil, err
	}
	hc.watcher = watcher

	return hc, nil
}

// Start begins watching the configuration file for changes.
func (hc *HotConfig) Start() error {
	if hc.watcher.IsRunning() {
		return nil
	}
	return hc.watcher.Start()
}

// Stop stops watching the configuration file.
func (hc *HotConfig) Stop() error {
	return hc.watcher.Stop()
}

// GetConfig returns the current normalized configuration.
func (hc *HotConfig) GetConfig() Config {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.config
}

func (hc *HotConfig) handleConfigChange(data map[string]interface{}) {
	hc.mu.Lock()
	oldConfig := hc.config
	newConfig := hc.parseConfig(data)
	hc.config = newConfig
	hc.mu.Unlock()

	if hc.gcThread != nil && newConfig.GcCadence != oldConfig.GcCadence {
		hc.gcThread.SetCadence(newConfig.GcCadence)
	}
	if hc.hashMap != nil && newConfig.HashMapLoadFactor != oldConfig.HashMapLoadFactor {
		hc.hashMap.SetLoadFactor(newConfig.HashMapLoadFactor)
	}

	if hc.OnReload != nil {
		hc.OnReload(oldConfig, newConfig)
	}
}

func parseDuration(value interface{}) (time.Duration, bool) {
	if str, ok := value.(string); ok {
		if d, err := time.ParseDuration(str); err == nil {
			return d, true
		}
	}
	return 0, false
}

func parseFloatInRange(value interface{}, min, max float64) (float64, bool) {
	if v, ok := value.(float64); ok {
		if v > min && v < max {
			return v, true
		}
	}
	return 0, false
}

func (hc *HotConfig) parseConfig(data map[string]interface{}) Config {
	config := hc.config

	section, ok := data["lockless"].(map[string]interface{})
	if !ok {
		if _, hasCadence := data["gc_cadence"]; hasCadence {
			section = data
		} else {
			return config
		}
	}

	if cadence, ok := parseDuration(section["gc_cadence"]); ok {
		config.GcCadence = cadence
	}
	if factor, ok := parseFloatInRange(section["hashmap_load_factor"], 0, 1); ok {
		config.HashMapLoadFactor = factor
	}

	return config
}
