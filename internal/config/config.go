package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the persisted configuration for a djistream deployment: flow
// timing/pairing overrides, the log settings, the status hub's listen
// address, and a set of named device profiles a user can launch by name.
type Config struct {
	Flow      FlowConfig               `yaml:"flow" json:"flow"`
	Log       LogConfig                `yaml:"log" json:"log"`
	StatusHub StatusHubConfig          `yaml:"status_hub" json:"status_hub"`
	Devices   map[string]DeviceProfile `yaml:"devices" json:"devices"`
}

// FlowConfig tunes the connect-pair-prepare-stream sequence.
type FlowConfig struct {
	StepTimeoutSeconds int    `yaml:"step_timeout_seconds" json:"step_timeout_seconds"`
	PairingPIN         string `yaml:"pairing_pin" json:"pairing_pin"`
}

// StepTimeout returns the configured step timeout as a duration.
func (f FlowConfig) StepTimeout() time.Duration {
	return time.Duration(f.StepTimeoutSeconds) * time.Second
}

// LogConfig controls the file-rotating logger.
type LogConfig struct {
	FilePath   string `yaml:"file_path" json:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	Debug      bool   `yaml:"debug" json:"debug"`
}

// StatusHubConfig controls the websocket status-broadcast server.
type StatusHubConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
}

// DeviceProfile is a named, reusable set of streaming parameters for one
// physical camera: which WiFi to join and what to stream to it.
type DeviceProfile struct {
	Name          string `yaml:"name" json:"name"`
	AddressFilter string `yaml:"address_filter" json:"address_filter"`
	WiFiSSID      string `yaml:"wifi_ssid" json:"wifi_ssid"`
	WiFiPSK       string `yaml:"wifi_psk" json:"wifi_psk"`
	RTMPURL       string `yaml:"rtmp_url" json:"rtmp_url"`
	Resolution    string `yaml:"resolution" json:"resolution"` // 480p | 720p | 1080p
	BitrateKbps   int    `yaml:"bitrate_kbps" json:"bitrate_kbps"`
	FPS           int    `yaml:"fps" json:"fps"`
	Stabilization string `yaml:"stabilization" json:"stabilization"`
}

// Manager loads, validates and persists a Config, guarding concurrent
// access the way a long-running CLI process needs to.
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	filePath string
}

// NewManager builds a Manager backed by filePath. Call Load before use.
func NewManager(filePath string) *Manager {
	return &Manager{filePath: filePath}
}

// Load reads the config file, creating a default one if it doesn't exist.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.config = DefaultConfig()
			return m.saveUnsafe()
		}
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.config = &cfg
	return nil
}

// Save persists the current in-memory configuration.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveUnsafe()
}

func (m *Manager) saveUnsafe() error {
	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}
	// Stream keys and WiFi PSKs live in here; keep it out of other users' reach.
	return os.WriteFile(m.filePath, data, 0600)
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.config
}

// Update validates and replaces the configuration, then persists it.
func (m *Manager) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = &cfg
	return m.saveUnsafe()
}

// SaveDeviceProfile adds or replaces a named device profile.
func (m *Manager) SaveDeviceProfile(name string, profile DeviceProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.Devices == nil {
		m.config.Devices = make(map[string]DeviceProfile)
	}
	m.config.Devices[name] = profile
	return m.saveUnsafe()
}

// DeviceProfile retrieves a named device profile.
func (m *Manager) DeviceProfile(name string) (DeviceProfile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.config.Devices[name]
	return p, ok
}

// DeleteDeviceProfile removes a named device profile.
func (m *Manager) DeleteDeviceProfile(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config.Devices != nil {
		delete(m.config.Devices, name)
	}
	return m.saveUnsafe()
}

// Validate checks the configuration for obviously broken values.
func (c *Config) Validate() error {
	var errs []string

	if c.Flow.StepTimeoutSeconds < 1 {
		errs = append(errs, fmt.Sprintf("flow.step_timeout_seconds %d is invalid (must be >= 1)", c.Flow.StepTimeoutSeconds))
	}

	for name, p := range c.Devices {
		switch p.Resolution {
		case "480p", "720p", "1080p", "":
		default:
			errs = append(errs, fmt.Sprintf("device %q: resolution %q is not one of 480p/720p/1080p", name, p.Resolution))
		}
		if p.FPS != 0 && p.FPS != 25 && p.FPS != 30 {
			errs = append(errs, fmt.Sprintf("device %q: fps %d is not 25 or 30", name, p.FPS))
		}
		if p.BitrateKbps < 0 {
			errs = append(errs, fmt.Sprintf("device %q: bitrate_kbps %d must not be negative", name, p.BitrateKbps))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// DefaultConfig is used the first time a Manager runs against a path with
// no existing file.
func DefaultConfig() *Config {
	return &Config{
		Flow: FlowConfig{
			StepTimeoutSeconds: 10,
			PairingPIN:         "5160",
		},
		Log: LogConfig{
			FilePath:   "logs/djistream.log",
			MaxSizeMB:  10,
			MaxBackups: 5,
			Debug:      false,
		},
		StatusHub: StatusHubConfig{
			ListenAddr: ":8090",
		},
		Devices: make(map[string]DeviceProfile),
	}
}
