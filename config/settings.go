package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Settings is the persisted configuration (settings.json).
type Settings struct {
	Server   ServerSettings   `json:"server"`
	Jellyfin JellyfinSettings `json:"jellyfin"`
	Refresh  RefreshSettings  `json:"refresh"`
	Storage  StorageSettings  `json:"storage"`
	Log      LogConfig        `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// WebhookToken, when set, must be sent as ?token= on webhook calls.
	WebhookToken string `json:"webhookToken"`
}

type JellyfinSettings struct {
	URL                   string `json:"url"`
	APIKey                string `json:"apiKey"`
	RequestTimeoutSeconds int    `json:"requestTimeoutSeconds"`
	MaxRetries            int    `json:"maxRetries"`
}

// RefreshSettings tunes event batching and list recomputation.
type RefreshSettings struct {
	BatchDelaySeconds      int `json:"batchDelaySeconds"`
	TickIntervalMillis     int `json:"tickIntervalMillis"`
	PlaybackStateCapacity  int `json:"playbackStateCapacity"`
	MaxConcurrentRefreshes int `json:"maxConcurrentRefreshes"`
	ListTimeoutSeconds     int `json:"listTimeoutSeconds"`
	SimilarityMinShared    int `json:"similarityMinShared"`
	BuildWorkers           int `json:"buildWorkers"`
	ScheduleCheckSeconds   int `json:"scheduleCheckSeconds"`
}

func (r RefreshSettings) BatchDelay() time.Duration {
	return time.Duration(r.BatchDelaySeconds) * time.Second
}

func (r RefreshSettings) TickInterval() time.Duration {
	return time.Duration(r.TickIntervalMillis) * time.Millisecond
}

func (r RefreshSettings) ScheduleCheckInterval() time.Duration {
	return time.Duration(r.ScheduleCheckSeconds) * time.Second
}

func (r RefreshSettings) ListTimeout() time.Duration {
	return time.Duration(r.ListTimeoutSeconds) * time.Second
}

type StorageSettings struct {
	ListsFile    string `json:"listsFile"`
	DatabasePath string `json:"databasePath"`
}

// LogConfig controls logging output.
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	Format     string `json:"format"`
	MaxSize    int    `json:"maxSize"`    // MB before rotation
	MaxBackups int    `json:"maxBackups"` // old files to keep
	MaxAge     int    `json:"maxAge"`     // days to keep old files
	Compress   bool   `json:"compress"`
}

func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{Host: "0.0.0.0", Port: 7788},
		Jellyfin: JellyfinSettings{
			URL:                   "http://localhost:8096",
			RequestTimeoutSeconds: 30,
			MaxRetries:            3,
		},
		Refresh: RefreshSettings{
			BatchDelaySeconds:      5,
			TickIntervalMillis:     1000,
			PlaybackStateCapacity:  10000,
			MaxConcurrentRefreshes: 2,
			ListTimeoutSeconds:     300,
			SimilarityMinShared:    1,
			BuildWorkers:           4,
			ScheduleCheckSeconds:   30,
		},
		Storage: StorageSettings{
			ListsFile:    filepath.Join("cache", "lists.json"),
			DatabasePath: filepath.Join("cache", "smartlists.db"),
		},
		Log: LogConfig{
			File:       filepath.Join("cache", "logs", "smartlists.log"),
			Level:      "info",
			Format:     "text",
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     14,
			Compress:   true,
		},
	}
}

// Normalize replaces missing or out-of-range values with defaults.
func (s *Settings) Normalize() {
	d := DefaultSettings()
	if s.Server.Port <= 0 {
		s.Server.Port = d.Server.Port
	}
	if strings.TrimSpace(s.Server.Host) == "" {
		s.Server.Host = d.Server.Host
	}
	s.Jellyfin.URL = strings.TrimRight(strings.TrimSpace(s.Jellyfin.URL), "/")
	if s.Jellyfin.RequestTimeoutSeconds <= 0 {
		s.Jellyfin.RequestTimeoutSeconds = d.Jellyfin.RequestTimeoutSeconds
	}
	if s.Jellyfin.MaxRetries < 0 {
		s.Jellyfin.MaxRetries = 0
	}

	r := &s.Refresh
	if r.BatchDelaySeconds <= 0 {
		r.BatchDelaySeconds = d.Refresh.BatchDelaySeconds
	}
	if r.TickIntervalMillis <= 0 {
		r.TickIntervalMillis = d.Refresh.TickIntervalMillis
	}
	if r.PlaybackStateCapacity <= 0 {
		r.PlaybackStateCapacity = d.Refresh.PlaybackStateCapacity
	}
	if r.MaxConcurrentRefreshes <= 0 {
		r.MaxConcurrentRefreshes = d.Refresh.MaxConcurrentRefreshes
	}
	if r.ListTimeoutSeconds <= 0 {
		r.ListTimeoutSeconds = d.Refresh.ListTimeoutSeconds
	}
	if r.SimilarityMinShared <= 0 {
		r.SimilarityMinShared = d.Refresh.SimilarityMinShared
	}
	if r.BuildWorkers <= 0 {
		r.BuildWorkers = d.Refresh.BuildWorkers
	}
	if r.ScheduleCheckSeconds <= 0 {
		r.ScheduleCheckSeconds = d.Refresh.ScheduleCheckSeconds
	}

	if strings.TrimSpace(s.Storage.ListsFile) == "" {
		s.Storage.ListsFile = d.Storage.ListsFile
	}
	if strings.TrimSpace(s.Storage.DatabasePath) == "" {
		s.Storage.DatabasePath = d.Storage.DatabasePath
	}
	if strings.TrimSpace(s.Log.Level) == "" {
		s.Log.Level = d.Log.Level
	}
}

// ApplyEnv overlays environment overrides.
func (s *Settings) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv("SMARTLISTS_JELLYFIN_URL")); v != "" {
		s.Jellyfin.URL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(getenv("SMARTLISTS_JELLYFIN_API_KEY")); v != "" {
		s.Jellyfin.APIKey = v
	}
}

// Manager loads and saves settings on a filesystem.
type Manager struct {
	fs   afero.Fs
	path string
}

func NewManager(configPath string) *Manager {
	return NewManagerFs(afero.NewOsFs(), configPath)
}

// NewManagerFs uses the given filesystem, e.g. afero.NewMemMapFs in tests.
func NewManagerFs(fsys afero.Fs, configPath string) *Manager {
	return &Manager{fs: fsys, path: configPath}
}

func (m *Manager) Path() string { return m.path }

// EnsureDir makes sure the directory for the settings file exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return m.fs.MkdirAll(dir, 0o755)
}

// Load reads settings.json or creates it with defaults if missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := m.fs.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}

	data, err := afero.ReadFile(m.fs, m.path)
	if err != nil {
		return Settings{}, err
	}

	// Start from defaults so sections missing from older files keep sane values.
	s := DefaultSettings()
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse %s: %w", m.path, err)
	}
	s.Normalize()
	return s, nil
}

// Save writes settings atomically via a temp file and rename.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	if err := afero.WriteFile(m.fs, tmp, data, 0o644); err != nil {
		_ = m.fs.Remove(tmp)
		return err
	}
	return m.fs.Rename(tmp, m.path)
}
