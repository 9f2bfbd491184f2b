package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/spf13/viper"

	"github.com/harrisonrobin/todovault/pkg/model"
)

const (
	xdgAppName = "todovault"
	configFile = "config.json"
	stateFile  = "state.json"
	envPrefix  = "TODOVAULT"
)

// Fields switches the optional task properties on or off.
type Fields struct {
	Content  bool `mapstructure:"content" json:"content"`
	DueDate  bool `mapstructure:"due_date" json:"due_date"`
	Priority bool `mapstructure:"priority" json:"priority"`
	Labels   bool `mapstructure:"labels" json:"labels"`
	Project  bool `mapstructure:"project" json:"project"`
	Section  bool `mapstructure:"section" json:"section"`
}

// Agenda configures the calendar mirror.
type Agenda struct {
	Enabled  bool   `mapstructure:"enabled" json:"enabled"`
	Calendar string `mapstructure:"calendar" json:"calendar"`
}

// Settings is the user configuration.
type Settings struct {
	APIToken            string `mapstructure:"api_token" json:"api_token"`
	VaultPath           string `mapstructure:"vault_path" json:"vault_path"`
	SyncRoot            string `mapstructure:"sync_root" json:"sync_root"`
	ScopeTag            string `mapstructure:"scope_tag" json:"scope_tag"`
	Fields              Fields `mapstructure:"fields" json:"fields"`
	DryRun              bool   `mapstructure:"dry_run" json:"dry_run"`
	LiveSync            bool   `mapstructure:"live_sync" json:"live_sync"`
	PruneDeleted        bool   `mapstructure:"prune_deleted" json:"prune_deleted"`
	SyncIntervalMinutes int    `mapstructure:"sync_interval_minutes" json:"sync_interval_minutes"`
	StatePath           string `mapstructure:"state_path" json:"state_path"`
	LogFile             string `mapstructure:"log_file" json:"log_file"`
	DashboardAddr       string `mapstructure:"dashboard_addr" json:"dashboard_addr"`
	Agenda              Agenda `mapstructure:"agenda" json:"agenda"`
}

// Default returns the settings used when no file exists.
func Default() *Settings {
	return &Settings{
		SyncRoot:            "Todoist",
		Fields:              Fields{Content: true, DueDate: true, Priority: true, Labels: true, Project: true, Section: true},
		LiveSync:            true,
		SyncIntervalMinutes: 15,
		DashboardAddr:       "127.0.0.1:8765",
		Agenda:              Agenda{Calendar: "Tasks"},
	}
}

// Dir returns the configuration directory, ~/.config/todovault.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// bind registers every key with its current value in s, so that environment
// overrides and weakly typed Set calls resolve against the full key set.
func bind(v *viper.Viper, s *Settings) {
	v.SetDefault("api_token", s.APIToken)
	v.SetDefault("vault_path", s.VaultPath)
	v.SetDefault("sync_root", s.SyncRoot)
	v.SetDefault("scope_tag", s.ScopeTag)
	v.SetDefault("fields.content", s.Fields.Content)
	v.SetDefault("fields.due_date", s.Fields.DueDate)
	v.SetDefault("fields.priority", s.Fields.Priority)
	v.SetDefault("fields.labels", s.Fields.Labels)
	v.SetDefault("fields.project", s.Fields.Project)
	v.SetDefault("fields.section", s.Fields.Section)
	v.SetDefault("dry_run", s.DryRun)
	v.SetDefault("live_sync", s.LiveSync)
	v.SetDefault("prune_deleted", s.PruneDeleted)
	v.SetDefault("sync_interval_minutes", s.SyncIntervalMinutes)
	v.SetDefault("state_path", s.StatePath)
	v.SetDefault("log_file", s.LogFile)
	v.SetDefault("dashboard_addr", s.DashboardAddr)
	v.SetDefault("agenda.enabled", s.Agenda.Enabled)
	v.SetDefault("agenda.calendar", s.Agenda.Calendar)
}

// Keys lists every recognised option.
func Keys() []string {
	v := viper.New()
	bind(v, Default())
	keys := v.AllKeys()
	slices.Sort(keys)
	return keys
}

// Load reads the settings at path. A missing file yields the defaults.
// TODOVAULT_* environment variables override the file, with dots in nested
// keys written as underscores (TODOVAULT_AGENDA_CALENDAR).
func Load(path string) (*Settings, error) {
	v := viper.New()
	bind(v, Default())
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg := &Settings{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Save writes s to path, replacing the file atomically.
func Save(path string, s *Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(path, strings.NewReader(string(data)+"\n")); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Set assigns value to key, converting it to the option's type.
func (s *Settings) Set(key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	if !slices.Contains(Keys(), key) {
		return fmt.Errorf("unknown option %q", key)
	}
	v := viper.New()
	bind(v, s)
	v.Set(key, value)
	next := &Settings{}
	if err := v.Unmarshal(next); err != nil {
		return fmt.Errorf("invalid value %q for %s: %w", value, key, err)
	}
	*s = *next
	return nil
}

// Validate reports settings a sync cannot run with.
func (s *Settings) Validate() error {
	if s.APIToken == "" {
		return fmt.Errorf("api_token is not set")
	}
	if s.VaultPath == "" {
		return fmt.Errorf("vault_path is not set")
	}
	if s.SyncIntervalMinutes < 0 {
		return fmt.Errorf("sync_interval_minutes must not be negative")
	}
	return nil
}

// ModelFields converts the field switches for the materializer.
func (s *Settings) ModelFields() model.Fields {
	f := s.Fields
	return model.Fields{
		Content:  f.Content,
		DueDate:  f.DueDate,
		Priority: f.Priority,
		Labels:   f.Labels,
		Project:  f.Project,
		Section:  f.Section,
	}
}

// SyncInterval is the periodic sync period; zero disables the timer.
func (s *Settings) SyncInterval() time.Duration {
	return time.Duration(s.SyncIntervalMinutes) * time.Minute
}

// ResolvedStatePath returns state_path, or state.json beside the config.
func (s *Settings) ResolvedStatePath() (string, error) {
	if s.StatePath != "" {
		return s.StatePath, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, stateFile), nil
}
