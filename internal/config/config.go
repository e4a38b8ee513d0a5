// Package config loads themeupdater settings from defaults, the user config
// file, THEMEUPDATER_* environment variables and command-line overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	appErrors "github.com/abhishekdudeja804/floorspace-theme-updater/internal/errors"
)

// Configuration keys.
const (
	KeyRepo              = "repo"
	KeyBranch            = "branch"
	KeyToken             = "token"
	KeyComponent         = "component"
	KeyComponentPath     = "component_path"
	KeyInstallRoot       = "install_root"
	KeyHeaderFile        = "header_file"
	KeyChangelogPath     = "changelog_path"
	KeyManifestFile      = "manifest_file"
	KeyBackupDir         = "backup_dir"
	KeyDataDir           = "data_dir"
	KeyCacheTTL          = "cache_ttl"
	KeyTimeout           = "timeout"
	KeyRawBaseURL        = "raw_base_url"
	KeyAPIBaseURL        = "api_base_url"
	KeyUserAgent         = "user_agent"
	KeyOnBackupFailure   = "on_backup_failure"
	KeyCacheResetCommand = "cache_reset_command"
	KeyNATSURL           = "nats_url"
	KeyNATSSubject       = "nats_subject"
	KeyListenAddr        = "listen_addr"
	KeyLogLevel          = "log_level"
	KeyLogFormat         = "log_format"
)

const (
	envPrefix = "THEMEUPDATER"
	appName   = "themeupdater"

	DefaultRepo          = "websitetown/floorspace-site"
	DefaultBranch        = "dev_v1"
	DefaultComponent     = "floorspace-v2"
	DefaultCacheTTL      = 5 * time.Minute
	DefaultTimeout       = 5 * time.Minute
	DefaultRawBaseURL    = "https://raw.githubusercontent.com"
	DefaultAPIBaseURL    = "https://api.github.com"
	DefaultNATSSubject   = "themeupdater.operations"
	DefaultListenAddr    = "127.0.0.1:8787"
	DefaultDatabaseName  = "themeupdater.db"
	DefaultPIDFileName   = "serve.pid"
	componentPathPattern = "wp-content/themes/%s"
)

// Config is the resolved configuration.
type Config struct {
	Repo              string
	Branch            string
	Token             string
	Component         string
	ComponentPath     string
	InstallRoot       string
	HeaderFile        string
	ChangelogPath     string
	ManifestFile      string
	BackupDir         string
	DataDir           string
	CacheTTL          time.Duration
	Timeout           time.Duration
	RawBaseURL        string
	APIBaseURL        string
	UserAgent         string
	OnBackupFailure   string
	CacheResetCommand string
	NATSURL           string
	NATSSubject       string
	ListenAddr        string
	LogLevel          string
	LogFormat         string

	// File is the config file that was read, or empty if none existed.
	File string
}

type loadSettings struct {
	configFile string
	defaults   map[string]any
	overrides  map[string]any
}

// Option configures Load.
type Option func(*loadSettings)

// WithConfigFile reads path instead of the default user config file.
func WithConfigFile(path string) Option {
	return func(s *loadSettings) {
		s.configFile = path
	}
}

// WithOverrides applies values typically coming from CLI flags. Empty
// strings and zero durations are ignored so unset flags keep lower
// precedence values.
func WithOverrides(overrides map[string]any) Option {
	return func(s *loadSettings) {
		if s.overrides == nil {
			s.overrides = make(map[string]any)
		}
		for k, v := range overrides {
			s.overrides[k] = v
		}
	}
}

// WithDefaults replaces built-in defaults. The config file, environment
// and overrides still take precedence.
func WithDefaults(defaults map[string]any) Option {
	return func(s *loadSettings) {
		if s.defaults == nil {
			s.defaults = make(map[string]any)
		}
		for k, v := range defaults {
			s.defaults[k] = v
		}
	}
}

// Dir returns the themeupdater config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/themeupdater if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName), nil
}

// DefaultFile returns the default config file path.
func DefaultFile() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", fmt.Errorf("determine config directory: %w", err)
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load resolves the configuration using the precedence:
// defaults < config file < environment variables < overrides.
func Load(opts ...Option) (*Config, error) {
	settings := loadSettings{}
	for _, opt := range opts {
		opt(&settings)
	}

	configFile := strings.TrimSpace(settings.configFile)
	if configFile == "" {
		path, err := DefaultFile()
		if err != nil {
			return nil, err
		}
		configFile = path
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	for k, val := range settings.defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	read, err := mergeConfigFile(v, configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	for k, val := range settings.overrides {
		if isZero(val) {
			continue
		}
		v.Set(k, val)
	}

	cfg := fromViper(v)
	if read {
		cfg.File = configFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeConfigFile(v *viper.Viper, path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("config path %s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyRepo, DefaultRepo)
	v.SetDefault(KeyBranch, DefaultBranch)
	v.SetDefault(KeyToken, "")
	v.SetDefault(KeyComponent, DefaultComponent)
	v.SetDefault(KeyComponentPath, "")
	v.SetDefault(KeyInstallRoot, "")
	v.SetDefault(KeyHeaderFile, "style.css")
	v.SetDefault(KeyChangelogPath, "CHANGELOG.md")
	v.SetDefault(KeyManifestFile, "versions.json")
	v.SetDefault(KeyBackupDir, "")
	v.SetDefault(KeyDataDir, "")
	v.SetDefault(KeyCacheTTL, DefaultCacheTTL)
	v.SetDefault(KeyTimeout, DefaultTimeout)
	v.SetDefault(KeyRawBaseURL, DefaultRawBaseURL)
	v.SetDefault(KeyAPIBaseURL, DefaultAPIBaseURL)
	v.SetDefault(KeyUserAgent, appName)
	v.SetDefault(KeyOnBackupFailure, "continue")
	v.SetDefault(KeyCacheResetCommand, "")
	v.SetDefault(KeyNATSURL, "")
	v.SetDefault(KeyNATSSubject, DefaultNATSSubject)
	v.SetDefault(KeyListenAddr, DefaultListenAddr)
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyLogFormat, "console")
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Repo:              strings.Trim(strings.TrimSpace(v.GetString(KeyRepo)), "/"),
		Branch:            strings.TrimSpace(v.GetString(KeyBranch)),
		Token:             strings.TrimSpace(v.GetString(KeyToken)),
		Component:         strings.TrimSpace(v.GetString(KeyComponent)),
		ComponentPath:     strings.Trim(strings.TrimSpace(v.GetString(KeyComponentPath)), "/"),
		InstallRoot:       strings.TrimSpace(v.GetString(KeyInstallRoot)),
		HeaderFile:        strings.TrimSpace(v.GetString(KeyHeaderFile)),
		ChangelogPath:     strings.Trim(strings.TrimSpace(v.GetString(KeyChangelogPath)), "/"),
		ManifestFile:      strings.TrimSpace(v.GetString(KeyManifestFile)),
		BackupDir:         strings.TrimSpace(v.GetString(KeyBackupDir)),
		DataDir:           strings.TrimSpace(v.GetString(KeyDataDir)),
		CacheTTL:          v.GetDuration(KeyCacheTTL),
		Timeout:           v.GetDuration(KeyTimeout),
		RawBaseURL:        strings.TrimRight(strings.TrimSpace(v.GetString(KeyRawBaseURL)), "/"),
		APIBaseURL:        strings.TrimRight(strings.TrimSpace(v.GetString(KeyAPIBaseURL)), "/"),
		UserAgent:         v.GetString(KeyUserAgent),
		OnBackupFailure:   strings.ToLower(strings.TrimSpace(v.GetString(KeyOnBackupFailure))),
		CacheResetCommand: v.GetString(KeyCacheResetCommand),
		NATSURL:           strings.TrimSpace(v.GetString(KeyNATSURL)),
		NATSSubject:       strings.TrimSpace(v.GetString(KeyNATSSubject)),
		ListenAddr:        strings.TrimSpace(v.GetString(KeyListenAddr)),
		LogLevel:          strings.TrimSpace(v.GetString(KeyLogLevel)),
		LogFormat:         strings.ToLower(strings.TrimSpace(v.GetString(KeyLogFormat))),
	}

	if cfg.ComponentPath == "" && cfg.Component != "" {
		cfg.ComponentPath = fmt.Sprintf(componentPathPattern, cfg.Component)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	if cfg.BackupDir == "" {
		cfg.BackupDir = filepath.Join(cfg.DataDir, "backups")
	}
	for _, p := range []*string{&cfg.InstallRoot, &cfg.DataDir, &cfg.BackupDir} {
		if *p == "" {
			continue
		}
		if abs, err := filepath.Abs(*p); err == nil {
			*p = abs
		}
	}
	return cfg
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory
		return "." + appName
	}
	return filepath.Join(home, "."+appName)
}

// Validate checks the configuration for values no operation can work with.
// An empty install root is allowed here; commands that touch the
// installation call RequireInstallRoot.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return appErrors.New(appErrors.CodeValidation, fmt.Sprintf(format, args...), nil)
	}

	parts := strings.Split(c.Repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return invalid("repo must look like owner/name, got %q", c.Repo)
	}
	if c.Branch == "" {
		return invalid("branch must not be empty")
	}
	if c.ComponentPath == "" {
		return invalid("component or component_path must be set")
	}
	if c.HeaderFile == "" {
		return invalid("header_file must not be empty")
	}
	if c.CacheTTL < 0 {
		return invalid("cache_ttl must not be negative")
	}
	if c.Timeout <= 0 {
		return invalid("timeout must be positive")
	}
	for key, raw := range map[string]string{KeyRawBaseURL: c.RawBaseURL, KeyAPIBaseURL: c.APIBaseURL} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("%s must be an http(s) URL, got %q", key, raw)
		}
	}
	switch c.OnBackupFailure {
	case "continue", "abort":
	default:
		return invalid("on_backup_failure must be continue or abort, got %q", c.OnBackupFailure)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return invalid("log_format must be console or json, got %q", c.LogFormat)
	}
	if c.NATSURL != "" && c.NATSSubject == "" {
		return invalid("nats_subject must be set when nats_url is")
	}
	if c.InstallRoot != "" {
		// The swap replaces everything under the install root.
		if within(c.InstallRoot, c.DataDir) {
			return invalid("data_dir %s must not be inside install_root %s", c.DataDir, c.InstallRoot)
		}
		if within(c.InstallRoot, c.BackupDir) {
			return invalid("backup_dir %s must not be inside install_root %s", c.BackupDir, c.InstallRoot)
		}
	}
	return nil
}

// within reports whether dir is root or lies below it.
func within(root, dir string) bool {
	if dir == "" {
		return false
	}
	root, dir = absPath(root), absPath(dir)
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// RequireInstallRoot fails when no installation root is configured.
func (c *Config) RequireInstallRoot() error {
	if c.InstallRoot == "" {
		return appErrors.New(appErrors.CodeValidation,
			"install_root is not set (use --install-root, THEMEUPDATER_INSTALL_ROOT or the config file)", nil)
	}
	return nil
}

// URLs

func (c *Config) rawURL(elems ...string) string {
	return c.RawBaseURL + "/" + path.Join(append([]string{c.Repo, c.Branch}, elems...)...)
}

// HeaderURL is the component header file on the tracked branch.
func (c *Config) HeaderURL() string {
	return c.rawURL(c.ComponentPath, c.HeaderFile)
}

// ChangelogURL is the changelog document on the tracked branch.
func (c *Config) ChangelogURL() string {
	return c.rawURL(c.ChangelogPath)
}

// ManifestURL is the component version manifest, or empty when disabled.
func (c *Config) ManifestURL() string {
	if c.ManifestFile == "" {
		return ""
	}
	return c.rawURL(c.ComponentPath, c.ManifestFile)
}

// ArchiveURL is the repository archive for the tracked branch.
func (c *Config) ArchiveURL() string {
	return fmt.Sprintf("%s/repos/%s/zipball/%s", c.APIBaseURL, c.Repo, url.PathEscape(c.Branch))
}

// Paths

// DatabasePath is the sqlite file holding history, cache and state.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, DefaultDatabaseName)
}

// LockDir holds the per-installation lock files.
func (c *Config) LockDir() string {
	return filepath.Join(c.DataDir, "locks")
}

// PIDFile is where a running API server records its PID.
func (c *Config) PIDFile() string {
	return filepath.Join(c.DataDir, DefaultPIDFileName)
}

// EnsureDataDir creates the data directory.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

func isZero(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case time.Duration:
		return x == 0
	}
	return false
}
