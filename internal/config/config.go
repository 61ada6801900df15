package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// MatchType defines how a path pattern is interpreted.
type MatchType string

const (
	// MatchTypeExact matches the path exactly.
	MatchTypeExact MatchType = "Exact"
	// MatchTypePrefix matches any path starting with the prefix.
	MatchTypePrefix MatchType = "Prefix"
)

// LogLevel defines the minimum severity for error logs.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// HandlerTypeStaticFileServer is the handler type registered for the file server.
const HandlerTypeStaticFileServer = "StaticFileServer"

const (
	defaultServerAddress         = ":8000"
	defaultLogLevel              = LogLevelInfo
	defaultAccessLogEnabled      = true
	defaultAccessLogTarget       = "stdout"
	defaultAccessLogFormat       = "json"
	defaultAccessLogRealIPHeader = "X-Forwarded-For"
	defaultErrorLogTarget        = "stderr"
	defaultListingBaseURL        = "http://localhost:8000"
)

// Config is the top-level configuration structure for the server.
type Config struct {
	Server  *ServerConfig           `json:"server,omitempty" toml:"server,omitempty" yaml:"server,omitempty"`
	Routing *RoutingConfig          `json:"routing,omitempty" toml:"routing,omitempty" yaml:"routing,omitempty"`
	Logging *LoggingConfig          `json:"logging,omitempty" toml:"logging,omitempty" yaml:"logging,omitempty"`
	Static  *StaticFileServerConfig `json:"static,omitempty" toml:"static,omitempty" yaml:"static,omitempty"`

	// OriginalFilePath is the file the configuration was loaded from, if any.
	OriginalFilePath string `json:"-" toml:"-" yaml:"-"`
}

// ServerConfig holds general server settings.
type ServerConfig struct {
	Address *string `json:"address,omitempty" toml:"address,omitempty" yaml:"address,omitempty"`
}

// RoutingConfig contains the list of routes.
type RoutingConfig struct {
	Routes []Route `json:"routes,omitempty" toml:"routes,omitempty" yaml:"routes,omitempty"`
}

// Route defines a single routing rule.
type Route struct {
	PathPattern string    `json:"path_pattern" toml:"path_pattern" yaml:"path_pattern"`
	MatchType   MatchType `json:"match_type" toml:"match_type" yaml:"match_type"`
	HandlerType string    `json:"handler_type" toml:"handler_type" yaml:"handler_type"`
}

// LoggingConfig holds logging configurations.
type LoggingConfig struct {
	LogLevel  LogLevel         `json:"log_level,omitempty" toml:"log_level,omitempty" yaml:"log_level,omitempty"`
	AccessLog *AccessLogConfig `json:"access_log,omitempty" toml:"access_log,omitempty" yaml:"access_log,omitempty"`
	ErrorLog  *ErrorLogConfig  `json:"error_log,omitempty" toml:"error_log,omitempty" yaml:"error_log,omitempty"`
}

// AccessLogConfig configures access logging.
type AccessLogConfig struct {
	Enabled        *bool           `json:"enabled,omitempty" toml:"enabled,omitempty" yaml:"enabled,omitempty"`
	Target         *string         `json:"target,omitempty" toml:"target,omitempty" yaml:"target,omitempty"`
	Format         string          `json:"format,omitempty" toml:"format,omitempty" yaml:"format,omitempty"`
	TrustedProxies []string        `json:"trusted_proxies,omitempty" toml:"trusted_proxies,omitempty" yaml:"trusted_proxies,omitempty"`
	RealIPHeader   *string         `json:"real_ip_header,omitempty" toml:"real_ip_header,omitempty" yaml:"real_ip_header,omitempty"`
	Rotation       *RotationConfig `json:"rotation,omitempty" toml:"rotation,omitempty" yaml:"rotation,omitempty"`
}

// ErrorLogConfig configures error logging.
type ErrorLogConfig struct {
	Target   *string         `json:"target,omitempty" toml:"target,omitempty" yaml:"target,omitempty"`
	Format   string          `json:"format,omitempty" toml:"format,omitempty" yaml:"format,omitempty"`
	Rotation *RotationConfig `json:"rotation,omitempty" toml:"rotation,omitempty" yaml:"rotation,omitempty"`
}

// RotationConfig controls size based rotation of file log targets.
// Zero values fall back to lumberjack's own defaults.
type RotationConfig struct {
	MaxSizeMB  int  `json:"max_size_mb,omitempty" toml:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`
	MaxBackups int  `json:"max_backups,omitempty" toml:"max_backups,omitempty" yaml:"max_backups,omitempty"`
	MaxAgeDays int  `json:"max_age_days,omitempty" toml:"max_age_days,omitempty" yaml:"max_age_days,omitempty"`
	Compress   bool `json:"compress,omitempty" toml:"compress,omitempty" yaml:"compress,omitempty"`
}

// StaticFileServerConfig configures the "StaticFileServer" handler. The
// document root is not configurable: files are always served from the
// process working directory.
type StaticFileServerConfig struct {
	ListingBaseURL *string           `json:"listing_base_url,omitempty" toml:"listing_base_url,omitempty" yaml:"listing_base_url,omitempty"`
	MimeTypesMap   map[string]string `json:"mime_types,omitempty" toml:"mime_types,omitempty" yaml:"mime_types,omitempty"`
	MimeTypesPath  *string           `json:"mime_types_path,omitempty" toml:"mime_types_path,omitempty" yaml:"mime_types_path,omitempty"`

	// ResolvedMimeTypes is MimeTypesMap merged with the contents of
	// MimeTypesPath, keys lowercased. Populated by validation.
	ResolvedMimeTypes map[string]string `json:"-" toml:"-" yaml:"-"`
}

// ConfigError reports a problem with a configuration file or one of the
// files it references.
type ConfigError struct {
	FilePath string
	Message  string
	Err      error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	if e.FilePath != "" {
		b.WriteString(e.FilePath)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsFilePath reports whether a log target names a file rather than a
// standard stream.
func IsFilePath(target string) bool {
	return target != "stdout" && target != "stderr"
}

// Default returns a fully defaulted configuration equivalent to running
// without a configuration file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig reads, parses, defaults and validates the configuration file at
// path. The format is chosen by extension (.json, .toml, .yaml, .yml); any
// other extension is auto-detected by trying JSON, then TOML, then YAML.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("configuration file path cannot be empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{FilePath: path, Message: "failed to read configuration file", Err: err}
	}

	cfg, err := parseConfig(data, filepath.Ext(path))
	if err != nil {
		return nil, &ConfigError{FilePath: path, Message: "failed to parse configuration file", Err: err}
	}
	cfg.OriginalFilePath = path

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, &ConfigError{FilePath: path, Message: "invalid configuration", Err: err}
	}
	return cfg, nil
}

func parseConfig(data []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".json":
		if err := decodeJSON(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		jsonErr := decodeJSON(data, &cfg)
		if jsonErr == nil {
			return &cfg, nil
		}
		cfg = Config{}
		tomlErr := toml.Unmarshal(data, &cfg)
		if tomlErr == nil && len(bytes.TrimSpace(data)) > 0 {
			return &cfg, nil
		}
		if tomlErr == nil {
			tomlErr = fmt.Errorf("empty input")
		}
		cfg = Config{}
		yamlErr := yaml.Unmarshal(data, &cfg)
		if yamlErr == nil && len(bytes.TrimSpace(data)) > 0 && looksLikeYAMLMapping(data) {
			return &cfg, nil
		}
		if yamlErr == nil {
			yamlErr = fmt.Errorf("not a YAML mapping")
		}
		return nil, fmt.Errorf("failed to auto-detect and parse config (JSON error: %v; TOML error: %v; YAML error: %v)", jsonErr, tomlErr, yamlErr)
	}
	return &cfg, nil
}

func decodeJSON(data []byte, cfg *Config) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

// looksLikeYAMLMapping guards auto-detection: a bare scalar such as
// "not json or toml" is valid YAML but not a configuration document.
func looksLikeYAMLMapping(data []byte) bool {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return false
	}
	return len(node.Content) == 1 && node.Content[0].Kind == yaml.MappingNode
}

func applyDefaults(cfg *Config) {
	if cfg.Server == nil {
		cfg.Server = &ServerConfig{}
	}
	if cfg.Server.Address == nil {
		cfg.Server.Address = strPtr(defaultServerAddress)
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.LogLevel == "" {
		cfg.Logging.LogLevel = defaultLogLevel
	}
	if cfg.Logging.AccessLog == nil {
		cfg.Logging.AccessLog = &AccessLogConfig{}
	}
	al := cfg.Logging.AccessLog
	if al.Enabled == nil {
		al.Enabled = boolPtr(defaultAccessLogEnabled)
	}
	if al.Target == nil {
		al.Target = strPtr(defaultAccessLogTarget)
	}
	if al.Format == "" {
		al.Format = defaultAccessLogFormat
	}
	if al.RealIPHeader == nil {
		al.RealIPHeader = strPtr(defaultAccessLogRealIPHeader)
	}
	if al.TrustedProxies == nil {
		al.TrustedProxies = []string{}
	}
	if cfg.Logging.ErrorLog == nil {
		cfg.Logging.ErrorLog = &ErrorLogConfig{}
	}
	if cfg.Logging.ErrorLog.Target == nil {
		cfg.Logging.ErrorLog.Target = strPtr(defaultErrorLogTarget)
	}
	if cfg.Logging.ErrorLog.Format == "" {
		cfg.Logging.ErrorLog.Format = "json"
	}

	if cfg.Routing == nil {
		cfg.Routing = &RoutingConfig{}
	}
	if len(cfg.Routing.Routes) == 0 {
		cfg.Routing.Routes = []Route{{
			PathPattern: "/",
			MatchType:   MatchTypePrefix,
			HandlerType: HandlerTypeStaticFileServer,
		}}
	}

	if cfg.Static == nil {
		cfg.Static = &StaticFileServerConfig{}
	}
	if cfg.Static.ListingBaseURL == nil {
		cfg.Static.ListingBaseURL = strPtr(defaultListingBaseURL)
	}
}

// Validate checks a defaulted configuration. It also resolves the MIME type
// overrides of the static section into ResolvedMimeTypes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if cfg.Server != nil && cfg.Server.Address != nil && *cfg.Server.Address == "" {
		return fmt.Errorf("server.address cannot be an empty string")
	}
	if err := validateLogging(cfg.Logging); err != nil {
		return err
	}
	if cfg.Routing != nil {
		if err := validateRoutes(cfg.Routing.Routes); err != nil {
			return err
		}
	}
	if cfg.Static != nil {
		if err := resolveMimeTypes(cfg.Static, cfg.OriginalFilePath); err != nil {
			return err
		}
	}
	return nil
}

func validateLogging(lc *LoggingConfig) error {
	if lc == nil {
		return nil
	}
	switch lc.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
	default:
		return fmt.Errorf("logging.log_level '%s' is invalid; must be one of DEBUG, INFO, WARNING, ERROR", lc.LogLevel)
	}
	if al := lc.AccessLog; al != nil {
		if al.Target != nil {
			if err := validateLogTarget("logging.access_log.target", *al.Target); err != nil {
				return err
			}
		}
		if al.Format != "json" && al.Format != "text" {
			return fmt.Errorf("logging.access_log.format '%s' is invalid; must be 'json' or 'text'", al.Format)
		}
	}
	if el := lc.ErrorLog; el != nil {
		if el.Target != nil {
			if err := validateLogTarget("logging.error_log.target", *el.Target); err != nil {
				return err
			}
		}
		if el.Format != "" && el.Format != "json" && el.Format != "text" {
			return fmt.Errorf("logging.error_log.format '%s' is invalid; must be 'json' or 'text'", el.Format)
		}
	}
	return nil
}

func validateLogTarget(field, target string) error {
	if target == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	if IsFilePath(target) && !filepath.IsAbs(target) {
		return fmt.Errorf("%s '%s' must be 'stdout', 'stderr' or an absolute file path", field, target)
	}
	return nil
}

func validateRoutes(routes []Route) error {
	exact := make(map[string]bool)
	prefix := make(map[string]bool)
	for i, r := range routes {
		if r.PathPattern == "" || !strings.HasPrefix(r.PathPattern, "/") {
			return fmt.Errorf("routing.routes[%d].path_pattern '%s' must start with '/'", i, r.PathPattern)
		}
		if r.HandlerType == "" {
			return fmt.Errorf("routing.routes[%d].handler_type cannot be empty", i)
		}
		switch r.MatchType {
		case MatchTypeExact:
			if exact[r.PathPattern] {
				return fmt.Errorf("duplicate exact route for path_pattern '%s'", r.PathPattern)
			}
			exact[r.PathPattern] = true
		case MatchTypePrefix:
			if !strings.HasSuffix(r.PathPattern, "/") {
				return fmt.Errorf("routing.routes[%d].path_pattern '%s' with match_type Prefix must end with '/'", i, r.PathPattern)
			}
			if prefix[r.PathPattern] {
				return fmt.Errorf("duplicate prefix route for path_pattern '%s'", r.PathPattern)
			}
			prefix[r.PathPattern] = true
		default:
			return fmt.Errorf("routing.routes[%d].match_type '%s' is invalid; must be 'Exact' or 'Prefix'", i, r.MatchType)
		}
	}
	return nil
}

// resolveMimeTypes merges the inline map with the optional JSON file. The file
// takes precedence. Relative file paths are resolved against the directory of
// the main configuration file.
func resolveMimeTypes(sc *StaticFileServerConfig, mainConfigFilePath string) error {
	resolved := make(map[string]string)
	for ext, mimeType := range sc.MimeTypesMap {
		if err := validateMimeEntry(ext, mimeType); err != nil {
			return fmt.Errorf("static.mime_types: %w", err)
		}
		resolved[strings.ToLower(ext)] = mimeType
	}

	if sc.MimeTypesPath != nil && *sc.MimeTypesPath != "" {
		mimePath := *sc.MimeTypesPath
		if !filepath.IsAbs(mimePath) && mainConfigFilePath != "" {
			mimePath = filepath.Join(filepath.Dir(mainConfigFilePath), mimePath)
		}
		fromFile, err := LoadMimeTypesFile(mimePath)
		if err != nil {
			return err
		}
		for ext, mimeType := range fromFile {
			resolved[ext] = mimeType
		}
	}

	sc.ResolvedMimeTypes = resolved
	return nil
}

// LoadMimeTypesFile reads a JSON object mapping extensions (with leading dot)
// to MIME types. Returned keys are lowercased.
func LoadMimeTypesFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{FilePath: path, Message: "failed to read custom MIME types file", Err: err}
	}
	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &ConfigError{FilePath: path, Message: "failed to parse custom MIME types JSON file", Err: err}
	}
	out := make(map[string]string, len(parsed))
	for ext, mimeType := range parsed {
		if err := validateMimeEntry(ext, mimeType); err != nil {
			return nil, &ConfigError{FilePath: path, Message: "invalid MIME types entry", Err: err}
		}
		out[strings.ToLower(ext)] = mimeType
	}
	return out, nil
}

func validateMimeEntry(ext, mimeType string) error {
	if !strings.HasPrefix(ext, ".") {
		return fmt.Errorf("invalid extension %q: must start with a '.'", ext)
	}
	if mimeType == "" {
		return fmt.Errorf("empty MIME type for extension %q", ext)
	}
	return nil
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
