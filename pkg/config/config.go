package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Default ports.
const (
	DefaultMockPort   = 13085
	DefaultEditorPort = 13086
)

// Defaults for the remaining settings.
const (
	DefaultReadTimeout        = 30 * time.Second
	DefaultWriteTimeout       = 0 // no limit
	DefaultShutdownTimeout    = 5 * time.Second
	DefaultWatchInterval      = time.Second
	DefaultMaxRequestBodySize = 10 << 20
	DefaultRequestLogSize     = 100
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

// Value sources, as recorded in Config.Sources.
const (
	SourceDefault = "default"
	SourceFile    = "file"
	SourceEnv     = "env"
	SourceFlag    = "flag"
)

// Common errors.
var (
	ErrFileNotFound     = errors.New("file not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrIsDirectory      = errors.New("path is a directory")
	ErrInvalidYAML      = errors.New("invalid YAML")
	ErrInvalidValue     = errors.New("invalid value")
)

// Config is the complete runtime configuration.
type Config struct {
	// Listeners
	Bind       string `yaml:"bind" json:"bind"`
	MockPort   int    `yaml:"mockPort" json:"mockPort"`
	EditorPort int    `yaml:"editorPort" json:"editorPort"`
	IPv6       bool   `yaml:"ipv6" json:"ipv6"`
	NoEditor   bool   `yaml:"noEditor" json:"noEditor"`

	// Rules
	RulesFile     string        `yaml:"rules,omitempty" json:"rules,omitempty"`
	Watch         bool          `yaml:"watch" json:"watch"`
	WatchInterval time.Duration `yaml:"watchInterval" json:"watchInterval"`

	// Logging
	Verbose   bool   `yaml:"verbose" json:"verbose"`
	LogLevel  string `yaml:"logLevel" json:"logLevel"`
	LogFormat string `yaml:"logFormat" json:"logFormat"`
	NoColor   bool   `yaml:"noColor" json:"noColor"`

	// TLS for the mock listener. A TLS port with no cert and key uses a
	// generated self-signed certificate.
	TLSPort int    `yaml:"tlsPort" json:"tlsPort"`
	TLSCert string `yaml:"tlsCert,omitempty" json:"tlsCert,omitempty"`
	TLSKey  string `yaml:"tlsKey,omitempty" json:"tlsKey,omitempty"`

	// Limits
	MaxConnections     int           `yaml:"maxConnections" json:"maxConnections"`
	MaxRequestBodySize int64         `yaml:"maxRequestBodySize" json:"maxRequestBodySize"`
	RequestLogSize     int           `yaml:"requestLogSize" json:"requestLogSize"`
	ReadTimeout        time.Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout       time.Duration `yaml:"writeTimeout" json:"writeTimeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`

	// Sources tracks where each value came from, keyed by YAML name.
	Sources map[string]string `yaml:"-" json:"-"`
}

// Default returns a Config holding the default settings.
func Default() *Config {
	cfg := &Config{
		MockPort:           DefaultMockPort,
		EditorPort:         DefaultEditorPort,
		WatchInterval:      DefaultWatchInterval,
		LogLevel:           DefaultLogLevel,
		LogFormat:          DefaultLogFormat,
		MaxRequestBodySize: DefaultMaxRequestBodySize,
		RequestLogSize:     DefaultRequestLogSize,
		ReadTimeout:        DefaultReadTimeout,
		WriteTimeout:       DefaultWriteTimeout,
		ShutdownTimeout:    DefaultShutdownTimeout,
		Sources:            make(map[string]string),
	}
	for _, key := range []string{
		"bind", "mockPort", "editorPort", "ipv6", "noEditor", "rules", "watch",
		"watchInterval", "verbose", "logLevel", "logFormat", "noColor", "tlsPort",
		"tlsCert", "tlsKey", "maxConnections", "maxRequestBodySize", "requestLogSize",
		"readTimeout", "writeTimeout", "shutdownTimeout",
	} {
		cfg.Sources[key] = SourceDefault
	}
	return cfg
}

// SetSource records where the value for key came from.
func (c *Config) SetSource(key, source string) {
	if c.Sources == nil {
		c.Sources = make(map[string]string)
	}
	c.Sources[key] = source
}

// Network returns the listen network: "tcp6" with IPv6, else "tcp4".
func (c *Config) Network() string {
	if c.IPv6 {
		return "tcp6"
	}
	return "tcp4"
}

// Host returns the bind address, defaulting to all interfaces of the
// selected address family.
func (c *Config) Host() string {
	if c.Bind != "" {
		return c.Bind
	}
	if c.IPv6 {
		return "::"
	}
	return "0.0.0.0"
}

// MockAddr is the host:port of the mock listener.
func (c *Config) MockAddr() string {
	return net.JoinHostPort(c.Host(), strconv.Itoa(c.MockPort))
}

// EditorAddr is the host:port of the editor listener.
func (c *Config) EditorAddr() string {
	return net.JoinHostPort(c.Host(), strconv.Itoa(c.EditorPort))
}

// TLSAddr is the host:port of the HTTPS mock listener.
func (c *Config) TLSAddr() string {
	return net.JoinHostPort(c.Host(), strconv.Itoa(c.TLSPort))
}

// EffectiveLogLevel is LogLevel, or "debug" when Verbose is set.
func (c *Config) EffectiveLogLevel() string {
	if c.Verbose {
		return "debug"
	}
	return c.LogLevel
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidValue}, args...)...))
	}

	checkPort := func(name string, port int) {
		if port < 0 || port > 65535 {
			add("%s %d out of range 0-65535", name, port)
		}
	}
	checkPort("mock port", c.MockPort)
	checkPort("editor port", c.EditorPort)
	checkPort("TLS port", c.TLSPort)

	if !c.NoEditor && c.MockPort != 0 && c.MockPort == c.EditorPort {
		add("mock and editor ports are both %d", c.MockPort)
	}
	if c.TLSPort != 0 && (c.TLSPort == c.MockPort || (!c.NoEditor && c.TLSPort == c.EditorPort)) {
		add("TLS port %d is already in use by another listener", c.TLSPort)
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		add("TLS certificate and key must be given together")
	}
	if c.IPv6 && c.Bind != "" {
		if ip := net.ParseIP(c.Bind); ip != nil && ip.To4() != nil {
			add("bind address %s is not an IPv6 address", c.Bind)
		}
	}

	for name, d := range map[string]time.Duration{
		"read timeout":     c.ReadTimeout,
		"write timeout":    c.WriteTimeout,
		"shutdown timeout": c.ShutdownTimeout,
	} {
		if d < 0 {
			add("%s %s is negative", name, d)
		}
	}
	if c.Watch && c.WatchInterval <= 0 {
		add("watch interval must be positive")
	}
	if c.Watch && c.RulesFile == "" {
		add("--watch requires a rules file")
	}
	if c.MaxConnections < 0 {
		add("max connections %d is negative", c.MaxConnections)
	}
	if c.MaxRequestBodySize < 0 {
		add("max request body size %d is negative", c.MaxRequestBodySize)
	}
	if c.RequestLogSize < 0 {
		add("request log size %d is negative", c.RequestLogSize)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("unknown log level %q", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		add("unknown log format %q", c.LogFormat)
	}

	return errors.Join(errs...)
}
