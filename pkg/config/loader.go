package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LocalConfigFileNames are searched, in order, in the working directory.
var LocalConfigFileNames = []string{".turqrc.yaml", ".turqrc.yml"}

// File is the content of a YAML config file. Unset keys are nil so that an
// explicit false or zero still overrides the default.
type File struct {
	Bind               *string        `yaml:"bind"`
	MockPort           *int           `yaml:"mockPort"`
	EditorPort         *int           `yaml:"editorPort"`
	IPv6               *bool          `yaml:"ipv6"`
	NoEditor           *bool          `yaml:"noEditor"`
	Rules              *string        `yaml:"rules"`
	Watch              *bool          `yaml:"watch"`
	WatchInterval      *time.Duration `yaml:"watchInterval"`
	Verbose            *bool          `yaml:"verbose"`
	LogLevel           *string        `yaml:"logLevel"`
	LogFormat          *string        `yaml:"logFormat"`
	NoColor            *bool          `yaml:"noColor"`
	TLSPort            *int           `yaml:"tlsPort"`
	TLSCert            *string        `yaml:"tlsCert"`
	TLSKey             *string        `yaml:"tlsKey"`
	MaxConnections     *int           `yaml:"maxConnections"`
	MaxRequestBodySize *int64         `yaml:"maxRequestBodySize"`
	RequestLogSize     *int           `yaml:"requestLogSize"`
	ReadTimeout        *time.Duration `yaml:"readTimeout"`
	WriteTimeout       *time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout    *time.Duration `yaml:"shutdownTimeout"`

	// Path is the file the values were read from.
	Path string `yaml:"-"`
}

// ConfigError is a config file error with location info.
type ConfigError struct {
	Path    string
	Line    int
	Column  int
	Message string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("%s (line %d, column %d): %s", e.Path, e.Line, e.Column, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("%s (line %d): %s", e.Path, e.Line, e.Message)
	default:
		return e.Path + ": " + e.Message
	}
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidYAML
}

// FindLocalConfig returns the first local config file in dir, or "" if
// there is none.
func FindLocalConfig(dir string) string {
	for _, name := range LocalConfigFileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// LoadFile reads a YAML config file. Unknown keys are an error.
func LoadFile(path string) (*File, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFile(path, data)
}

var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

// ParseFile decodes config file content; path is used in errors.
func ParseFile(path string, data []byte) (*File, error) {
	f := &File{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		cerr := &ConfigError{Path: path, Message: strings.TrimPrefix(err.Error(), "yaml: ")}
		var typeErr *yaml.TypeError
		if errors.As(err, &typeErr) && len(typeErr.Errors) > 0 {
			cerr.Message = typeErr.Errors[0]
		}
		if m := yamlLinePattern.FindStringSubmatch(cerr.Message); m != nil {
			cerr.Line, _ = strconv.Atoi(m[1])
		}
		return nil, cerr
	}
	f.Path = path
	return f, nil
}

// ApplyFile copies every value set in f into c.
func (c *Config) ApplyFile(f *File) {
	if f == nil {
		return
	}
	setString(c, "bind", &c.Bind, f.Bind)
	setInt(c, "mockPort", &c.MockPort, f.MockPort)
	setInt(c, "editorPort", &c.EditorPort, f.EditorPort)
	setBool(c, "ipv6", &c.IPv6, f.IPv6)
	setBool(c, "noEditor", &c.NoEditor, f.NoEditor)
	if f.Rules != nil {
		rules := *f.Rules
		// Relative rules paths are relative to the config file.
		if rules != "" && !filepath.IsAbs(rules) && f.Path != "" {
			rules = filepath.Join(filepath.Dir(f.Path), rules)
		}
		c.RulesFile = rules
		c.SetSource("rules", SourceFile)
	}
	setBool(c, "watch", &c.Watch, f.Watch)
	setDuration(c, "watchInterval", &c.WatchInterval, f.WatchInterval)
	setBool(c, "verbose", &c.Verbose, f.Verbose)
	setString(c, "logLevel", &c.LogLevel, f.LogLevel)
	setString(c, "logFormat", &c.LogFormat, f.LogFormat)
	setBool(c, "noColor", &c.NoColor, f.NoColor)
	setInt(c, "tlsPort", &c.TLSPort, f.TLSPort)
	setString(c, "tlsCert", &c.TLSCert, f.TLSCert)
	setString(c, "tlsKey", &c.TLSKey, f.TLSKey)
	setInt(c, "maxConnections", &c.MaxConnections, f.MaxConnections)
	if f.MaxRequestBodySize != nil {
		c.MaxRequestBodySize = *f.MaxRequestBodySize
		c.SetSource("maxRequestBodySize", SourceFile)
	}
	setInt(c, "requestLogSize", &c.RequestLogSize, f.RequestLogSize)
	setDuration(c, "readTimeout", &c.ReadTimeout, f.ReadTimeout)
	setDuration(c, "writeTimeout", &c.WriteTimeout, f.WriteTimeout)
	setDuration(c, "shutdownTimeout", &c.ShutdownTimeout, f.ShutdownTimeout)
}

func setString(c *Config, key string, dst *string, src *string) {
	if src != nil {
		*dst = *src
		c.SetSource(key, SourceFile)
	}
}

func setInt(c *Config, key string, dst *int, src *int) {
	if src != nil {
		*dst = *src
		c.SetSource(key, SourceFile)
	}
}

func setBool(c *Config, key string, dst *bool, src *bool) {
	if src != nil {
		*dst = *src
		c.SetSource(key, SourceFile)
	}
}

func setDuration(c *Config, key string, dst *time.Duration, src *time.Duration) {
	if src != nil {
		*dst = *src
		c.SetSource(key, SourceFile)
	}
}

// LookupFunc looks up an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv applies TURQ_* variables and NO_COLOR to c.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var errs []error

	str := func(env, key string, dst *string) {
		if v, ok := lookup(env); ok && v != "" {
			*dst = v
			c.SetSource(key, SourceEnv)
		}
	}
	num := func(env, key string, dst *int) {
		if v, ok := lookup(env); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidValue, env, v))
				return
			}
			*dst = n
			c.SetSource(key, SourceEnv)
		}
	}
	flag := func(env, key string, dst *bool) {
		if v, ok := lookup(env); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidValue, env, v))
				return
			}
			*dst = b
			c.SetSource(key, SourceEnv)
		}
	}

	str("TURQ_BIND", "bind", &c.Bind)
	num("TURQ_MOCK_PORT", "mockPort", &c.MockPort)
	num("TURQ_EDITOR_PORT", "editorPort", &c.EditorPort)
	flag("TURQ_IPV6", "ipv6", &c.IPv6)
	flag("TURQ_NO_EDITOR", "noEditor", &c.NoEditor)
	str("TURQ_RULES", "rules", &c.RulesFile)
	flag("TURQ_WATCH", "watch", &c.Watch)
	flag("TURQ_VERBOSE", "verbose", &c.Verbose)
	str("TURQ_LOG_LEVEL", "logLevel", &c.LogLevel)
	str("TURQ_LOG_FORMAT", "logFormat", &c.LogFormat)
	num("TURQ_TLS_PORT", "tlsPort", &c.TLSPort)
	str("TURQ_TLS_CERT", "tlsCert", &c.TLSCert)
	str("TURQ_TLS_KEY", "tlsKey", &c.TLSKey)
	num("TURQ_MAX_CONNECTIONS", "maxConnections", &c.MaxConnections)
	num("TURQ_REQUEST_LOG_SIZE", "requestLogSize", &c.RequestLogSize)

	// Any non-empty NO_COLOR disables color (https://no-color.org).
	if v, ok := lookup("NO_COLOR"); ok && v != "" {
		c.NoColor = true
		c.SetSource("noColor", SourceEnv)
	}

	return errors.Join(errs...)
}

// LoadOptions controls Load.
type LoadOptions struct {
	// ConfigFile is an explicit config file path. It must exist.
	ConfigFile string
	// Dir is searched for a local config file when ConfigFile is empty.
	// Empty means the working directory.
	Dir string
	// Lookup reads environment variables; nil means os.LookupEnv.
	Lookup LookupFunc
}

// Load builds a Config from defaults, the config file and the environment.
// Flags are applied afterwards by the caller.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	path := opts.ConfigFile
	if path == "" {
		dir := opts.Dir
		if dir == "" {
			wd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("get working directory: %w", err)
			}
			dir = wd
		}
		path = FindLocalConfig(dir)
	}
	if path != "" {
		f, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg.ApplyFile(f)
	}

	if err := cfg.ApplyEnv(opts.Lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readFile reads path, mapping common failures to the package sentinels.
func readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}
