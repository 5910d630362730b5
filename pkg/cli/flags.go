package cli

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/vfaronov/turq/pkg/config"
)

type serveFlags struct {
	configFile string

	bind       string
	mockPort   int
	editorPort int
	ipv6       bool
	noEditor   bool

	rules string
	watch bool

	verbose   bool
	noColor   bool
	logLevel  string
	logFormat string

	tlsPort int
	tlsCert string
	tlsKey  string

	maxConnections  int
	maxBodySize     int64
	requestLogSize  int
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
}

func registerServeFlags(cmd *cobra.Command, f *serveFlags) {
	fs := cmd.Flags()

	fs.StringVar(&f.configFile, "config", "", "Path to a YAML config file (default: .turqrc.yaml if present)")

	fs.StringVarP(&f.bind, "bind", "b", "", "Address to listen on (default: all interfaces)")
	fs.IntVarP(&f.mockPort, "mock-port", "p", config.DefaultMockPort, "Mock server port")
	fs.IntVar(&f.editorPort, "editor-port", config.DefaultEditorPort, "Rules editor port")
	fs.BoolVarP(&f.ipv6, "ipv6", "6", false, "Listen on IPv6 instead of IPv4")
	fs.BoolVar(&f.noEditor, "no-editor", false, "Do not start the rules editor")

	fs.StringVarP(&f.rules, "rules", "r", "", "Rules file to serve at startup")
	fs.BoolVar(&f.watch, "watch", false, "Reload the rules file when it changes")

	fs.BoolVarP(&f.verbose, "verbose", "v", false, "Log every request (same as --log-level debug)")
	fs.BoolVar(&f.noColor, "no-color", false, "Disable colors in log output")
	fs.StringVar(&f.logLevel, "log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&f.logFormat, "log-format", config.DefaultLogFormat, "Log format (text, json)")

	fs.IntVar(&f.tlsPort, "tls-port", 0, "HTTPS port for the mock server (0 = disabled)")
	fs.StringVar(&f.tlsCert, "tls-cert", "", "TLS certificate file (default: self-signed)")
	fs.StringVar(&f.tlsKey, "tls-key", "", "TLS private key file")

	fs.IntVar(&f.maxConnections, "max-connections", 0, "Maximum concurrent mock connections (0 = unlimited)")
	fs.Int64Var(&f.maxBodySize, "max-body-size", config.DefaultMaxRequestBodySize, "Maximum request body size in bytes (0 = unlimited)")
	fs.IntVar(&f.requestLogSize, "request-log-size", config.DefaultRequestLogSize, "Recent mock requests kept for the editor (0 = disabled)")
	fs.DurationVar(&f.readTimeout, "read-timeout", config.DefaultReadTimeout, "Read timeout for requests (0 = none)")
	fs.DurationVar(&f.writeTimeout, "write-timeout", config.DefaultWriteTimeout, "Write timeout for responses (0 = none)")
	fs.DurationVar(&f.shutdownTimeout, "shutdown-timeout", config.DefaultShutdownTimeout, "Time to wait for in-flight requests on shutdown")
}

// applyFlags copies the flags the user actually set onto cfg, so that
// flag defaults never override the config file or the environment.
func applyFlags(cfg *config.Config, fs *pflag.FlagSet, f *serveFlags) {
	set := func(flag, key string, apply func()) {
		if fs.Changed(flag) {
			apply()
			cfg.SetSource(key, config.SourceFlag)
		}
	}

	set("bind", "bind", func() { cfg.Bind = f.bind })
	set("mock-port", "mockPort", func() { cfg.MockPort = f.mockPort })
	set("editor-port", "editorPort", func() { cfg.EditorPort = f.editorPort })
	set("ipv6", "ipv6", func() { cfg.IPv6 = f.ipv6 })
	set("no-editor", "noEditor", func() { cfg.NoEditor = f.noEditor })
	set("rules", "rules", func() { cfg.RulesFile = f.rules })
	set("watch", "watch", func() { cfg.Watch = f.watch })
	set("verbose", "verbose", func() { cfg.Verbose = f.verbose })
	set("no-color", "noColor", func() { cfg.NoColor = f.noColor })
	set("log-level", "logLevel", func() { cfg.LogLevel = f.logLevel })
	set("log-format", "logFormat", func() { cfg.LogFormat = f.logFormat })
	set("tls-port", "tlsPort", func() { cfg.TLSPort = f.tlsPort })
	set("tls-cert", "tlsCert", func() { cfg.TLSCert = f.tlsCert })
	set("tls-key", "tlsKey", func() { cfg.TLSKey = f.tlsKey })
	set("max-connections", "maxConnections", func() { cfg.MaxConnections = f.maxConnections })
	set("max-body-size", "maxRequestBodySize", func() { cfg.MaxRequestBodySize = f.maxBodySize })
	set("request-log-size", "requestLogSize", func() { cfg.RequestLogSize = f.requestLogSize })
	set("read-timeout", "readTimeout", func() { cfg.ReadTimeout = f.readTimeout })
	set("write-timeout", "writeTimeout", func() { cfg.WriteTimeout = f.writeTimeout })
	set("shutdown-timeout", "shutdownTimeout", func() { cfg.ShutdownTimeout = f.shutdownTimeout })
}

// loadConfig resolves the configuration: flags over environment over the
// config file over defaults.
func loadConfig(cmd *cobra.Command, f *serveFlags, lookup config.LookupFunc) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: f.configFile, Lookup: lookup})
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, cmd.Flags(), f)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
