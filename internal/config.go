package internal

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const (
	// DefaultRoot is the directory repositories are served from.
	DefaultRoot = "./repos"

	// DefaultAddr binds every interface.
	DefaultAddr = "0.0.0.0"

	// DefaultPort is the TCP port the server listens on.
	DefaultPort = 8080

	// DefaultLogLevel is the minimum level of emitted log entries.
	DefaultLogLevel = "info"

	// DefaultShutdownTimeout bounds how long in-flight transfers may take to finish after
	// SIGINT or SIGTERM before their connections are closed.
	DefaultShutdownTimeout = 10 * time.Second
)

type Config struct {
	Root            string
	Addr            string
	Port            int
	GitBinary       string
	NetrcPath       string
	NetrcMachine    string
	LogLevel        string
	ShutdownTimeout time.Duration
}

// Address returns the host:port the server listens on.
func (c Config) Address() string {
	return net.JoinHostPort(c.Addr, strconv.Itoa(c.Port))
}

// ParseConfig parses command-line arguments and environment variables into the server
// configuration. Flags take precedence over GITSERVE_ROOT, GITSERVE_NETRC and
// GITSERVE_LOG_LEVEL, which take precedence over the defaults.
//
// Returns an error if a flag is unknown or malformed, if positional arguments are given,
// or if the port is out of range.
func ParseConfig(args []string, environment []string) (Config, error) {
	lookup := make(map[string]string)
	for _, variable := range environment {
		key, value, ok := strings.Cut(variable, "=")
		if ok {
			lookup[key] = value
		}
	}

	fallback := func(key, value string) string {
		if v, ok := lookup[key]; ok && v != "" {
			return v
		}
		return value
	}

	var config Config

	fs := pflag.NewFlagSet("gitserve", pflag.ContinueOnError)
	fs.StringVarP(&config.Root, "root", "r", fallback("GITSERVE_ROOT", DefaultRoot), "directory containing the served repositories")
	fs.StringVarP(&config.Addr, "addr", "a", DefaultAddr, "address to listen on")
	fs.IntVarP(&config.Port, "port", "p", DefaultPort, "port to listen on")
	fs.StringVar(&config.GitBinary, "git", "git", "git executable running the pack protocol")
	fs.StringVar(&config.NetrcPath, "netrc", fallback("GITSERVE_NETRC", ""), "netrc file holding the accepted credentials")
	fs.StringVar(&config.NetrcMachine, "netrc-machine", "gitserve", "netrc machine entry holding the accepted credentials")
	fs.StringVar(&config.LogLevel, "log-level", fallback("GITSERVE_LOG_LEVEL", DefaultLogLevel), "log level [debug,info,warn,error]")
	fs.DurationVar(&config.ShutdownTimeout, "shutdown-timeout", DefaultShutdownTimeout, "time allowed for in-flight requests on shutdown")

	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("failed to parse flags: %w\nRun 'gitserve --help' for usage", err)
	}

	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %s\nRun 'gitserve --help' for usage", strings.Join(fs.Args(), " "))
	}

	if config.Port < 0 || config.Port > 65535 {
		return Config{}, fmt.Errorf("invalid port %d\nChoose a port between 0 and 65535", config.Port)
	}

	return config, nil
}
