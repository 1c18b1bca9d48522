// Package config assembles the daemon's configuration from layered
// sources: built-in defaults, an INI file, environment variables, and
// command-line flags, applied in that order so each layer overrides the
// last.
package config

import (
	"os"
	"strconv"

	"github.com/vaughan0/go-ini"
)

// Config holds every tunable of the SMS gateway daemon.
type Config struct {
	Device string // serial device, e.g. /dev/ttyUSB0
	Baud   int
	Pin    string // SIM PIN, empty to skip +CPIN

	UsersFile    string
	CommandsFile string

	FifoPath   string
	SocketPath string // empty disables the local HTTP API

	AutologoutSeconds int

	AuditDBPath string

	LogLevel string // debug, info, warn, error
}

// Option mutates a Config in place; options are applied in order, each
// free to override fields a previous option set.
type Option func(*Config) error

// Load builds a Config by applying opts in order over compiled-in
// defaults.
func Load(opts ...Option) (*Config, error) {
	c := &Config{}
	for _, opt := range append([]Option{WithDefaults()}, opts...) {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// WithDefaults applies the daemon's built-in defaults.
func WithDefaults() Option {
	return func(c *Config) error {
		c.Device = "/dev/ttyUSB0"
		c.Baud = 19200
		c.UsersFile = "/etc/smsgwd/users"
		c.CommandsFile = "/etc/smsgwd/commands"
		c.FifoPath = "/var/run/smsgwd/smsin"
		c.SocketPath = ""
		c.AutologoutSeconds = 0
		c.AuditDBPath = "/var/lib/smsgwd/audit.db"
		c.LogLevel = "info"
		return nil
	}
}

// WithINIFile loads an INI file of the form:
//
//	[modem]
//	device = /dev/ttyUSB0
//	baud = 19200
//	pin = 1234
//
//	[files]
//	users = /etc/smsgwd/users
//	commands = /etc/smsgwd/commands
//
//	[ingress]
//	fifo = /var/run/smsgwd/smsin
//	socket = /var/run/smsgwd/smsgwd.sock
//
//	[session]
//	autologout = 900
//
//	[audit]
//	db = /var/lib/smsgwd/audit.db
//
//	[log]
//	level = debug
//
// A missing file is not an error — INI configuration is optional, with
// environment variables and flags as the authoritative override layer for
// deployments that don't use one.
func WithINIFile(path string) Option {
	return func(c *Config) error {
		file, err := ini.LoadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}

		if v, ok := file.Get("modem", "device"); ok {
			c.Device = v
		}
		if v, ok := file.Get("modem", "baud"); ok {
			if n, err := strconv.Atoi(v); err == nil {
				c.Baud = n
			}
		}
		if v, ok := file.Get("modem", "pin"); ok {
			c.Pin = v
		}
		if v, ok := file.Get("files", "users"); ok {
			c.UsersFile = v
		}
		if v, ok := file.Get("files", "commands"); ok {
			c.CommandsFile = v
		}
		if v, ok := file.Get("ingress", "fifo"); ok {
			c.FifoPath = v
		}
		if v, ok := file.Get("ingress", "socket"); ok {
			c.SocketPath = v
		}
		if v, ok := file.Get("session", "autologout"); ok {
			if n, err := strconv.Atoi(v); err == nil {
				c.AutologoutSeconds = n
			}
		}
		if v, ok := file.Get("audit", "db"); ok {
			c.AuditDBPath = v
		}
		if v, ok := file.Get("log", "level"); ok {
			c.LogLevel = v
		}
		return nil
	}
}

// WithEnv overrides fields from SMSGWD_* environment variables.
func WithEnv() Option {
	return func(c *Config) error {
		if v := os.Getenv("SMSGWD_DEVICE"); v != "" {
			c.Device = v
		}
		if v := os.Getenv("SMSGWD_BAUD"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.Baud = n
			}
		}
		if v := os.Getenv("SMSGWD_PIN"); v != "" {
			c.Pin = v
		}
		if v := os.Getenv("SMSGWD_USERS_FILE"); v != "" {
			c.UsersFile = v
		}
		if v := os.Getenv("SMSGWD_COMMANDS_FILE"); v != "" {
			c.CommandsFile = v
		}
		if v := os.Getenv("SMSGWD_FIFO_PATH"); v != "" {
			c.FifoPath = v
		}
		if v := os.Getenv("SMSGWD_SOCKET_PATH"); v != "" {
			c.SocketPath = v
		}
		if v := os.Getenv("SMSGWD_AUTOLOGOUT_SECONDS"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.AutologoutSeconds = n
			}
		}
		if v := os.Getenv("SMSGWD_AUDIT_DB"); v != "" {
			c.AuditDBPath = v
		}
		if v := os.Getenv("SMSGWD_LOG_LEVEL"); v != "" {
			c.LogLevel = v
		}
		return nil
	}
}

// Flags is the jessevdk/go-flags target for command-line options; fields
// left at their zero value (empty string / zero int) do not override an
// earlier layer. See cmd/smsgwd for how this is parsed and applied via
// WithFlags.
type Flags struct {
	Device       string `long:"device" description:"serial device path"`
	Baud         int    `long:"baud" description:"serial baud rate"`
	Pin          string `long:"pin" description:"SIM PIN"`
	UsersFile    string `long:"users-file" description:"path to the user table"`
	CommandsFile string `long:"commands-file" description:"path to the external command table"`
	FifoPath     string `long:"fifo" description:"path to the outbound named pipe"`
	SocketPath   string `long:"socket" description:"path to the local HTTP API unix socket"`
	Autologout   int    `long:"autologout" description:"session autologout in seconds, 0 disables"`
	AuditDBPath  string `long:"audit-db" description:"path to the audit log sqlite database"`
	LogLevel     string `long:"log-level" description:"debug, info, warn, or error"`
	ConfigFile   string `long:"config" description:"path to an INI configuration file"`
}

// WithFlags overrides fields set on the command line.
func WithFlags(f *Flags) Option {
	return func(c *Config) error {
		if f.Device != "" {
			c.Device = f.Device
		}
		if f.Baud != 0 {
			c.Baud = f.Baud
		}
		if f.Pin != "" {
			c.Pin = f.Pin
		}
		if f.UsersFile != "" {
			c.UsersFile = f.UsersFile
		}
		if f.CommandsFile != "" {
			c.CommandsFile = f.CommandsFile
		}
		if f.FifoPath != "" {
			c.FifoPath = f.FifoPath
		}
		if f.SocketPath != "" {
			c.SocketPath = f.SocketPath
		}
		if f.Autologout != 0 {
			c.AutologoutSeconds = f.Autologout
		}
		if f.AuditDBPath != "" {
			c.AuditDBPath = f.AuditDBPath
		}
		if f.LogLevel != "" {
			c.LogLevel = f.LogLevel
		}
		return nil
	}
}
