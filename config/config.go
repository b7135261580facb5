// Package config loads the YAML connection configuration and resolves
// logical connection names into the settings of a DataRequest.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syssam/dataspace"
)

// DefaultCommandTimeout applies to connections that do not set one.
const DefaultCommandTimeout = 30 * time.Second

// ErrUnknownConnection is returned when a connection name is not configured.
var ErrUnknownConnection = errors.New("config: unknown connection")

// Config is the parsed configuration file.
type Config struct {
	Application string       `yaml:"application"`
	Default     string       `yaml:"default"`
	Connections []Connection `yaml:"connections"`
	Audit       Audit        `yaml:"audit"`
}

// Connection is one named connection.
type Connection struct {
	Name             string        `yaml:"name"`
	Provider         string        `yaml:"provider"`
	ConnectionString string        `yaml:"connection_string"`
	SQLAccessType    string        `yaml:"sql_access_type"`
	Catalog          string        `yaml:"catalog"`
	Schema           string        `yaml:"schema"`
	CommandTimeout   time.Duration `yaml:"command_timeout"`
	DatabaseVersion  string        `yaml:"database_version"`
}

// AuditColumn configures one audit column.
type AuditColumn struct {
	Enabled    bool   `yaml:"enabled"`
	Column     string `yaml:"column"`
	ServerSide bool   `yaml:"server_side"`
}

// Audit configures the special audit columns.
type Audit struct {
	DateAdded    AuditColumn `yaml:"date_added"`
	DateModified AuditColumn `yaml:"date_modified"`
	AddedBy      AuditColumn `yaml:"added_by"`
	ModifiedBy   AuditColumn `yaml:"modified_by"`
}

// Settings returns the audit settings in the form requests carry.
func (a Audit) Settings() dataspace.Audit {
	conv := func(c AuditColumn) dataspace.AuditColumn {
		return dataspace.AuditColumn{Enabled: c.Enabled, Column: c.Column, ServerSide: c.ServerSide}
	}
	return dataspace.Audit{
		DateAdded:    conv(a.DateAdded),
		DateModified: conv(a.DateModified),
		AddedBy:      conv(a.AddedBy),
		ModifiedBy:   conv(a.ModifiedBy),
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML configuration, filling defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse YAML: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Connections) == 0 {
		return errors.New("config: no connections configured")
	}
	seen := make(map[string]bool, len(c.Connections))
	for i := range c.Connections {
		conn := &c.Connections[i]
		if conn.Name == "" {
			return fmt.Errorf("config: connection[%d]: name is required", i)
		}
		if seen[conn.Name] {
			return fmt.Errorf("config: connection %q: duplicate name", conn.Name)
		}
		seen[conn.Name] = true
		if conn.Provider == "" {
			return fmt.Errorf("config: connection %q: provider is required", conn.Name)
		}
		if conn.ConnectionString == "" {
			return fmt.Errorf("config: connection %q: connection_string is required", conn.Name)
		}
		if _, err := accessType(conn.SQLAccessType); err != nil {
			return fmt.Errorf("config: connection %q: %w", conn.Name, err)
		}
		if conn.CommandTimeout < 0 {
			return fmt.Errorf("config: connection %q: negative command_timeout", conn.Name)
		}
		if conn.CommandTimeout == 0 {
			conn.CommandTimeout = DefaultCommandTimeout
		}
	}
	if c.Default == "" {
		c.Default = c.Connections[0].Name
	}
	if !seen[c.Default] {
		return fmt.Errorf("config: default connection %q is not configured", c.Default)
	}
	for _, ac := range []struct {
		col  *AuditColumn
		name string
	}{
		{&c.Audit.DateAdded, "DateAdded"},
		{&c.Audit.DateModified, "DateModified"},
		{&c.Audit.AddedBy, "AddedBy"},
		{&c.Audit.ModifiedBy, "ModifiedBy"},
	} {
		if ac.col.Enabled && ac.col.Column == "" {
			ac.col.Column = ac.name
		}
	}
	return nil
}

func accessType(s string) (dataspace.AccessType, error) {
	switch s {
	case "", "dynamic":
		return dataspace.AccessDynamic, nil
	case "stored_procedure":
		return dataspace.AccessStoredProcedure, nil
	}
	return 0, fmt.Errorf("unknown sql_access_type %q (dynamic/stored_procedure)", s)
}

// Resolved is a connection resolved into the settings of a request.
type Resolved struct {
	Name             string
	Provider         string
	ConnectionString string
	Access           dataspace.AccessType
	Catalog          string
	Schema           string
	CommandTimeout   time.Duration
	DatabaseVersion  string
}

// Resolve returns the connection called name, or the default connection
// when name is empty.
func (c *Config) Resolve(name string) (Resolved, error) {
	if name == "" {
		name = c.Default
	}
	for _, conn := range c.Connections {
		if conn.Name != name {
			continue
		}
		access, err := accessType(conn.SQLAccessType)
		if err != nil {
			return Resolved{}, err
		}
		return Resolved{
			Name:             conn.Name,
			Provider:         conn.Provider,
			ConnectionString: conn.ConnectionString,
			Access:           access,
			Catalog:          conn.Catalog,
			Schema:           conn.Schema,
			CommandTimeout:   conn.CommandTimeout,
			DatabaseVersion:  conn.DatabaseVersion,
		}, nil
	}
	return Resolved{}, fmt.Errorf("%w %q", ErrUnknownConnection, name)
}

// Apply fills the connection settings of req. Catalog, schema, command
// timeout and application already set on the request are kept.
func (r Resolved) Apply(req *dataspace.DataRequest) {
	req.ProviderName = r.Provider
	req.ConnectionString = r.ConnectionString
	req.Access = r.Access
	req.DatabaseVersion = r.DatabaseVersion
	if req.Catalog == "" {
		req.Catalog = r.Catalog
	}
	if req.Schema == "" {
		req.Schema = r.Schema
	}
	if req.CommandTimeout == 0 {
		req.CommandTimeout = r.CommandTimeout
	}
}
