package config

import (
	"fmt"
	"strings"
)

// DatabaseType represents the supported SQL database types
type DatabaseType string

const (
	DatabaseTypeSQLite     DatabaseType = "sqlite"
	DatabaseTypePostgreSQL DatabaseType = "postgresql"
	DatabaseTypeMySQL      DatabaseType = "mysql"
	DatabaseTypeMariaDB    DatabaseType = "mariadb"
)

// ParseDatabaseType maps user input to a DatabaseType. Unknown values are
// returned unchanged so Validate can report them.
func ParseDatabaseType(s string) DatabaseType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgresql", "postgres":
		return DatabaseTypePostgreSQL
	case "mysql":
		return DatabaseTypeMySQL
	case "mariadb":
		return DatabaseTypeMariaDB
	case "sqlite", "sqlite3", "":
		return DatabaseTypeSQLite
	default:
		return DatabaseType(s)
	}
}

// DatabaseConfig holds the configuration for SQL storage
type DatabaseConfig struct {
	Type     DatabaseType `yaml:"type"`
	Host     string       `yaml:"host,omitempty"`
	Port     int          `yaml:"port,omitempty"`
	Database string       `yaml:"name,omitempty"`
	Username string       `yaml:"user,omitempty"`
	Password string       `yaml:"password,omitempty"`
	SSLMode  string       `yaml:"ssl_mode,omitempty"`

	// Path is the database file for SQLite
	Path string `yaml:"path,omitempty"`
	// PureGo selects the CGO-free SQLite driver
	PureGo bool `yaml:"pure_go,omitempty"`

	MaxOpenConns    int `yaml:"max_open_conns,omitempty"`
	MaxIdleConns    int `yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime int `yaml:"conn_max_lifetime,omitempty"` // in minutes
}

// applyDefaults fills in ports and pool sizes for server databases
func (c *DatabaseConfig) applyDefaults() {
	c.Type = ParseDatabaseType(string(c.Type))
	if c.Type == DatabaseTypeSQLite {
		return
	}

	if c.Port == 0 {
		switch c.Type {
		case DatabaseTypePostgreSQL:
			c.Port = 5432
		case DatabaseTypeMySQL, DatabaseTypeMariaDB:
			c.Port = 3306
		}
	}
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Database == "" {
		c.Database = "book_manager"
	}
	if c.SSLMode == "" {
		c.SSLMode = "prefer"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 60
	}
}

// Validate checks if the database configuration is valid
func (c *DatabaseConfig) Validate() error {
	switch c.Type {
	case DatabaseTypeSQLite:
		if c.Path == "" {
			return &ConfigError{Field: "storage.database.path", Msg: "is required for sqlite"}
		}
	case DatabaseTypePostgreSQL, DatabaseTypeMySQL, DatabaseTypeMariaDB:
		if c.Host == "" {
			return &ConfigError{Field: "storage.database.host", Msg: fmt.Sprintf("is required for %s", c.Type)}
		}
		if c.Database == "" {
			return &ConfigError{Field: "storage.database.name", Msg: fmt.Sprintf("is required for %s", c.Type)}
		}
		if c.Port <= 0 {
			return &ConfigError{Field: "storage.database.port", Msg: fmt.Sprintf("must be positive for %s", c.Type)}
		}
	default:
		return &ConfigError{Field: "storage.database.type", Msg: fmt.Sprintf("unsupported database type %q", c.Type)}
	}
	return nil
}

// DSN returns the data source name for the database connection
func (c *DatabaseConfig) DSN() string {
	switch c.Type {
	case DatabaseTypeSQLite:
		return c.Path
	case DatabaseTypePostgreSQL:
		dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
			c.Host, c.Port, c.Database, c.SSLMode)
		if c.Username != "" {
			dsn += fmt.Sprintf(" user=%s", c.Username)
		}
		if c.Password != "" {
			dsn += fmt.Sprintf(" password=%s", c.Password)
		}
		return dsn
	case DatabaseTypeMySQL, DatabaseTypeMariaDB:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.Username, c.Password, c.Host, c.Port, c.Database)
	default:
		return ""
	}
}
