package sqlkit

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/syssam/sqlkit/dialect/sql"
)

// File is a configuration file of named connections:
//
//	connections:
//	  main:
//	    dsn: "mysql:host=127.0.0.1;dbname=app"
//	    username: root
//	    charset: utf8mb4
//	    schema_caching_duration: 1h
//	    auto_connect: true
type File struct {
	Connections map[string]sql.Config `yaml:"connections"`

	mu    sync.Mutex
	conns map[string]*sql.Conn
}

// LoadConfig reads and parses the configuration file at path.
func LoadConfig(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sqlkit: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses a YAML configuration document.
func ParseConfig(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("sqlkit: parse config: %w", err)
	}
	for name, cfg := range f.Connections {
		if cfg.DSN == "" {
			return nil, fmt.Errorf("sqlkit: connection %q: dsn is required", name)
		}
	}
	return &f, nil
}

// Names returns the configured connection names in sorted order.
func (f *File) Names() []string {
	return slices.Sorted(maps.Keys(f.Connections))
}

// Conn returns the connection of the given name, creating it on first use.
// Connections configured with auto_connect are opened before they are
// returned; the others open lazily on their first statement.
func (f *File) Conn(ctx context.Context, name string, opts ...sql.Option) (*sql.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.conns[name]; ok {
		return c, nil
	}
	cfg, ok := f.Connections[name]
	if !ok {
		return nil, &NotFoundError{name: name}
	}
	c := sql.NewConnFromConfig(cfg, opts...)
	if cfg.AutoConnect {
		if err := c.Open(ctx); err != nil {
			return nil, err
		}
	}
	if f.conns == nil {
		f.conns = make(map[string]*sql.Conn)
	}
	f.conns[name] = c
	return c, nil
}

// Close closes every connection created by Conn.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for _, name := range slices.Sorted(maps.Keys(f.conns)) {
		if err := f.conns[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("sqlkit: close %q: %w", name, err))
		}
	}
	f.conns = nil
	return aggregate(errs)
}
