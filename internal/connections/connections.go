// Package connections loads named database connection profiles and turns
// them into storage configurations.
//
// The profile file is YAML or JSON. Either a top-level list of profiles or a
// mapping with a "connections" list is accepted:
//
//	[{"name": "local", "driver": "mysql", "host": "127.0.0.1", "user": "root",
//	  "password": "${MYSQL_PWD}", "database": "imports"}]
//
// ${VAR} placeholders in string fields are replaced from the environment.
// A missing driver means mysql.
package connections

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"

	"csvload/internal/pipeline"
	"csvload/internal/storage"
)

// Driver families a profile may name.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMSSQL    = "mssql"
)

var defaultPorts = map[string]int{
	DriverMySQL:    3306,
	DriverPostgres: 5432,
	DriverMSSQL:    1433,
}

// Profile is one named connection.
type Profile struct {
	Name     string            `koanf:"name"`
	Driver   string            `koanf:"driver"`
	Host     string            `koanf:"host"`
	Port     int               `koanf:"port"`
	User     string            `koanf:"user"`
	Password string            `koanf:"password"`
	Database string            `koanf:"database"`
	FilePath string            `koanf:"filePath"`
	Params   map[string]string `koanf:"params"`
}

// Set is an ordered collection of profiles as read from one file.
type Set struct {
	Path     string
	Profiles []Profile
}

// Load reads path. A missing file yields an empty set, since scan and
// analyze need no database. Every profile is validated.
func Load(path string) (*Set, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Set{Path: path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connections: read %s: %w", path, err)
	}
	profiles, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("connections: %s: %w", path, err)
	}
	s := &Set{Path: path, Profiles: profiles}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("connections: %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes profile file content. A JSON array is the format earlier
// releases wrote; any other content is parsed as YAML, which covers JSON
// objects too.
func Parse(raw []byte) ([]Profile, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	var m map[string]any
	switch trimmed[0] {
	case '[':
		var list []any
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("%w: %v", pipeline.ErrMalformed, err)
		}
		m = map[string]any{"connections": list}
	default:
		if trimmed[0] == '-' {
			trimmed = append([]byte("connections:\n"), indent(trimmed)...)
		}
		var err error
		if m, err = yaml.Parser().Unmarshal(trimmed); err != nil {
			return nil, fmt.Errorf("%w: %v", pipeline.ErrMalformed, err)
		}
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(m, ""), nil); err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrMalformed, err)
	}

	var profiles []Profile
	if err := k.Unmarshal("connections", &profiles); err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrMalformed, err)
	}
	for i := range profiles {
		profiles[i].expand()
		if profiles[i].Driver == "" {
			profiles[i].Driver = DriverMySQL
		}
		profiles[i].Driver = strings.ToLower(profiles[i].Driver)
	}
	return profiles, nil
}

// indent nests a top-level list under a mapping key.
func indent(b []byte) []byte {
	lines := bytes.Split(b, []byte("\n"))
	for i, l := range lines {
		lines[i] = append([]byte("  "), l...)
	}
	return bytes.Join(lines, []byte("\n"))
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(s string) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(m[2 : len(m)-1])
	})
}

func (p *Profile) expand() {
	p.Host = expandEnv(p.Host)
	p.User = expandEnv(p.User)
	p.Password = expandEnv(p.Password)
	p.Database = expandEnv(p.Database)
	p.FilePath = expandEnv(p.FilePath)
	for k, v := range p.Params {
		p.Params[k] = expandEnv(v)
	}
}

// Validate checks one profile.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: profile without name", pipeline.ErrMalformed)
	}
	switch p.Driver {
	case DriverSQLite:
		if strings.TrimSpace(p.FilePath) == "" {
			return fmt.Errorf("%w: profile %q: sqlite needs filePath", pipeline.ErrMalformed, p.Name)
		}
	case DriverMySQL, DriverPostgres, DriverMSSQL:
		if strings.TrimSpace(p.Host) == "" {
			return fmt.Errorf("%w: profile %q: host is empty", pipeline.ErrMalformed, p.Name)
		}
	default:
		return fmt.Errorf("%w: profile %q: unknown driver %q", pipeline.ErrMalformed, p.Name, p.Driver)
	}
	if p.Port < 0 || p.Port > 65535 {
		return fmt.Errorf("%w: profile %q: port %d out of range", pipeline.ErrMalformed, p.Name, p.Port)
	}
	return nil
}

// Validate checks every profile and rejects duplicate names.
func (s *Set) Validate() error {
	seen := make(map[string]bool, len(s.Profiles))
	var errs []error
	for _, p := range s.Profiles {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("%w: duplicate profile %q", pipeline.ErrMalformed, p.Name))
		}
		seen[p.Name] = true
	}
	return errors.Join(errs...)
}

// Find returns the profile called name.
func (s *Set) Find(name string) (Profile, error) {
	for _, p := range s.Profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: connection %q (known: %s)", pipeline.ErrNotFound, name, strings.Join(s.Names(), ", "))
}

// Names lists profile names in file order.
func (s *Set) Names() []string {
	out := make([]string, len(s.Profiles))
	for i, p := range s.Profiles {
		out[i] = p.Name
	}
	return out
}

// Describe renders a one-line summary without the password.
func (p Profile) Describe() string {
	if p.Driver == DriverSQLite {
		return fmt.Sprintf("%s → %s (sqlite)", p.Name, p.FilePath)
	}
	return fmt.Sprintf("%s → %s@%s/%s (%s)", p.Name, p.User, p.addr(), p.Database, p.Driver)
}

func (p Profile) addr() string {
	port := p.Port
	if port == 0 {
		port = defaultPorts[p.Driver]
	}
	return net.JoinHostPort(p.Host, strconv.Itoa(port))
}

// StorageConfig builds the driver-specific DSN.
func (p Profile) StorageConfig() (storage.Config, error) {
	if err := p.Validate(); err != nil {
		return storage.Config{}, err
	}

	var dsn string
	switch p.Driver {
	case DriverMySQL:
		c := mysql.NewConfig()
		c.User = p.User
		c.Passwd = p.Password
		c.Net = "tcp"
		c.Addr = p.addr()
		c.DBName = p.Database
		c.ParseTime = true
		if len(p.Params) > 0 {
			c.Params = make(map[string]string, len(p.Params))
			for k, v := range p.Params {
				c.Params[k] = v
			}
		}
		dsn = c.FormatDSN()

	case DriverPostgres:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(p.User, p.Password),
			Host:     p.addr(),
			Path:     "/" + p.Database,
			RawQuery: encodeParams(p.Params, nil),
		}
		dsn = u.String()

	case DriverMSSQL:
		extra := map[string]string{}
		if p.Database != "" {
			extra["database"] = p.Database
		}
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(p.User, p.Password),
			Host:     p.addr(),
			RawQuery: encodeParams(p.Params, extra),
		}
		dsn = u.String()

	case DriverSQLite:
		dsn = p.FilePath
		if q := encodeParams(p.Params, nil); q != "" {
			dsn = "file:" + p.FilePath + "?" + q
		}
	}
	return storage.Config{Driver: p.Driver, DSN: dsn}, nil
}

func encodeParams(params, extra map[string]string) string {
	v := url.Values{}
	for k, val := range extra {
		v.Set(k, val)
	}
	for k, val := range params {
		v.Set(k, val)
	}
	return v.Encode()
}

// CheckResult is the outcome of probing one profile.
type CheckResult struct {
	Name string
	Err  error
}

// OpenFunc opens a repository; storage.New in production.
type OpenFunc func(ctx context.Context, cfg storage.Config) (storage.Repository, error)

// Check opens and pings every profile in order. It never stops early.
func (s *Set) Check(ctx context.Context, open OpenFunc) []CheckResult {
	if open == nil {
		open = storage.New
	}
	out := make([]CheckResult, 0, len(s.Profiles))
	for _, p := range s.Profiles {
		out = append(out, CheckResult{Name: p.Name, Err: check(ctx, p, open)})
	}
	return out
}

func check(ctx context.Context, p Profile, open OpenFunc) error {
	cfg, err := p.StorageConfig()
	if err != nil {
		return err
	}
	repo, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()
	return repo.Ping(ctx)
}
