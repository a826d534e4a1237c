// Package dbhandle knows the supported database engines: how to run them in a
// container, how to connect to them and how to execute benchmark queries.
package dbhandle

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/hochfrequenz/sqlbench/internal/domain"
)

// ConnParams holds what a worker needs to reach its database
type ConnParams struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// Engine describes one supported database engine
type Engine struct {
	Name     string
	Driver   string // database/sql driver name, empty for native pgx
	Image    string
	Port     int
	User     string
	Password string
	Database string

	// Server is false for embedded engines that need no database container
	Server bool

	dsn          func(p ConnParams) string
	containerEnv func(p ConnParams) map[string]string
}

// DSN builds the driver connection string
func (e Engine) DSN(p ConnParams) string {
	return e.dsn(p)
}

// ContainerEnv returns the environment of the database container
func (e Engine) ContainerEnv(p ConnParams) map[string]string {
	if e.containerEnv == nil {
		return map[string]string{}
	}
	return e.containerEnv(p)
}

// Defaults returns the engine's default connection parameters for host
func (e Engine) Defaults(host string) ConnParams {
	return ConnParams{
		Host:     host,
		Port:     e.Port,
		Database: e.Database,
		User:     e.User,
		Password: e.Password,
	}
}

var engines = map[string]Engine{
	"postgres": {
		Name:     "postgres",
		Image:    "postgres-tpch:latest",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "tpch",
		Server:   true,
		dsn:      postgresDSN,
		containerEnv: func(p ConnParams) map[string]string {
			return map[string]string{
				"POSTGRES_USER":     p.User,
				"POSTGRES_PASSWORD": p.Password,
				"POSTGRES_DB":       p.Database,
			}
		},
	},
	"mysql": {
		Name:     "mysql",
		Driver:   "mysql",
		Image:    "mysql-tpch:latest",
		Port:     3306,
		User:     "root",
		Password: "mysql",
		Database: "tpch",
		Server:   true,
		dsn:      mysqlDSN,
		containerEnv: func(p ConnParams) map[string]string {
			return map[string]string{
				"MYSQL_ROOT_PASSWORD": p.Password,
				"MYSQL_DATABASE":      p.Database,
			}
		},
	},
	"mssql": {
		Name:     "mssql",
		Driver:   "sqlserver",
		Image:    "mssql-tpch:latest",
		Port:     1433,
		User:     "SA",
		Password: "SqlBench!2024",
		Database: "tpch",
		Server:   true,
		dsn:      mssqlDSN,
		containerEnv: func(p ConnParams) map[string]string {
			return map[string]string{
				"ACCEPT_EULA":       "Y",
				"MSSQL_SA_PASSWORD": p.Password,
			}
		},
	},
	"sqlite": {
		Name:     "sqlite",
		Driver:   "sqlite",
		Database: "tpch",
		dsn:      sqliteDSN,
	},
	"libsql": {
		Name:     "libsql",
		Driver:   "libsql",
		Image:    "ghcr.io/tursodatabase/libsql-server:latest",
		Port:     8080,
		Database: "tpch",
		Server:   true,
		dsn:      libsqlDSN,
	},
}

var aliases = map[string]string{
	"postgresql":    "postgres",
	"pg":            "postgres",
	"mariadb":       "mysql",
	"sqlserver":     "mssql",
	"ms sql server": "mssql",
	"sqlite3":       "sqlite",
	"turso":         "libsql",
}

// Lookup resolves an engine identifier, case-insensitively and through aliases
func Lookup(name string) (Engine, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	e, ok := engines[key]
	if !ok {
		return Engine{}, domain.Errorf(domain.KindConfiguration, "lookup engine",
			"unsupported engine %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return e, nil
}

// Names returns the canonical engine names in sorted order
func Names() []string {
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func hostPort(p ConnParams) string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

func postgresDSN(p ConnParams) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     hostPort(p),
		Path:     "/" + p.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func mysqlDSN(p ConnParams) string {
	cfg := mysql.NewConfig()
	cfg.User = p.User
	cfg.Passwd = p.Password
	cfg.Net = "tcp"
	cfg.Addr = hostPort(p)
	cfg.DBName = p.Database
	cfg.ParseTime = true
	cfg.MultiStatements = true
	cfg.AllowCleartextPasswords = true
	cfg.Timeout = 30 * time.Second
	return cfg.FormatDSN()
}

func mssqlDSN(p ConnParams) string {
	q := url.Values{}
	q.Set("database", p.Database)
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(p.User, p.Password),
		Host:     hostPort(p),
		RawQuery: q.Encode(),
	}
	return u.String()
}

// sqliteDSN treats the database name as a file, appending .db when it has
// no extension
func sqliteDSN(p ConnParams) string {
	name := p.Database
	if filepath.Ext(name) == "" {
		name += ".db"
	}
	return name
}

func libsqlDSN(p ConnParams) string {
	return fmt.Sprintf("http://%s", hostPort(p))
}
