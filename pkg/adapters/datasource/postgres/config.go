package postgres

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/ekaya-inc/datagenie/pkg/config"
	"github.com/ekaya-inc/datagenie/pkg/models"
)

const (
	defaultPort    = 5432
	defaultSSLMode = "require"
	appName        = "datagenie"
)

// Config contains PostgreSQL connection options for one endpoint.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-ca", "verify-full"
}

// FromEndpoint builds a Config from an endpoint row. The password must already
// be decrypted.
func FromEndpoint(e *models.Endpoint) (*Config, error) {
	if e.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if e.Username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if e.DatabaseName == "" {
		return nil, fmt.Errorf("database name is required")
	}

	port := e.Port
	if port == 0 {
		port = defaultPort
	}

	return &Config{
		Host:     e.Host,
		Port:     port,
		User:     e.Username,
		Password: e.Password,
		Database: e.DatabaseName,
		SSLMode:  e.Option("sslmode", defaultSSLMode),
	}, nil
}

// ConnectionString renders a postgres URL. User-provided parts are escaped so
// passwords containing @, / or # survive parsing.
func (c *Config) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = defaultSSLMode
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("application_name", appName)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     config.ResolveHostForDocker(c.Host) + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}
