package mssql

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/microsoft/go-mssqldb/azuread"

	"github.com/ekaya-inc/datagenie/pkg/config"
	"github.com/ekaya-inc/datagenie/pkg/models"
)

const (
	defaultPort = 1433
	appName     = "datagenie"

	AuthSQL              = "sql"
	AuthServicePrincipal = "service_principal"
)

// Config contains SQL Server connection options for one endpoint.
type Config struct {
	Host     string
	Port     int
	Database string

	// AuthMethod is "sql" (username/password) or "service_principal" (Azure AD
	// client credentials, with the client secret stored as the endpoint password).
	AuthMethod string

	Username string
	Password string

	// Service principal fields, read from endpoint options.
	AzureTenantID string
	ClientID      string

	Encrypt                string // "true", "false", "strict"
	TrustServerCertificate bool
}

// FromEndpoint builds a Config from an endpoint row. The password must already
// be decrypted.
func FromEndpoint(e *models.Endpoint) (*Config, error) {
	cfg := &Config{
		Host:                   e.Host,
		Port:                   e.Port,
		Database:               e.DatabaseName,
		AuthMethod:             e.Option("auth_method", AuthSQL),
		Username:               e.Username,
		Password:               e.Password,
		AzureTenantID:          e.Option("azure_tenant_id", ""),
		ClientID:               e.Option("client_id", ""),
		Encrypt:                e.Option("encrypt", "true"),
		TrustServerCertificate: e.Option("trust_server_certificate", "false") == "true",
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields required by the selected auth method.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	switch c.AuthMethod {
	case AuthSQL:
		if c.Username == "" {
			return fmt.Errorf("username is required for SQL authentication")
		}
	case AuthServicePrincipal:
		if c.AzureTenantID == "" {
			return fmt.Errorf("azure_tenant_id option is required for service principal")
		}
		if c.ClientID == "" {
			return fmt.Errorf("client_id option is required for service principal")
		}
		if c.Password == "" {
			return fmt.Errorf("client secret is required for service principal")
		}
	default:
		return fmt.Errorf("invalid auth method: %s (must be sql or service_principal)", c.AuthMethod)
	}
	return nil
}

// DriverName returns the database/sql driver for the auth method.
// Service principals go through the azuread driver.
func (c *Config) DriverName() string {
	if c.AuthMethod == AuthServicePrincipal {
		return azuread.DriverName
	}
	return "sqlserver"
}

// ConnectionString renders a sqlserver URL for the driver returned by DriverName.
func (c *Config) ConnectionString(connectTimeout time.Duration) string {
	q := url.Values{}
	q.Set("database", c.Database)
	q.Set("encrypt", c.Encrypt)
	q.Set("app name", appName)
	if c.TrustServerCertificate {
		q.Set("TrustServerCertificate", "true")
	}
	if connectTimeout > 0 {
		q.Set("connection timeout", strconv.Itoa(int(connectTimeout.Seconds())))
	}

	u := url.URL{
		Scheme: "sqlserver",
		Host:   net.JoinHostPort(config.ResolveHostForDocker(c.Host), strconv.Itoa(c.Port)),
	}

	switch c.AuthMethod {
	case AuthServicePrincipal:
		q.Set("fedauth", azuread.ActiveDirectoryServicePrincipal)
		q.Set("user id", c.ClientID+"@"+c.AzureTenantID)
		q.Set("password", c.Password)
	default:
		u.User = url.UserPassword(c.Username, c.Password)
	}

	u.RawQuery = q.Encode()
	return u.String()
}
