package postgres

import (
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/datagenie/pkg/models"
)

func TestFromEndpoint(t *testing.T) {
	e := &models.Endpoint{
		Host:         "db.acme.internal",
		Username:     "reader",
		Password:     "pw",
		DatabaseName: "sales",
	}

	cfg, err := FromEndpoint(e)
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Port, "default port")
	assert.Equal(t, "require", cfg.SSLMode, "default sslmode")

	e.Port = 6543
	e.Options = map[string]any{"sslmode": "disable"}
	cfg, err = FromEndpoint(e)
	require.NoError(t, err)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, "disable", cfg.SSLMode)
}

func TestFromEndpoint_MissingFields(t *testing.T) {
	tests := []struct {
		name    string
		e       models.Endpoint
		wantErr string
	}{
		{"no host", models.Endpoint{Username: "u", DatabaseName: "d"}, "host is required"},
		{"no user", models.Endpoint{Host: "h", DatabaseName: "d"}, "username is required"},
		{"no database", models.Endpoint{Host: "h", Username: "u"}, "database name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEndpoint(&tt.e)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ConnectionString_EscapesCredentials(t *testing.T) {
	cfg := &Config{
		Host:     "db.acme.internal",
		Port:     5432,
		User:     "app@acme",
		Password: "p@ss/w#rd?x",
		Database: "sales",
		SSLMode:  "verify-full",
	}

	connStr := cfg.ConnectionString()

	u, err := url.Parse(connStr)
	require.NoError(t, err)
	pw, _ := u.User.Password()
	assert.Equal(t, "app@acme", u.User.Username())
	assert.Equal(t, "p@ss/w#rd?x", pw)
	assert.Equal(t, "db.acme.internal:5432", u.Host)
	assert.Equal(t, "/sales", u.Path)
	assert.Equal(t, "verify-full", u.Query().Get("sslmode"))
	assert.Equal(t, "datagenie", u.Query().Get("application_name"))

	// pgx must accept it as well.
	poolCfg, err := pgxpool.ParseConfig(connStr)
	require.NoError(t, err)
	assert.Equal(t, "p@ss/w#rd?x", poolCfg.ConnConfig.Password)
	assert.Equal(t, "sales", poolCfg.ConnConfig.Database)
}

func TestConfig_ConnectionString_DefaultSSLMode(t *testing.T) {
	cfg := &Config{Host: "h", Port: 5432, User: "u", Database: "d"}
	u, err := url.Parse(cfg.ConnectionString())
	require.NoError(t, err)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
}

func TestJSONValue(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, id.String(), jsonValue([16]byte(id)))
	assert.Equal(t, int64(7), jsonValue(int64(7)))
	assert.Nil(t, jsonValue(nil))
}
