package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckForInjection_Clean(t *testing.T) {
	clean := []string{
		"",
		"This is a normal description with spaces",
		"laptop computers",
		"user@example.com",
		"2024-01-15",
		"O'Brien",
		"This is a note -- with dashes",
	}
	for _, v := range clean {
		t.Run(v, func(t *testing.T) {
			assert.Nil(t, CheckForInjection("orders.status", v))
		})
	}
}

func TestCheckForInjection_Flagged(t *testing.T) {
	flagged := []string{
		"'; DROP TABLE users--",
		"' OR '1'='1",
		"1 UNION SELECT * FROM passwords",
		"admin'--",
	}
	for _, v := range flagged {
		t.Run(v, func(t *testing.T) {
			res := CheckForInjection("users.name", v)
			require.NotNil(t, res)
			assert.Equal(t, "users.name", res.Field)
			assert.Equal(t, v, res.Value)
			assert.NotEmpty(t, res.Fingerprint)
		})
	}
}
