package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAndNormalize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "plain select", input: "SELECT 1", want: "SELECT 1"},
		{name: "trailing semicolon", input: "SELECT 1;", want: "SELECT 1"},
		{name: "semicolon then whitespace", input: "SELECT 1 ;  \n", want: "SELECT 1"},
		{name: "surrounding whitespace", input: "  SELECT 1  ", want: "SELECT 1"},
		{name: "empty", input: "", want: ""},
		{name: "whitespace only", input: "   ", want: ""},
		{name: "newlines kept", input: "SELECT *\nFROM users\nWHERE id = 1;", want: "SELECT *\nFROM users\nWHERE id = 1"},
		{name: "semicolon in literal", input: "SELECT * FROM t WHERE name = 'a;b';", want: "SELECT * FROM t WHERE name = 'a;b'"},
		{name: "semicolon in quoted identifier", input: `SELECT * FROM "odd;name"`, want: `SELECT * FROM "odd;name"`},
		{name: "doubled quote", input: "SELECT * FROM t WHERE name = 'O''Brien'", want: "SELECT * FROM t WHERE name = 'O''Brien'"},
		{name: "backslash escape", input: `SELECT * FROM t WHERE name = 'it\'s;fine'`, want: `SELECT * FROM t WHERE name = 'it\'s;fine'`},
		{name: "semicolon in line comment", input: "SELECT 1 -- one; two\nFROM t", want: "SELECT 1 -- one; two\nFROM t"},
		{name: "semicolon in block comment", input: "SELECT /* a;b */ 1", want: "SELECT /* a;b */ 1"},

		{name: "two statements", input: "SELECT 1; SELECT 2", wantErr: ErrMultipleStatements},
		{name: "two statements both terminated", input: "SELECT 1; SELECT 2;", wantErr: ErrMultipleStatements},
		{name: "stacked drop", input: "SELECT * FROM t WHERE id = 1; DROP TABLE t", wantErr: ErrMultipleStatements},
		{name: "double trailing semicolon", input: "SELECT 1;;", wantErr: ErrMultipleStatements},
		{name: "separator after comment ends", input: "SELECT 1 /* x */; SELECT 2", wantErr: ErrMultipleStatements},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateAndNormalize(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, got.Error, tt.wantErr)
				assert.Empty(t, got.NormalizedSQL)
				return
			}
			assert.NoError(t, got.Error)
			assert.Equal(t, tt.want, got.NormalizedSQL)
		})
	}
}
