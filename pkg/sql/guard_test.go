package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckMutation(t *testing.T) {
	tests := []struct {
		query   string
		keyword string
	}{
		{"DROP TABLE x", "DROP"},
		{"drop table orders", "DROP"},
		{"DrOp TaBlE orders", "DROP"},
		{"ALTER TABLE users ADD COLUMN age int", "ALTER"},
		{"TRUNCATE orders", "TRUNCATE"},
		{"CREATE TABLE t (id int)", "CREATE"},
		{"INSERT INTO t VALUES (1)", "INSERT"},
		{"update users set name = 'x'", "UPDATE"},
		{"DELETE FROM users", "DELETE"},
		{"SELECT REPLACE(name, 'a', 'b') FROM users", "REPLACE"},
		{"MERGE INTO t USING s ON t.id = s.id", "MERGE"},
		{"WITH gone AS (DELETE FROM t RETURNING *) SELECT * FROM gone", "DELETE"},
		{"SELECT 1;\nDROP TABLE users", "DROP"},
		{"SELECT * FROM users WHERE note = 'please drop me'", "DROP"},
		{"SELECT (DROP)", "DROP"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			keyword, blocked := CheckMutation(tt.query)
			assert.True(t, blocked)
			assert.Equal(t, tt.keyword, keyword)
		})
	}
}

func TestCheckMutation_WholeWordOnly(t *testing.T) {
	allowed := []string{
		"SELECT * FROM droptable",
		"SELECT DROPX FROM t",
		"SELECT created_at, updated_at FROM orders",
		"SELECT * FROM deleted_items",
		"SELECT merge_count FROM stats",
		"SELECT id FROM users WHERE is_inserted = true",
		"SELECT * FROM users LIMIT 100",
		"",
	}
	for _, q := range allowed {
		t.Run(q, func(t *testing.T) {
			keyword, blocked := CheckMutation(q)
			assert.False(t, blocked)
			assert.Empty(t, keyword)
		})
	}
}
