package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/datagenie/pkg/models"
)

func TestReconcile_AllCases(t *testing.T) {
	kept := Versioned[string]{ID: uuid.New(), Value: "orders", Active: true}
	gone := Versioned[string]{ID: uuid.New(), Value: "legacy", Active: true}
	back := Versioned[string]{ID: uuid.New(), Value: "refunds", Active: false}
	dormant := Versioned[string]{ID: uuid.New(), Value: "archive", Active: false}

	plan := Reconcile(
		[]Versioned[string]{kept, gone, back, dormant},
		[]string{"orders", "refunds", "customers"},
		identity, nil,
	)

	assert.Equal(t, []string{"customers"}, plan.Insert)
	require.Len(t, plan.Reactivate, 1)
	assert.Equal(t, back.ID, plan.Reactivate[0].ID)
	assert.True(t, plan.Reactivate[0].Active)
	assert.False(t, plan.Reactivate[0].Changed)
	assert.Empty(t, plan.Update)
	require.Len(t, plan.Unchanged, 1)
	assert.Equal(t, kept.ID, plan.Unchanged[0].ID)
	require.Len(t, plan.Deactivate, 1)
	assert.Equal(t, gone.ID, plan.Deactivate[0].ID)

	assert.Equal(t, models.LevelCounts{
		Inserted: 1, Reactivated: 1, Unchanged: 1, Deactivated: 1,
	}, plan.Counts())
	assert.False(t, plan.Empty())
}

func TestReconcile_ColumnChanges(t *testing.T) {
	id := Versioned[models.LiveColumn]{
		ID:     uuid.New(),
		Value:  models.LiveColumn{Name: "id", DataType: "integer", OrdinalPosition: 1},
		Active: true,
	}
	total := Versioned[models.LiveColumn]{
		ID:     uuid.New(),
		Value:  models.LiveColumn{Name: "total", DataType: "integer", OrdinalPosition: 2},
		Active: false,
	}

	live := []models.LiveColumn{
		{Name: "id", DataType: "bigint", OrdinalPosition: 1},
		{Name: "total", DataType: "numeric", OrdinalPosition: 2},
	}

	plan := Reconcile([]Versioned[models.LiveColumn]{id, total}, live, columnKey, columnChanged)

	require.Len(t, plan.Update, 1)
	assert.Equal(t, id.ID, plan.Update[0].ID)
	assert.Equal(t, "bigint", plan.Update[0].Value.DataType, "entries carry the live value")

	require.Len(t, plan.Reactivate, 1)
	assert.Equal(t, total.ID, plan.Reactivate[0].ID)
	assert.True(t, plan.Reactivate[0].Changed)
	assert.Equal(t, "numeric", plan.Reactivate[0].Value.DataType)
}

func TestReconcile_EmptyWhenInSync(t *testing.T) {
	mirror := []Versioned[string]{
		{ID: uuid.New(), Value: "a", Active: true},
		{ID: uuid.New(), Value: "old", Active: false},
	}

	plan := Reconcile(mirror, []string{"a"}, identity, nil)

	assert.True(t, plan.Empty())
	assert.Len(t, plan.Unchanged, 1)
}

func TestReconcile_DuplicateLiveKeys(t *testing.T) {
	plan := Reconcile(nil, []string{"a", "b", "a"}, identity, nil)

	assert.Equal(t, []string{"a", "b"}, plan.Insert)
}

func TestReconcile_EmptyLiveDeactivatesEverything(t *testing.T) {
	mirror := []Versioned[string]{
		{ID: uuid.New(), Value: "a", Active: true},
		{ID: uuid.New(), Value: "b", Active: true},
	}

	plan := Reconcile(mirror, nil, identity, nil)

	assert.Len(t, plan.Deactivate, 2)
	assert.Empty(t, plan.Insert)
	assert.Equal(t, 2, plan.Counts().Deactivated)
}
