package services

import (
	"github.com/google/uuid"

	"github.com/ekaya-inc/datagenie/pkg/models"
)

// Versioned is a mirror row: a stable id, the mirrored value, and its activation flag.
type Versioned[T any] struct {
	ID     uuid.UUID
	Value  T
	Active bool
}

// ReconcilePlan is the set of writes that brings a mirror level in line with
// the live catalog. Entries carry the live value wherever one exists.
type ReconcilePlan[T any] struct {
	// Insert holds live values with no mirror row.
	Insert []T
	// Reactivate holds inactive mirror rows observed again. Changed reports
	// whether the live value also differs.
	Reactivate []Reactivation[T]
	// Update holds active rows whose live value changed.
	Update []Versioned[T]
	// Unchanged holds active rows that need no write.
	Unchanged []Versioned[T]
	// Deactivate holds active rows no longer observed.
	Deactivate []Versioned[T]
}

// Reactivation is an inactive mirror row that is live again.
type Reactivation[T any] struct {
	Versioned[T]
	Changed bool
}

// Counts summarizes the plan.
func (p ReconcilePlan[T]) Counts() models.LevelCounts {
	return models.LevelCounts{
		Inserted:    len(p.Insert),
		Reactivated: len(p.Reactivate),
		Updated:     len(p.Update),
		Unchanged:   len(p.Unchanged),
		Deactivated: len(p.Deactivate),
	}
}

// Empty reports whether the plan requires no writes.
func (p ReconcilePlan[T]) Empty() bool {
	return len(p.Insert) == 0 && len(p.Reactivate) == 0 && len(p.Update) == 0 && len(p.Deactivate) == 0
}

// Reconcile computes the three-way merge between mirror rows and live values.
//
//	live, no mirror row      -> Insert
//	live, inactive row       -> Reactivate
//	live, active, changed    -> Update
//	live, active, same       -> Unchanged
//	not live, active row     -> Deactivate
//	not live, inactive row   -> nothing
//
// Rows are matched by key. Live entries keep their order; a repeated live key
// is ignored after its first occurrence. changed may be nil when the key is
// the whole value.
func Reconcile[T any](mirror []Versioned[T], live []T, key func(T) string, changed func(old, cur T) bool) ReconcilePlan[T] {
	byKey := make(map[string]Versioned[T], len(mirror))
	for _, m := range mirror {
		byKey[key(m.Value)] = m
	}

	var plan ReconcilePlan[T]
	seen := make(map[string]struct{}, len(live))
	for _, v := range live {
		k := key(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		m, ok := byKey[k]
		if !ok {
			plan.Insert = append(plan.Insert, v)
			continue
		}

		diff := changed != nil && changed(m.Value, v)
		current := Versioned[T]{ID: m.ID, Value: v, Active: true}
		switch {
		case !m.Active:
			plan.Reactivate = append(plan.Reactivate, Reactivation[T]{Versioned: current, Changed: diff})
		case diff:
			plan.Update = append(plan.Update, current)
		default:
			plan.Unchanged = append(plan.Unchanged, current)
		}
	}

	for _, m := range mirror {
		if _, ok := seen[key(m.Value)]; ok || !m.Active {
			continue
		}
		plan.Deactivate = append(plan.Deactivate, m)
	}

	return plan
}
