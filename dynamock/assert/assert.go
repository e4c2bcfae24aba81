// Package assert provides fluent assertion utilities for testing dynamodel items
// and the results of table reads.
//
// # Usage
//
//	import "github.com/nisimpson/dynamodel/dynamock/assert"
//
//	// Assert on query results
//	items, _ := cur.All()
//	assert.Items(t, items).
//		HasCount(8).
//		AllHave("album_name", "Let There Be Rock").
//		Contains("track_name", "Overdose").
//		OrderedBy("track_name")
//
//	// Assert on a single item
//	assert.Item(t, item).
//		IsClean().
//		HasValue("track_name", "Overdose")
package assert

import (
	"cmp"
	"fmt"
	"testing"

	"github.com/nisimpson/dynamodel"
	tassert "github.com/stretchr/testify/assert"
)

// ItemsAssertion provides fluent assertions for a list of items.
type ItemsAssertion struct {
	t     testing.TB
	items []*dynamodel.Item
}

// Items creates a new ItemsAssertion for the given items.
func Items(t testing.TB, items []*dynamodel.Item) *ItemsAssertion {
	return &ItemsAssertion{t: t, items: items}
}

// HasCount asserts that the items collection has the expected count.
func (a *ItemsAssertion) HasCount(expected int) *ItemsAssertion {
	a.t.Helper()
	if len(a.items) != expected {
		a.t.Errorf("expected %d items, got %d", expected, len(a.items))
	}
	return a
}

// IsEmpty asserts that the items collection is empty.
func (a *ItemsAssertion) IsEmpty() *ItemsAssertion {
	a.t.Helper()
	return a.HasCount(0)
}

// IsNotEmpty asserts that the items collection is not empty.
func (a *ItemsAssertion) IsNotEmpty() *ItemsAssertion {
	a.t.Helper()
	if len(a.items) == 0 {
		a.t.Error("expected items to not be empty")
	}
	return a
}

// Contains asserts that at least one item holds value under name.
func (a *ItemsAssertion) Contains(name string, value any) *ItemsAssertion {
	a.t.Helper()
	for _, item := range a.items {
		if v, ok := item.Get(name); ok && tassert.ObjectsAreEqualValues(value, v) {
			return a
		}
	}
	a.t.Errorf("expected to find attribute %s with value %v in items", name, value)
	return a
}

// NotContains asserts that no item holds value under name.
func (a *ItemsAssertion) NotContains(name string, value any) *ItemsAssertion {
	a.t.Helper()
	for i, item := range a.items {
		if v, ok := item.Get(name); ok && tassert.ObjectsAreEqualValues(value, v) {
			a.t.Errorf("expected no item with attribute %s = %v, found one at index %d", name, value, i)
			return a
		}
	}
	return a
}

// AllHave asserts that every item holds value under name.
func (a *ItemsAssertion) AllHave(name string, value any) *ItemsAssertion {
	a.t.Helper()
	for i, item := range a.items {
		v, ok := item.Get(name)
		if !ok || !tassert.ObjectsAreEqualValues(value, v) {
			a.t.Errorf("expected item %d to have attribute %s = %v, got %v", i, name, value, v)
		}
	}
	return a
}

// AllMatch asserts that pred holds for every item.
func (a *ItemsAssertion) AllMatch(desc string, pred func(*dynamodel.Item) bool) *ItemsAssertion {
	a.t.Helper()
	for i, item := range a.items {
		if !pred(item) {
			a.t.Errorf("expected item %d to match %s: %v", i, desc, item.Values())
		}
	}
	return a
}

// AllClean asserts that every item is CLEAN with no pending changes.
func (a *ItemsAssertion) AllClean() *ItemsAssertion {
	a.t.Helper()
	for i, item := range a.items {
		if item.State() != dynamodel.StateClean || item.IsDirty() {
			a.t.Errorf("expected item %d to be CLEAN, got %s with %d changes", i, item.State(), len(item.Changes()))
		}
	}
	return a
}

// OrderedBy asserts the items are in ascending order of the string values under
// name.
func (a *ItemsAssertion) OrderedBy(name string) *ItemsAssertion {
	a.t.Helper()
	return a.ordered(name, 1)
}

// OrderedByDesc asserts the items are in descending order of the string values
// under name.
func (a *ItemsAssertion) OrderedByDesc(name string) *ItemsAssertion {
	a.t.Helper()
	return a.ordered(name, -1)
}

func (a *ItemsAssertion) ordered(name string, dir int) *ItemsAssertion {
	a.t.Helper()
	for i := 1; i < len(a.items); i++ {
		prev, _ := a.items[i-1].Get(name)
		cur, _ := a.items[i].Get(name)
		if cmp.Compare(fmt.Sprint(prev), fmt.Sprint(cur))*dir > 0 {
			a.t.Errorf("items out of order at index %d: %v before %v", i, prev, cur)
			return a
		}
	}
	return a
}

// Values returns the string values under name in item order.
func (a *ItemsAssertion) Values(name string) []string {
	out := make([]string, len(a.items))
	for i, item := range a.items {
		v, _ := item.Get(name)
		out[i] = fmt.Sprint(v)
	}
	return out
}

// ItemAssertion provides fluent assertions for one item.
type ItemAssertion struct {
	t    testing.TB
	item *dynamodel.Item
}

// Item creates a new ItemAssertion.
func Item(t testing.TB, item *dynamodel.Item) *ItemAssertion {
	t.Helper()
	if item == nil {
		t.Fatal("expected item to not be nil")
	}
	return &ItemAssertion{t: t, item: item}
}

// HasValue asserts the item holds value under name.
func (a *ItemAssertion) HasValue(name string, value any) *ItemAssertion {
	a.t.Helper()
	v, ok := a.item.Get(name)
	if !ok {
		a.t.Errorf("expected attribute %s to be present", name)
		return a
	}
	if !tassert.ObjectsAreEqualValues(value, v) {
		a.t.Errorf("expected attribute %s = %v (%T), got %v (%T)", name, value, value, v, v)
	}
	return a
}

// Lacks asserts the item has no value under name.
func (a *ItemAssertion) Lacks(name string) *ItemAssertion {
	a.t.Helper()
	if v, ok := a.item.Get(name); ok {
		a.t.Errorf("expected attribute %s to be absent, got %v", name, v)
	}
	return a
}

// IsNew asserts the item is NEW.
func (a *ItemAssertion) IsNew() *ItemAssertion {
	a.t.Helper()
	if a.item.State() != dynamodel.StateNew {
		a.t.Errorf("expected item to be NEW, got %s", a.item.State())
	}
	return a
}

// IsClean asserts the item is CLEAN with no pending changes.
func (a *ItemAssertion) IsClean() *ItemAssertion {
	a.t.Helper()
	if a.item.State() != dynamodel.StateClean {
		a.t.Errorf("expected item to be CLEAN, got %s", a.item.State())
	}
	if a.item.IsDirty() {
		a.t.Errorf("expected no pending changes, got %v", a.item.Changes())
	}
	return a
}

// HasChange asserts the item has a pending change of kind for name.
func (a *ItemAssertion) HasChange(name string, kind dynamodel.ChangeKind) *ItemAssertion {
	a.t.Helper()
	for _, c := range a.item.Changes() {
		if c.Attribute == name {
			if c.Kind != kind {
				a.t.Errorf("expected %s change for %s, got %s", kind, name, c.Kind)
			}
			return a
		}
	}
	a.t.Errorf("expected a pending change for %s", name)
	return a
}

// HasChanges asserts the number of pending changes.
func (a *ItemAssertion) HasChanges(n int) *ItemAssertion {
	a.t.Helper()
	if got := len(a.item.Changes()); got != n {
		a.t.Errorf("expected %d pending changes, got %d", n, got)
	}
	return a
}
