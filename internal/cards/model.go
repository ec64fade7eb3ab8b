package cards

import (
	"fmt"
	"sort"
)

type refState int

const (
	refUnresolved refState = iota
	refResolved
	refFilteredDuplicate
)

// SetRef records how a card's set reference was decided during normalization.
// The zero value is unresolved.
type SetRef struct {
	state refState
	setID string
}

// Resolved references a known set.
func Resolved(setID string) SetRef {
	return SetRef{state: refResolved, setID: setID}
}

// FilteredDuplicate marks a scratch record shadowed by a released record with the same identifier.
func FilteredDuplicate() SetRef {
	return SetRef{state: refFilteredDuplicate}
}

// SetID returns the referenced set when the reference is resolved.
func (r SetRef) SetID() (string, bool) {
	return r.setID, r.state == refResolved
}

// IsFilteredDuplicate reports whether the record was filtered as a duplicate.
func (r SetRef) IsFilteredDuplicate() bool {
	return r.state == refFilteredDuplicate
}

func (r SetRef) String() string {
	switch r.state {
	case refResolved:
		return "resolved(" + r.setID + ")"
	case refFilteredDuplicate:
		return "filtered_duplicate"
	default:
		return "unresolved"
	}
}

// CardRecord is one row of authored card data.
type CardRecord struct {
	ID           string
	SetID        string
	Name         string
	Scratch      bool
	Fields       map[string]any
	Translations map[string]map[string]any
	Ref          SetRef
}

// CardSet is a named collection of records representing one product.
type CardSet struct {
	ID       string
	Name     string
	Codes    map[string]string
	Scratch  bool
	Selected bool
}

// Catalog is the normalized record set owned by one pipeline run.
type Catalog struct {
	Sets    []CardSet
	Records []CardRecord
	Report  SanityReport

	setIndex map[string]int
	bySet    map[string][]int
}

// Set returns the set with the given identifier.
func (c *Catalog) Set(id string) (CardSet, bool) {
	idx, ok := c.setIndex[id]
	if !ok {
		return CardSet{}, false
	}
	return c.Sets[idx], true
}

// SelectedSets returns the sets chosen for generation in source order.
func (c *Catalog) SelectedSets() []CardSet {
	out := make([]CardSet, 0, len(c.Sets))
	for _, set := range c.Sets {
		if set.Selected {
			out = append(out, set)
		}
	}
	return out
}

// RecordsFor returns the records resolved to setID, sorted by identifier.
func (c *Catalog) RecordsFor(setID string) []CardRecord {
	indexes := c.bySet[setID]
	out := make([]CardRecord, 0, len(indexes))
	for _, idx := range indexes {
		out = append(out, c.Records[idx])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) String() string {
	return fmt.Sprintf("catalog(%d sets, %d records)", len(c.Sets), len(c.Records))
}
