package collection

import (
	"cmp"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/KevinKickass/PumpFleet/internal/pressure"
	"github.com/KevinKickass/PumpFleet/internal/types"
)

type SortKey string

const (
	SortNone         SortKey = ""
	SortNameAsc      SortKey = "name-asc"
	SortNameDesc     SortKey = "name-desc"
	SortPressureAsc  SortKey = "pressure-asc"
	SortPressureDesc SortKey = "pressure-desc"
)

// Valid reports whether k is one of the four sort orders.
func (k SortKey) Valid() bool {
	switch k {
	case SortNameAsc, SortNameDesc, SortPressureAsc, SortPressureDesc:
		return true
	}
	return false
}

// sorter orders pumps. A collate.Collator is not safe for concurrent use, so
// each controller owns one and only calls it under its lock.
type sorter struct {
	collator *collate.Collator
}

func newSorter(locale string) *sorter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &sorter{collator: collate.New(tag)}
}

// apply sorts pumps in place; SortNone keeps the given order. The sort is
// stable so equal keys keep canonical order.
func (s *sorter) apply(pumps []types.Pump, key SortKey) {
	switch key {
	case SortNameAsc:
		slices.SortStableFunc(pumps, func(a, b types.Pump) int {
			return s.collator.CompareString(a.Name, b.Name)
		})
	case SortNameDesc:
		slices.SortStableFunc(pumps, func(a, b types.Pump) int {
			return s.collator.CompareString(b.Name, a.Name)
		})
	case SortPressureAsc:
		slices.SortStableFunc(pumps, func(a, b types.Pump) int {
			return cmp.Compare(currentPressure(a), currentPressure(b))
		})
	case SortPressureDesc:
		slices.SortStableFunc(pumps, func(a, b types.Pump) int {
			return cmp.Compare(currentPressure(b), currentPressure(a))
		})
	}
}

func currentPressure(p types.Pump) float64 {
	return pressure.GetStats(p.Pressure).Current
}
