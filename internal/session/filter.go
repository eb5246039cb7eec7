package session

import (
	"fmt"
	"slices"
)

// Filter is the product search filter. See the package documentation for
// the meaning of the three cases.
type Filter struct {
	Term       string
	Active     bool
	ProductIDs []ProductID
}

// NoFilter shows every line.
func NoFilter() Filter {
	return Filter{}
}

// MatchNothing is an active filter whose search matched no product.
func MatchNothing(term string) Filter {
	return Filter{Term: term, Active: true, ProductIDs: []ProductID{}}
}

// MatchProducts shows only lines for the given products.
func MatchProducts(term string, ids []ProductID) Filter {
	return Filter{Term: term, Active: true, ProductIDs: slices.Clone(ids)}
}

// MatchesNothing reports whether the filter hides every line.
func (f Filter) MatchesNothing() bool {
	return f.Active && len(f.ProductIDs) == 0
}

// Counters are derived from the grouped lines and the filter.
type Counters struct {
	Total    int
	Filtered int
}

// ApplyFilter returns the grouped lines visible under f. Input groups and
// lines are not modified; a group whose sublines are filtered is copied, and
// a group left without sublines is dropped.
func ApplyFilter(lines []GroupedLine, f Filter) []GroupedLine {
	if !f.Active {
		return slices.Clone(lines)
	}
	if len(f.ProductIDs) == 0 {
		return []GroupedLine{}
	}

	allowed := make(map[ProductID]struct{}, len(f.ProductIDs))
	for _, id := range f.ProductIDs {
		allowed[id] = struct{}{}
	}
	match := func(l Line) bool {
		if l.Product == 0 {
			return false
		}
		_, ok := allowed[l.Product]
		return ok
	}

	result := make([]GroupedLine, 0, len(lines))
	for _, gl := range lines {
		if !gl.Group {
			if match(gl.Line) {
				result = append(result, gl)
			}
			continue
		}
		var kept []Line
		for _, sub := range gl.Sublines {
			if match(sub) {
				kept = append(kept, sub)
			}
		}
		if len(kept) > 0 {
			group := gl
			group.Sublines = kept
			result = append(result, group)
		}
	}
	return result
}

// CountLeaves counts leaf lines: a group counts its sublines, a single line
// counts one.
func CountLeaves(lines []GroupedLine) int {
	count := 0
	for _, gl := range lines {
		if gl.Group {
			count += len(gl.Sublines)
		} else {
			count++
		}
	}
	return count
}

// ComputeCounters derives the counters from lines() under f. It never
// panics: on any fault it returns prev together with the error.
func ComputeCounters(lines func() []GroupedLine, f Filter, prev Counters) (c Counters, err error) {
	defer func() {
		if r := recover(); r != nil {
			c = prev
			err = fmt.Errorf("counter computation: %v", r)
		}
	}()

	all := lines()
	return Counters{
		Total:    CountLeaves(all),
		Filtered: CountLeaves(ApplyFilter(all, f)),
	}, nil
}
