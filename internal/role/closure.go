package role

import (
	"strings"

	"github.com/scopekeeper/scopekeeper/internal/scope"
)

// Close computes, for every role in the table, the least-fixed-point
// expansion F(R) = R.Scopes ∪ ⋃ { R'.Scopes : R' activated by some scope
// in the current approximation of R.Scopes }. It terminates because
// each round strictly grows a finite set (the universe of scopes
// syntactically present in the table) and never panics on cycles —
// mutually activating roles simply converge to the same closed set.
func (t *Table) Close() []Closed {
	n := len(t.roles)
	sets := make([]map[scope.Scope]struct{}, n)
	for i, r := range t.roles {
		sets[i] = make(map[scope.Scope]struct{}, len(r.Scopes))
		for _, s := range r.Scopes {
			sets[i][s] = struct{}{}
		}
	}

	activationCache := make(map[scope.Scope][]int)
	activatedBy := func(s scope.Scope) []int {
		if cached, ok := activationCache[s]; ok {
			return cached
		}
		var result []int
		for j, r := range t.roles {
			if scope.SatisfiesOne(s, ActivationPattern(r.ID)) {
				result = append(result, j)
			}
		}
		activationCache[s] = result
		return result
	}

	for {
		changed := false
		for i := range t.roles {
			// Snapshot before mutating sets[i]; new additions are
			// picked up by later rounds, keeping iteration safe.
			current := make([]scope.Scope, 0, len(sets[i]))
			for s := range sets[i] {
				current = append(current, s)
			}
			for _, s := range current {
				if !strings.HasPrefix(string(s), scope.AssumePrefix) {
					continue
				}
				for _, j := range activatedBy(s) {
					for s2 := range sets[j] {
						if _, ok := sets[i][s2]; !ok {
							sets[i][s2] = struct{}{}
							changed = true
						}
					}
				}
			}
		}
		if !changed {
			break
		}
	}

	closed := make([]Closed, n)
	for i, r := range t.roles {
		flat := make([]scope.Scope, 0, len(sets[i]))
		for s := range sets[i] {
			flat = append(flat, s)
		}
		closed[i] = Closed{ID: r.ID, Scopes: scope.Normalize(flat)}
	}
	return closed
}
