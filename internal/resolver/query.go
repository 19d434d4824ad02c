package resolver

import (
	"strings"

	"github.com/scopekeeper/scopekeeper/internal/scope"
)

// Query returns the normalized union of scope sets contributed by every
// role whose activation this query reaches, per §4.3.4–4.3.5: the DFA is
// walked one character at a time, unioning each visited state's inherited
// wildcard contributions only; the state where the literal prefix ends
// contributes its full accept set (its own wildcard and literal roles
// alike), and a trailing "*" additionally unions every accept set
// reachable beyond that state.
func (r *Resolver) Query(q scope.Scope) []scope.Scope {
	str := string(q)
	isPattern := strings.HasSuffix(str, "*")
	lit := str
	if isPattern {
		lit = str[:len(str)-1]
	}

	acc := make(map[int]struct{})
	cur := r.root
	for i := 0; i < len(lit); i++ {
		// Mid-walk, only wildcard contributions are safe to count
		// unconditionally: a literal role's accept entry only covers
		// a query equal to it exactly, never one that continues past
		// it (§4.1 coversOne), so it must wait for the boundary below.
		accumulate(acc, cur.wildcard)
		cur = cur.step(lit[i])
	}

	// cur now sits exactly at the end of the literal prefix. Its full
	// accept set applies here unconditionally: for a literal query this
	// is the exact match; for a pattern query the wildcard covers the
	// zero-length continuation, i.e. the literal prefix itself.
	accumulate(acc, cur.accept)
	if isPattern {
		collectReachable(cur, acc, make(map[*state]bool))
	}

	return r.flatten(acc)
}

// ExpandScopes resolves a set of given scopes: every scope beginning
// with "assume:" is expanded through Query; everything else passes
// through unchanged, per §4.3.1's "non-assume scopes simply pass
// through" contract. The result is the normalized merge of all of it.
func (r *Resolver) ExpandScopes(given []scope.Scope) []scope.Scope {
	var result []scope.Scope
	for _, q := range given {
		if strings.HasPrefix(string(q), scope.AssumePrefix) {
			result = scope.Merge(result, r.Query(q))
		} else {
			result = scope.Merge(result, []scope.Scope{q})
		}
	}
	return result
}

func accumulate(acc map[int]struct{}, idxs []int) {
	for _, idx := range idxs {
		acc[idx] = struct{}{}
	}
}

func collectReachable(s *state, acc map[int]struct{}, visited map[*state]bool) {
	if visited[s] {
		return
	}
	visited[s] = true
	accumulate(acc, s.accept)
	for _, next := range s.transitions {
		collectReachable(next, acc, visited)
	}
	if s.def != nil {
		collectReachable(s.def, acc, visited)
	}
}

func (r *Resolver) flatten(acc map[int]struct{}) []scope.Scope {
	var result []scope.Scope
	for idx := range acc {
		result = scope.Merge(result, r.setTable[idx])
	}
	return result
}
