package resolver_test

import (
	"fmt"
	"testing"

	"github.com/scopekeeper/scopekeeper/internal/resolver"
	"github.com/scopekeeper/scopekeeper/internal/role"
	"github.com/scopekeeper/scopekeeper/internal/scope"
)

func ss(strs ...string) []scope.Scope {
	out := make([]scope.Scope, len(strs))
	for i, s := range strs {
		out[i] = scope.Scope(s)
	}
	return out
}

func closedRoles(t *testing.T, raw []role.Role) []role.Closed {
	t.Helper()
	table, rejected := role.NewTable(raw)
	if len(rejected) != 0 {
		t.Fatalf("unexpected rejections: %v", rejected)
	}
	return table.Close()
}

func containsAll(got []scope.Scope, want ...string) bool {
	set := make(map[string]bool, len(got))
	for _, s := range got {
		set[string(s)] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}

func TestQueryLiteralMatch(t *testing.T) {
	closed := closedRoles(t, []role.Role{
		{ID: "worker", Scopes: ss("queue:claim:*")},
	})
	r := resolver.Build(closed)

	got := r.Query("assume:worker")
	if !containsAll(got, "queue:claim:*") {
		t.Fatalf("Query(assume:worker) = %v, want queue:claim:*", got)
	}
}

func TestQueryUniversalWildcardRoleMatchesEveryQuery(t *testing.T) {
	closed := closedRoles(t, []role.Role{
		{ID: "*", Scopes: ss("STAR")},
		{ID: "worker", Scopes: ss("queue:claim:*")},
	})
	r := resolver.Build(closed)

	for _, q := range []string{"assume:worker", "assume:anything-else", "assume:"} {
		got := r.Query(scope.Scope(q))
		if !containsAll(got, "STAR") {
			t.Errorf("Query(%q) = %v, want it to contain STAR (role * activates on every assume:)", q, got)
		}
	}
}

func TestQueryPatternUnionsEveryReachableRole(t *testing.T) {
	closed := closedRoles(t, []role.Role{
		{ID: "team-a", Scopes: ss("a-scope")},
		{ID: "team-b", Scopes: ss("b-scope")},
		{ID: "other", Scopes: ss("other-scope")},
	})
	r := resolver.Build(closed)

	got := r.Query("assume:team-*")
	if !containsAll(got, "a-scope", "b-scope") {
		t.Fatalf("Query(assume:team-*) = %v, want both team roles' scopes", got)
	}
	set := make(map[string]bool)
	for _, s := range got {
		set[string(s)] = true
	}
	if set["other-scope"] {
		t.Errorf("Query(assume:team-*) should not reach unrelated role, got %v", got)
	}
}

func TestQueryPrefixPatternRoleMatchesLiteralContinuation(t *testing.T) {
	closed := closedRoles(t, []role.Role{
		{ID: "team-*", Scopes: ss("team-wide-scope")},
	})
	r := resolver.Build(closed)

	got := r.Query("assume:team-anything")
	if !containsAll(got, "team-wide-scope") {
		t.Fatalf("a wildcard role must activate on any matching literal continuation, got %v", got)
	}
}

// TestQueryPatternExcludesStrictLiteralPrefixAncestor is the spec's
// worked example: literal (non-wildcard) roles a, ab, abc chained by
// string-prefix alone. A literal role only ever covers a query equal to
// itself (§4.1 coversOne), so querying "ab*" must reach ab and abc but
// must not pick up a's contribution merely because the walk passes
// through a's state on the way to "ab".
func TestQueryPatternExcludesStrictLiteralPrefixAncestor(t *testing.T) {
	closed := closedRoles(t, []role.Role{
		{ID: "a", Scopes: ss("A")},
		{ID: "ab", Scopes: ss("AB")},
		{ID: "abc", Scopes: ss("ABC")},
	})
	r := resolver.Build(closed)

	got := r.Query("assume:ab*")
	if !sameSet(got, ss("AB", "ABC")) {
		t.Fatalf("Query(assume:ab*) = %v, want exactly [AB ABC] (A excluded)", got)
	}
}

// TestQueryLiteralDoesNotPickUpShorterAncestorRole checks the same
// exclusion for a plain literal query, not just a trailing-wildcard one:
// querying the exact literal "ab" must not also pick up "a"'s scopes.
func TestQueryLiteralDoesNotPickUpShorterAncestorRole(t *testing.T) {
	closed := closedRoles(t, []role.Role{
		{ID: "a", Scopes: ss("A")},
		{ID: "ab", Scopes: ss("AB")},
	})
	r := resolver.Build(closed)

	got := r.Query("assume:ab")
	if !sameSet(got, ss("AB")) {
		t.Fatalf("Query(assume:ab) = %v, want exactly [AB]", got)
	}
}

// TestQueryWildcardAncestorStillAppliesPastItself checks the
// counterpart: unlike a literal role, a wildcard role's contribution
// must still apply to every continuation past it, however deep.
func TestQueryWildcardAncestorStillAppliesPastItself(t *testing.T) {
	closed := closedRoles(t, []role.Role{
		{ID: "a*", Scopes: ss("A-STAR")},
		{ID: "ab", Scopes: ss("AB")},
	})
	r := resolver.Build(closed)

	got := r.Query("assume:abc")
	if !sameSet(got, ss("A-STAR")) {
		t.Fatalf("Query(assume:abc) = %v, want [A-STAR] (wildcard still applies, ab's literal does not match)", got)
	}

	got = r.Query("assume:ab")
	if !sameSet(got, ss("A-STAR", "AB")) {
		t.Fatalf("Query(assume:ab) = %v, want [A-STAR AB]", got)
	}
}

func TestExpandScopesPassesThroughNonAssumeScopes(t *testing.T) {
	closed := closedRoles(t, []role.Role{
		{ID: "worker", Scopes: ss("queue:claim:*")},
	})
	r := resolver.Build(closed)

	got := r.ExpandScopes(ss("assume:worker", "literal:scope"))
	if !containsAll(got, "queue:claim:*", "literal:scope") {
		t.Fatalf("ExpandScopes = %v, want both the expansion and the literal passthrough", got)
	}
}

func TestBuildOnEmptyRoleSetAnswersEmpty(t *testing.T) {
	r := resolver.Build(nil)
	got := r.Query("assume:anything")
	if len(got) != 0 {
		t.Fatalf("Query against an empty resolver = %v, want empty", got)
	}
}

func TestRegistrySwapIsVisibleToSubsequentLoads(t *testing.T) {
	first := resolver.Build(closedRoles(t, []role.Role{{ID: "a", Scopes: ss("A")}}))
	second := resolver.Build(closedRoles(t, []role.Role{{ID: "a", Scopes: ss("B")}}))

	reg := resolver.NewRegistry(first)
	if got := reg.Load().Query("assume:a"); !containsAll(got, "A") {
		t.Fatalf("expected initial resolver, got %v", got)
	}

	reg.Swap(second)
	if got := reg.Load().Query("assume:a"); !containsAll(got, "B") {
		t.Fatalf("expected swapped resolver, got %v", got)
	}
}

// TestDifferentialAgainstNaiveScan directly checks the property that the
// compiled DFA's answer for any query equals the union produced by
// scanning every role and unioning the scopes of those whose activation
// pattern intersects the query.
func TestDifferentialAgainstNaiveScan(t *testing.T) {
	raw := []role.Role{
		{ID: "*", Scopes: ss("star-scope")},
		{ID: "admin-*", Scopes: ss("admin:all")},
		{ID: "admin-root", Scopes: ss("admin:root-only")},
		{ID: "worker-1", Scopes: ss("queue:claim:1")},
		{ID: "worker-2", Scopes: ss("queue:claim:2")},
		{ID: "assume:nested", Scopes: ss("nested-literal")},
		{ID: "ch", Scopes: ss("chain-a")},
		{ID: "chx", Scopes: ss("chain-ab")},
		{ID: "chxy", Scopes: ss("chain-abc")},
	}
	closed := closedRoles(t, raw)
	r := resolver.Build(closed)

	queries := []scope.Scope{
		"assume:worker-1",
		"assume:worker-2",
		"assume:worker-*",
		"assume:admin-root",
		"assume:admin-other",
		"assume:admin-*",
		"assume:unmatched-anything",
		"assume:",
		"assume:*",
		"literal:passthrough",
		"assume:ch",
		"assume:chx",
		"assume:chx*",
		"assume:chxy",
	}

	for _, q := range queries {
		got := r.Query(q)
		want := resolver.NaiveQuery(closed, q)
		if !sameSet(got, want) {
			t.Errorf("Query(%q) = %v, naive = %v", q, got, want)
		}
	}
}

func TestDifferentialLongChain(t *testing.T) {
	const n = 200
	raw := make([]role.Role, 0, n+1)
	for i := 0; i < n; i++ {
		raw = append(raw, role.Role{
			ID:     scope.Scope(fmt.Sprintf("ch-%d", i)),
			Scopes: ss(fmt.Sprintf("assume:ch-%d", i+1)),
		})
	}
	raw = append(raw, role.Role{ID: scope.Scope(fmt.Sprintf("ch-%d", n)), Scopes: ss("terminal-scope")})
	closed := closedRoles(t, raw)
	r := resolver.Build(closed)

	got := r.Query("assume:ch-0")
	want := resolver.NaiveQuery(closed, "assume:ch-0")
	if !sameSet(got, want) {
		t.Fatalf("Query(assume:ch-0) = %v, naive = %v", got, want)
	}
	if !containsAll(got, "terminal-scope") {
		t.Errorf("expected chain closure to reach terminal-scope, got %v", got)
	}
}

func sameSet(a, b []scope.Scope) bool {
	if len(a) != len(b) {
		return false
	}
	sa := make(map[scope.Scope]bool, len(a))
	for _, s := range a {
		sa[s] = true
	}
	for _, s := range b {
		if !sa[s] {
			return false
		}
	}
	return true
}
