package scope_test

import (
	"testing"

	"github.com/scopekeeper/scopekeeper/internal/scope"
)

func TestScopeValid(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"a", true},
		{"a*", true},
		{"*", true},
		{"a*b", false},
		{"a\nb", false},
		{"assume:ch-1", true},
	}
	for _, c := range cases {
		if got := scope.Scope(c.in).Valid(); got != c.want {
			t.Errorf("Scope(%q).Valid() = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestCompareOrdering(t *testing.T) {
	// "a*" < "a" < "aa" < "aab"; "*" is the minimum.
	ordered := []scope.Scope{"*", "a*", "a", "aa", "aab"}
	for i := 0; i < len(ordered)-1; i++ {
		if !scope.Less(ordered[i], ordered[i+1]) {
			t.Errorf("expected %q < %q", ordered[i], ordered[i+1])
		}
	}
	for _, s := range ordered {
		if scope.Compare(s, s) != 0 {
			t.Errorf("Compare(%q, %q) != 0", s, s)
		}
	}
}

func TestSatisfies(t *testing.T) {
	cases := []struct {
		held, required []scope.Scope
		want            bool
	}{
		{[]scope.Scope{"a:*"}, []scope.Scope{"a:b"}, true},
		{[]scope.Scope{"a:b"}, []scope.Scope{"a:*"}, false},
		{[]scope.Scope{"*"}, []scope.Scope{"a:*"}, true},
		{[]scope.Scope{"a:*"}, []scope.Scope{"a:*"}, true},
		{[]scope.Scope{"a:b*"}, []scope.Scope{"a:bc*"}, true},
		{[]scope.Scope{"a:bc*"}, []scope.Scope{"a:b*"}, false},
		{[]scope.Scope{"x"}, []scope.Scope{"y"}, false},
	}
	for _, c := range cases {
		if got := scope.Satisfies(c.held, c.required); got != c.want {
			t.Errorf("Satisfies(%v, %v) = %v, want %v", c.held, c.required, got, c.want)
		}
	}
}

func TestIntersects(t *testing.T) {
	cases := []struct {
		a, b scope.Scope
		want bool
	}{
		// literal prefix chain a/ab/abc: none of these literals are
		// patterns, so a string-prefix relationship alone must not
		// count as intersecting.
		{"a", "ab", false},
		{"ab", "abc", false},
		{"a", "abc", false},
		{"abc", "a", false},
		// a literal only intersects an identical literal.
		{"ab", "ab", true},
		// a pattern reaches past its own length into a longer literal
		// or pattern that shares its prefix.
		{"a*", "ab", true},
		{"a*", "abc", true},
		{"ab*", "a*", true},
		{"a*", "a", true},
		{"*", "anything", true},
		// a pattern does not intersect a literal that diverges before
		// the pattern's prefix ends.
		{"ab*", "ac", false},
	}
	for _, c := range cases {
		if got := scope.Intersects(c.a, c.b); got != c.want {
			t.Errorf("Intersects(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
		if got := scope.Intersects(c.b, c.a); got != c.want {
			t.Errorf("Intersects(%q, %q) = %v, want %v (reversed)", c.b, c.a, got, c.want)
		}
	}
}

func TestNormalizeRemovesCoveredMembers(t *testing.T) {
	in := []scope.Scope{"abc", "ab*", "a", "ab"}
	got := scope.Normalize(in)

	want := map[scope.Scope]bool{"ab*": true, "a": true}
	if len(got) != len(want) {
		t.Fatalf("Normalize(%v) = %v, want members %v", in, got, want)
	}
	for _, s := range got {
		if !want[s] {
			t.Errorf("unexpected member %q in normalized set", s)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	in := []scope.Scope{"q:*", "q:claim-task", "z", "z*", "m:n"}
	once := scope.Normalize(in)
	twice := scope.Normalize(once)
	if len(once) != len(twice) {
		t.Fatalf("normalize not idempotent: %v vs %v", once, twice)
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Fatalf("normalize not idempotent: %v vs %v", once, twice)
		}
	}
}

func TestMergeCommutative(t *testing.T) {
	a := scope.Normalize([]scope.Scope{"a:*", "c:d"})
	b := scope.Normalize([]scope.Scope{"a:b", "e:f", "c:*"})

	ab := scope.Merge(a, b)
	ba := scope.Merge(b, a)

	if len(ab) != len(ba) {
		t.Fatalf("Merge not commutative: %v vs %v", ab, ba)
	}
	for i := range ab {
		if ab[i] != ba[i] {
			t.Fatalf("Merge not commutative: %v vs %v", ab, ba)
		}
	}
}

func TestMergeDropsWildcardCoveredMembers(t *testing.T) {
	a := []scope.Scope{"a:*"}
	b := []scope.Scope{"a:b", "a:c", "d:e"}

	got := scope.Merge(a, b)
	want := []scope.Scope{"a:*", "d:e"}
	if len(got) != len(want) {
		t.Fatalf("Merge(%v, %v) = %v, want %v", a, b, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Merge(%v, %v) = %v, want %v", a, b, got, want)
		}
	}
}

func TestMergeOfNormalizedSetsStaysNormalized(t *testing.T) {
	a := scope.Normalize([]scope.Scope{"x:*", "y:1"})
	b := scope.Normalize([]scope.Scope{"x:2", "y:*"})

	merged := scope.Merge(a, b)
	renormalized := scope.Normalize(merged)

	if len(merged) != len(renormalized) {
		t.Fatalf("Merge result not already normalized: %v vs %v", merged, renormalized)
	}
}
