// Copyright 2026 The Scopekeeper Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package scope implements the wildcard scope algebra shared by the role
// expander and the DFA resolver: comparison, satisfaction, normalization,
// and the linear merge of already-normalized sets.
package scope

import "strings"

// Scope is a capability string. A scope ending in "*" is a pattern that
// matches every scope sharing its literal prefix; "*" alone matches every
// scope. The "*" may only appear as the final character.
type Scope string

// AssumePrefix is the activation-scope prefix a role reacts to.
const AssumePrefix = "assume:"

// Valid reports whether s is a well-formed scope: non-empty, free of
// newlines and other control characters, with "*" appearing at most once
// and only as the final character.
func (s Scope) Valid() bool {
	str := string(s)
	if len(str) == 0 {
		return false
	}
	for i := 0; i < len(str); i++ {
		c := str[i]
		if c < 0x20 || c == 0x7f {
			return false
		}
		if c == '*' && i != len(str)-1 {
			return false
		}
	}
	return true
}

// IsPattern reports whether s ends in the wildcard terminator.
func (s Scope) IsPattern() bool {
	return strings.HasSuffix(string(s), "*")
}

// prefix returns the literal portion of a scope, stripping a trailing "*"
// if present, and whether it was a pattern.
func (s Scope) prefix() (string, bool) {
	str := string(s)
	if strings.HasSuffix(str, "*") {
		return str[:len(str)-1], true
	}
	return str, false
}

// Compare implements the total order used to sort scope sets and drive
// DFA construction: patterns precede their own matches ("a*" < "a" < "aa"
// < "aab"), and "*" is the minimum element. Character by character, at
// the first differing position "*" (valid only as the final character of
// a pattern) sorts before any other character; if one string is a
// prefix of the other and the longer string's next character is "*",
// the pattern sorts first; otherwise ordinary lexicographic order
// applies.
func Compare(a, b Scope) int {
	as, bs := string(a), string(b)
	n := len(as)
	if len(bs) < n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		ca, cb := as[i], bs[i]
		if ca == cb {
			continue
		}
		if ca == '*' {
			return -1
		}
		if cb == '*' {
			return 1
		}
		if ca < cb {
			return -1
		}
		return 1
	}
	switch {
	case len(as) == len(bs):
		return 0
	case len(as) < len(bs):
		if bs[len(as)] == '*' {
			return 1
		}
		return -1
	default:
		if as[len(bs)] == '*' {
			return -1
		}
		return 1
	}
}

// Less reports whether a sorts before b under Compare.
func Less(a, b Scope) bool {
	return Compare(a, b) < 0
}

// coversOne reports whether the single held scope covers the single
// required scope. A held pattern "p*" covers any required scope whose
// literal form starts with "p". A required pattern "r*" is covered only
// by a held scope that is itself a pattern whose prefix is a prefix of
// "r" (this subsumes "*", which has the empty prefix, and "r*" itself,
// whose prefix equals "r"); a held literal can never cover a required
// pattern.
func coversOne(held, required Scope) bool {
	hp, hIsPattern := held.prefix()
	rp, rIsPattern := required.prefix()
	if !rIsPattern {
		if !hIsPattern {
			return string(held) == string(required)
		}
		return strings.HasPrefix(rp, hp)
	}
	if !hIsPattern {
		return false
	}
	return strings.HasPrefix(rp, hp)
}

// Satisfies reports whether every scope in required is covered by at
// least one scope in held.
func Satisfies(held, required []Scope) bool {
	for _, r := range required {
		ok := false
		for _, h := range held {
			if coversOne(h, r) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// SatisfiesOne reports whether the single scope held covers required. It
// is the primitive Satisfies is built from, and is reused directly by
// the role expander's activation check.
func SatisfiesOne(held, required Scope) bool {
	return coversOne(held, required)
}

// Intersects reports whether the scope patterns a and b admit any scope
// in common. Equal literal prefixes always intersect; beyond that, only
// the shorter prefix being an actual pattern lets it reach past its own
// length into the longer one — a literal that merely happens to be a
// string-prefix of a longer scope does not intersect it, since a held
// literal only ever covers a scope identical to itself (coversOne).
func Intersects(a, b Scope) bool {
	ap, aIsPattern := a.prefix()
	bp, bIsPattern := b.prefix()
	if ap == bp {
		return true
	}
	if len(ap) < len(bp) {
		return aIsPattern && strings.HasPrefix(bp, ap)
	}
	if len(bp) < len(ap) {
		return bIsPattern && strings.HasPrefix(ap, bp)
	}
	return false
}

// Normalize removes any scope covered by a different scope in the same
// set and returns the remaining scopes sorted by Compare: the unique
// normal form of the set.
func Normalize(scopes []Scope) []Scope {
	seen := make(map[Scope]struct{}, len(scopes))
	uniq := make([]Scope, 0, len(scopes))
	for _, s := range scopes {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		uniq = append(uniq, s)
	}

	result := make([]Scope, 0, len(uniq))
	for i, s := range uniq {
		covered := false
		for j, t := range uniq {
			if i == j {
				continue
			}
			if coversOne(t, s) {
				covered = true
				break
			}
		}
		if !covered {
			result = append(result, s)
		}
	}

	sortScopes(result)
	return result
}

func sortScopes(scopes []Scope) {
	// Insertion sort is adequate: normalize() is not the hot path (Merge
	// is), and role/client scope lists are small.
	for i := 1; i < len(scopes); i++ {
		for j := i; j > 0 && Less(scopes[j], scopes[j-1]); j-- {
			scopes[j], scopes[j-1] = scopes[j-1], scopes[j]
		}
	}
}

// Merge produces the normalized union of a and b in a single linear
// pass. Both inputs must already be sorted by Compare and in normal
// form; the result is too. At equal keys one copy is kept; a scope
// covered by a wildcard emitted earlier in the pass is dropped.
func Merge(a, b []Scope) []Scope {
	out := make([]Scope, 0, len(a)+len(b))
	activePrefix := ""
	haveActive := false

	emit := func(s Scope) {
		if haveActive {
			if strings.HasPrefix(string(s), activePrefix) {
				return
			}
			haveActive = false
		}
		out = append(out, s)
		if p, isPattern := s.prefix(); isPattern {
			activePrefix = p
			haveActive = true
		}
	}

	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			emit(a[i])
			i++
			j++
		case Less(a[i], b[j]):
			emit(a[i])
			i++
		default:
			emit(b[j])
			j++
		}
	}
	for ; i < len(a); i++ {
		emit(a[i])
	}
	for ; j < len(b); j++ {
		emit(b[j])
	}
	return out
}
