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

// Package resolver compiles a set of closed roles into a character DFA
// that, given a query scope, returns the union of every matching role's
// scope set in O(|query|) time for literal queries.
package resolver

import (
	"sort"
	"strings"
	"sync/atomic"

	"github.com/scopekeeper/scopekeeper/internal/role"
	"github.com/scopekeeper/scopekeeper/internal/scope"
)

// state is one node of the compiled DFA.
//
// accept holds indices into the resolver's shared set table contributed
// by roles that terminate, or begin a wildcard match, at exactly this
// depth: the full set a query covers when it ends exactly here, or when
// a trailing-wildcard query's literal prefix ends here (the wildcard
// covers the zero-length continuation too).
//
// wildcard holds only the cumulative chain of wildcard-at-depth indices
// inherited from the root through this depth. A literal role that
// terminates at this depth can only ever cover a query equal to itself,
// so it must never be counted for a query that merely passes through
// this state on its way to a longer continuation — wildcard is the
// subset of accept (plus ancestors') safe to union unconditionally
// while a walk is still mid-flight.
type state struct {
	accept      []int
	wildcard    []int
	transitions map[byte]*state
	def         *state // fallback for characters with no explicit transition
}

// deadState is the shared sink for branches with no applicable role and
// no inherited wildcard: it contributes nothing and loops to itself.
var deadState = &state{}

func init() {
	deadState.def = deadState
}

func (s *state) step(c byte) *state {
	if s.transitions != nil {
		if next, ok := s.transitions[c]; ok {
			return next
		}
	}
	if s.def != nil {
		return s.def
	}
	return deadState
}

// Resolver is the compiled, read-only lookup function described in the
// data model: a pure function from query scope to normalized expanded
// scope set, safe to share across any number of concurrent readers.
type Resolver struct {
	root     *state
	setTable [][]scope.Scope
}

// entry is a role reduced to the string a query actually walks: its
// activation pattern ("assume:<roleId>"), paired with the scopes it
// contributes on activation.
type entry struct {
	key    string
	scopes []scope.Scope
}

// Build compiles a resolver from a list of closed roles. Roles are keyed
// by their activation pattern (queries are always "assume:<roleId>"
// scopes) and sorted into canonical DFA-generation order: scope.Compare
// applied to those keys produces exactly the order described in
// §4.3.2 — wildcard-at-depth sorts first, then the terminating role,
// then longer continuations lexicographically — before the recursive
// state construction in build.
func Build(roles []role.Closed) *Resolver {
	entries := make([]entry, len(roles))
	for i, r := range roles {
		entries[i] = entry{key: string(role.ActivationPattern(r.ID)), scopes: r.Scopes}
	}
	sort.Slice(entries, func(i, j int) bool {
		return scope.Less(scope.Scope(entries[i].key), scope.Scope(entries[j].key))
	})

	b := &builder{setIndex: make(map[string]int)}
	var root *state
	if len(entries) == 0 {
		root = deadState
	} else {
		root = b.build(entries, 0, len(entries), 0, nil)
	}
	return &Resolver{root: root, setTable: b.setTable}
}

type builder struct {
	setIndex map[string]int
	setTable [][]scope.Scope
}

// intern returns the shared set-table index for scopes, allocating a new
// entry only the first time a structurally distinct set is seen. scopes
// must already be normalized and sorted (role.Closed.Scopes are).
func (b *builder) intern(scopes []scope.Scope) int {
	key := setKey(scopes)
	if idx, ok := b.setIndex[key]; ok {
		return idx
	}
	idx := len(b.setTable)
	b.setTable = append(b.setTable, scopes)
	b.setIndex[key] = idx
	return idx
}

func setKey(scopes []scope.Scope) string {
	var sb strings.Builder
	for _, s := range scopes {
		sb.WriteString(string(s))
		sb.WriteByte(0)
	}
	return sb.String()
}

// build constructs the state for the window roles[lo:hi] at character
// depth d, per §4.3.3: leading wildcard-at-depth and terminal roles
// contribute to this state's accept set (and, for wildcards, to the
// inherited set threaded to every descendant); the remainder is
// partitioned by the next character into child states.
func (b *builder) build(entries []entry, lo, hi, d int, inherited []int) *state {
	p := lo
	var ownAccept []int
	newInherited := append([]int(nil), inherited...)

	for p < hi && len(entries[p].key) == d+1 && entries[p].key[d] == '*' {
		idx := b.intern(entries[p].scopes)
		ownAccept = append(ownAccept, idx)
		newInherited = append(newInherited, idx)
		p++
	}
	for p < hi && len(entries[p].key) == d {
		idx := b.intern(entries[p].scopes)
		ownAccept = append(ownAccept, idx)
		p++
	}

	st := &state{accept: ownAccept, wildcard: newInherited}
	if p == hi {
		st.def = b.sink(newInherited)
		return st
	}

	st.transitions = make(map[byte]*state)
	for p < hi {
		c := entries[p].key[d]
		start := p
		for p < hi && entries[p].key[d] == c {
			p++
		}
		st.transitions[c] = b.build(entries, start, p, d+1, newInherited)
	}
	st.def = b.sink(newInherited)
	return st
}

// sink builds the default-transition target for characters with no
// explicit child: a dead state when no wildcard is in scope, or a
// self-looping fallback that carries the inherited wildcard set so that
// every subsequent character on this branch still reports it.
func (b *builder) sink(inherited []int) *state {
	if len(inherited) == 0 {
		return deadState
	}
	chain := append([]int(nil), inherited...)
	fallback := &state{accept: chain, wildcard: chain}
	fallback.def = fallback
	return fallback
}

// Registry is the single atomically-swappable reference to the active
// resolver described in §5: readers in flight keep their captured
// resolver across a background rebuild-and-swap.
type Registry struct {
	ptr atomic.Pointer[Resolver]
}

// NewRegistry creates a registry holding r as the initial resolver.
func NewRegistry(r *Resolver) *Registry {
	reg := &Registry{}
	reg.ptr.Store(r)
	return reg
}

// Swap atomically installs r as the active resolver.
func (reg *Registry) Swap(r *Resolver) {
	reg.ptr.Store(r)
}

// Load returns the currently active resolver.
func (reg *Registry) Load() *Resolver {
	return reg.ptr.Load()
}
