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

// Package role implements the role-expansion engine: it turns a role
// table into closed roles whose scope sets are fixed-point closed under
// activation.
package role

import (
	"errors"
	"fmt"

	"github.com/scopekeeper/scopekeeper/internal/scope"
)

// Domain errors.
var (
	ErrMalformedRoleID = errors.New("role: malformed role id")
	ErrMalformedScope   = errors.New("role: malformed scope")
)

// Role is a named bundle of scopes, activated by "assume:<roleId>".
type Role struct {
	ID     scope.Scope
	Scopes []scope.Scope
}

// Closed is a Role whose Scopes field has been expanded to the
// fixed-point closure: expanding any of its members again yields no new
// scope.
type Closed struct {
	ID     scope.Scope
	Scopes []scope.Scope
}

// ActivationPattern returns the scope that activates the role with the
// given id: "assume:<roleId>".
func ActivationPattern(roleID scope.Scope) scope.Scope {
	return scope.Scope(scope.AssumePrefix + string(roleID))
}

// ClientRoleID returns the synthetic role id a client's own scopes are
// expanded under, per the data model: a client behaves as if it owned a
// role named "client-id:<clientId>".
func ClientRoleID(clientID string) scope.Scope {
	return scope.Scope("client-id:" + clientID)
}

// Rejected describes a role excluded from a Table at load time because
// one of its fields was malformed.
type Rejected struct {
	Role Role
	Err  error
}

// Table is a validated, append/replace collection of roles ready for
// closure and DFA compilation.
type Table struct {
	roles []Role
}

// NewTable validates each raw role and returns a Table containing only
// the well-formed ones, plus a Rejected entry for every role excluded.
// A malformed scope (one containing a newline, or an internal "*") or
// role id never poisons the table — the offending role is simply
// dropped.
func NewTable(raw []Role) (*Table, []Rejected) {
	var rejected []Rejected
	roles := make([]Role, 0, len(raw))
	for _, r := range raw {
		if err := validate(r); err != nil {
			rejected = append(rejected, Rejected{Role: r, Err: err})
			continue
		}
		roles = append(roles, r)
	}
	return &Table{roles: roles}, rejected
}

func validate(r Role) error {
	if !r.ID.Valid() {
		return fmt.Errorf("%w: %q", ErrMalformedRoleID, r.ID)
	}
	for _, s := range r.Scopes {
		if !s.Valid() {
			return fmt.Errorf("%w: %q", ErrMalformedScope, s)
		}
	}
	return nil
}

// Roles returns the table's validated roles. The returned slice must not
// be mutated by callers.
func (t *Table) Roles() []Role {
	return t.roles
}

// WithClient returns a new Table that also contains the synthetic role
// a client's own scopes expand under (ClientRoleID(clientID)). It does
// not mutate the receiver, so the same base role table can be reused to
// expand many clients.
func (t *Table) WithClient(clientID string, scopes []scope.Scope) *Table {
	extended := make([]Role, len(t.roles), len(t.roles)+1)
	copy(extended, t.roles)
	extended = append(extended, Role{ID: ClientRoleID(clientID), Scopes: scopes})
	return &Table{roles: extended}
}
