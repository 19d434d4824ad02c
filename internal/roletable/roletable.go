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

// Package roletable loads the on-disk YAML representation of a role
// table and client directory into the types internal/role and
// internal/signature operate on.
package roletable

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scopekeeper/scopekeeper/internal/role"
	"github.com/scopekeeper/scopekeeper/internal/scope"
	"github.com/scopekeeper/scopekeeper/internal/signature"
)

// File is the top-level shape of a role table file: a list of roles and
// a list of clients, each with their own raw scopes.
type File struct {
	RoleEntries   []roleEntry   `yaml:"roles"`
	ClientEntries []clientEntry `yaml:"clients"`
}

type roleEntry struct {
	ID     string   `yaml:"id"`
	Scopes []string `yaml:"scopes"`
}

type clientEntry struct {
	ID          string   `yaml:"id"`
	AccessToken string   `yaml:"accessToken"`
	Scopes      []string `yaml:"scopes"`
}

// Load reads and parses a role table file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("roletable: reading %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("roletable: parsing %s: %w", path, err)
	}
	return &f, nil
}

// Roles converts the file's role entries into role.Role values, ready
// for role.NewTable.
func (f *File) Roles() []role.Role {
	out := make([]role.Role, len(f.RoleEntries))
	for i, r := range f.RoleEntries {
		out[i] = role.Role{ID: scope.Scope(r.ID), Scopes: toScopes(r.Scopes)}
	}
	return out
}

// Clients converts the file's client entries into signature.Client
// values, ready for a clientdir.Directory.
func (f *File) Clients() []*signature.Client {
	out := make([]*signature.Client, len(f.ClientEntries))
	for i, c := range f.ClientEntries {
		out[i] = &signature.Client{ID: c.ID, AccessToken: c.AccessToken, Scopes: toScopes(c.Scopes)}
	}
	return out
}

func toScopes(strs []string) []scope.Scope {
	out := make([]scope.Scope, len(strs))
	for i, s := range strs {
		out[i] = scope.Scope(s)
	}
	return out
}
