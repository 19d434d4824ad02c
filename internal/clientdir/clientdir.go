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

// Package clientdir is a concurrency-safe, in-memory reference
// implementation of signature.ClientLoader: a directory of HAWK
// credentials and the raw scopes each client presents to the role
// resolver.
package clientdir

import (
	"fmt"
	"sync"

	"github.com/scopekeeper/scopekeeper/internal/signature"
)

// Directory is a hot-swappable map of client id to client record,
// guarded by a RWMutex. Replace builds the new map before taking the
// lock, so a concurrent reload blocks lookups only for the swap itself.
type Directory struct {
	mu      sync.RWMutex
	clients map[string]*signature.Client
}

// New returns an empty directory.
func New() *Directory {
	return &Directory{clients: make(map[string]*signature.Client)}
}

// Load implements signature.ClientLoader.
func (d *Directory) Load(clientID string) (*signature.Client, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("clientdir: unknown client %q", clientID)
	}
	return c, nil
}

// Put inserts or replaces a client record.
func (d *Directory) Put(c *signature.Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients[c.ID] = c
}

// Delete removes a client record, if present.
func (d *Directory) Delete(clientID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.clients, clientID)
}

// Replace atomically swaps the entire client set, used when reloading
// the client directory from its backing file.
func (d *Directory) Replace(clients []*signature.Client) {
	next := make(map[string]*signature.Client, len(clients))
	for _, c := range clients {
		next[c.ID] = c
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients = next
}

// Len reports how many clients the directory currently holds.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.clients)
}
