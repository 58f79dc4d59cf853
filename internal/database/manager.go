// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package database

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Manager owns one connection per environment. Connections are opened
// on first use and shared until Close.
type Manager struct {
	base    Options
	conns   map[string]*Conn
	connsMu sync.RWMutex
}

// NewManager creates a manager that opens connections with base options,
// overriding only the environment
func NewManager(base Options) *Manager {
	return &Manager{
		base:  base,
		conns: make(map[string]*Conn),
	}
}

// Get opens or returns the existing connection for env
func (m *Manager) Get(ctx context.Context, env string) (*Conn, error) {
	// Check cache first
	m.connsMu.RLock()
	if c, ok := m.conns[env]; ok {
		m.connsMu.RUnlock()
		return c, nil
	}
	m.connsMu.RUnlock()

	m.connsMu.Lock()
	defer m.connsMu.Unlock()

	// Double-check after acquiring write lock
	if c, ok := m.conns[env]; ok {
		return c, nil
	}

	opts := m.base
	opts.Environment = env
	c, err := Open(ctx, opts)
	if err != nil {
		return nil, err
	}

	m.conns[env] = c
	return c, nil
}

// CloseEnvironment closes a specific environment's connection
func (m *Manager) CloseEnvironment(env string) error {
	m.connsMu.Lock()
	defer m.connsMu.Unlock()

	if c, ok := m.conns[env]; ok {
		delete(m.conns, env)
		return c.Close()
	}
	return nil
}

// Reopen closes and reopens an environment's connection
func (m *Manager) Reopen(ctx context.Context, env string) (*Conn, error) {
	if err := m.CloseEnvironment(env); err != nil {
		return nil, err
	}
	return m.Get(ctx, env)
}

// Open returns the environments with an open connection
func (m *Manager) Open() []string {
	m.connsMu.RLock()
	defer m.connsMu.RUnlock()

	envs := make([]string, 0, len(m.conns))
	for env := range m.conns {
		envs = append(envs, env)
	}
	sort.Strings(envs)
	return envs
}

// Close closes every connection
func (m *Manager) Close() error {
	m.connsMu.Lock()
	defer m.connsMu.Unlock()

	var errList []error
	for env, c := range m.conns {
		if err := c.Close(); err != nil {
			errList = append(errList, err)
		}
		delete(m.conns, env)
	}
	return errors.Join(errList...)
}
