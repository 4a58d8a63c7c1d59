// Package statestore keeps conversation states between updates.
package statestore

import (
	"context"
	"sync"

	"weekly_report_bot/internal/domain/conversation"
)

// Memory is a process-local conversation.Store. States are lost on restart.
type Memory struct {
	mu     sync.RWMutex
	states map[int64]conversation.State
}

func NewMemory() *Memory {
	return &Memory{states: make(map[int64]conversation.State)}
}

func (m *Memory) Get(_ context.Context, userID int64) (conversation.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[userID], nil
}

func (m *Memory) Set(_ context.Context, userID int64, st conversation.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st == nil {
		delete(m.states, userID)
		return nil
	}
	m.states[userID] = st
	return nil
}

func (m *Memory) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, userID)
	return nil
}
