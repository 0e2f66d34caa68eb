// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/insights-engine/insights"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keys records and unlocks by their natural keys, so the maps
// themselves are the uniqueness constraint.
type Memory struct {
	mu       sync.RWMutex
	clients  map[insights.ClientID]insights.Client
	records  map[recordKey]insights.PeriodRecord
	unlocks  map[unlockKey]insights.AchievementUnlock
	failNext map[insights.AchievementCode]error
}

type recordKey struct {
	ClientID insights.ClientID
	Period   insights.Period
}

type unlockKey struct {
	ClientID insights.ClientID
	Code     insights.AchievementCode
}

func NewMemory() *Memory {
	return &Memory{
		clients:  make(map[insights.ClientID]insights.Client),
		records:  make(map[recordKey]insights.PeriodRecord),
		unlocks:  make(map[unlockKey]insights.AchievementUnlock),
		failNext: make(map[insights.AchievementCode]error),
	}
}

// SaveClient provisions a client. Stands in for the external admin surface.
func (m *Memory) SaveClient(_ context.Context, c insights.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.ID] = c
	return nil
}

func (m *Memory) GetClient(_ context.Context, id insights.ClientID) (*insights.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, insights.ErrClientNotFound
	}
	return &c, nil
}

func (m *Memory) RecordExists(_ context.Context, clientID insights.ClientID, period insights.Period) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[recordKey{ClientID: clientID, Period: period}]
	return ok, nil
}

// CreateRecord checks and inserts under one lock.
func (m *Memory) CreateRecord(_ context.Context, rec insights.PeriodRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := recordKey{ClientID: rec.ClientID, Period: rec.Period}
	if _, ok := m.records[k]; ok {
		return insights.ErrDuplicateSubmission
	}
	m.records[k] = rec
	return nil
}

// History returns records most recent first.
func (m *Memory) History(_ context.Context, clientID insights.ClientID) ([]insights.PeriodRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []insights.PeriodRecord
	for k, r := range m.records {
		if k.ClientID == clientID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[j].Period.Before(out[i].Period)
	})
	return out, nil
}

func (m *Memory) UnlockedCodes(_ context.Context, clientID insights.ClientID) (map[insights.AchievementCode]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	codes := make(map[insights.AchievementCode]bool)
	for k := range m.unlocks {
		if k.ClientID == clientID {
			codes[k.Code] = true
		}
	}
	return codes, nil
}

// Award inserts the unlock and credits points together, or does neither.
func (m *Memory) Award(_ context.Context, unlock insights.AchievementUnlock, points int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.failNext[unlock.Code]; ok {
		delete(m.failNext, unlock.Code)
		return err
	}

	k := unlockKey{ClientID: unlock.ClientID, Code: unlock.Code}
	if _, ok := m.unlocks[k]; ok {
		return insights.ErrAlreadyUnlocked
	}
	c, ok := m.clients[unlock.ClientID]
	if !ok {
		return insights.ErrClientNotFound
	}
	m.unlocks[k] = unlock
	c.TotalPoints += points
	m.clients[unlock.ClientID] = c
	return nil
}

// Unlocks returns the client's unlocks, newest first.
func (m *Memory) Unlocks(_ context.Context, clientID insights.ClientID) ([]insights.AchievementUnlock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []insights.AchievementUnlock
	for k, u := range m.unlocks {
		if k.ClientID == clientID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UnlockedAt.After(out[j].UnlockedAt)
	})
	return out, nil
}

// FailNextAward makes the next Award for code return err. Test hook.
func (m *Memory) FailNextAward(code insights.AchievementCode, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext[code] = err
}
