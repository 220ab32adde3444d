package storage

import (
	"sync"
	"time"
)

// EngineHealth is the last known outcome of an engine's writes
type EngineHealth struct {
	LastSuccess   time.Time
	LastFailure   time.Time
	LastError     string
	Stored        int
	Failed        int
	ConsecFailure int
}

// Healthy reports whether the most recent write succeeded.
func (h EngineHealth) Healthy() bool {
	return h.ConsecFailure == 0
}

// HealthManager tracks storage engine health in memory
type HealthManager struct {
	mu     sync.RWMutex
	health map[string]*EngineHealth
}

// GlobalHealthManager is the singleton instance for health management
var GlobalHealthManager = NewHealthManager()

// NewHealthManager creates a new health manager
func NewHealthManager() *HealthManager {
	return &HealthManager{
		health: make(map[string]*EngineHealth),
	}
}

func (hm *HealthManager) entry(name string) *EngineHealth {
	h, ok := hm.health[name]
	if !ok {
		h = &EngineHealth{}
		hm.health[name] = h
	}
	return h
}

// RecordSuccess notes a successful write of the snapshot taken at ts.
func (hm *HealthManager) RecordSuccess(name string, ts time.Time) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	h := hm.entry(name)
	h.LastSuccess = ts
	h.Stored++
	h.ConsecFailure = 0
}

// RecordFailure notes a failed write.
func (hm *HealthManager) RecordFailure(name string, err error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	h := hm.entry(name)
	h.LastFailure = time.Now()
	h.LastError = err.Error()
	h.Failed++
	h.ConsecFailure++
}

// GetHealth retrieves a copy of the health status for an engine
func (hm *HealthManager) GetHealth(name string) (EngineHealth, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	h, exists := hm.health[name]
	if !exists {
		return EngineHealth{}, false
	}
	return *h, true
}

// GetAllHealth retrieves all engine health statuses
func (hm *HealthManager) GetAllHealth() map[string]EngineHealth {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	result := make(map[string]EngineHealth, len(hm.health))
	for k, v := range hm.health {
		result[k] = *v
	}
	return result
}
