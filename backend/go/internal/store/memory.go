package store

import (
	"DayPilot/backend/go/internal/models"
	"context"
	"sync"
)

// MemoryKV 是进程内的 KV 实现，用于本地运行和测试。
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV 创建一个空的 MemoryKV。
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[namespace+":"+key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryKV) Set(_ context.Context, namespace, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[namespace+":"+key] = append([]byte(nil), value...)
	return nil
}

// MemoryJournal 是进程内的 Journal 实现。
type MemoryJournal struct {
	mu          sync.Mutex
	executions  []models.AgentRunRecord
	resolutions []models.ResolutionLogEntry
}

// NewMemoryJournal 创建一个空的 MemoryJournal。
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (m *MemoryJournal) AppendExecution(_ context.Context, record models.AgentRunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions = append(m.executions, record)
	return nil
}

func (m *MemoryJournal) AppendResolution(_ context.Context, entry models.ResolutionLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolutions = append(m.resolutions, entry)
	return nil
}

// Executions 返回已写入的执行记录副本。
func (m *MemoryJournal) Executions() []models.AgentRunRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AgentRunRecord(nil), m.executions...)
}

// Resolutions 返回已写入的冲突解决记录副本。
func (m *MemoryJournal) Resolutions() []models.ResolutionLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ResolutionLogEntry(nil), m.resolutions...)
}
