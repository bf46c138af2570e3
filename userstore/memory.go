package userstore

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store. It backs tests and single-node
// deployments without a database.
type Memory struct {
	mu         sync.RWMutex
	records    map[string]*Record
	byEmail    map[string]string
	byIdentity map[string]string
	now        func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records:    make(map[string]*Record),
		byEmail:    make(map[string]string),
		byIdentity: make(map[string]string),
		now:        time.Now,
	}
}

func (m *Memory) Create(_ context.Context, record *Record) (*Record, error) {
	if record == nil || record.ID == "" {
		return nil, ErrInvalidRecord
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[record.ID]; ok {
		return nil, ErrDuplicateID
	}
	if record.Email != "" {
		if _, ok := m.byEmail[record.Email]; ok {
			return nil, ErrDuplicateEmail
		}
	}
	if record.OpenID != nil {
		if _, ok := m.byIdentity[IdentityKey(record.OpenID.Provider, record.OpenID.Subject)]; ok {
			return nil, ErrDuplicateIdentity
		}
	}

	stored := record.Clone()
	now := m.now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.index(stored)
	m.records[stored.ID] = stored

	return stored.Clone(), nil
}

func (m *Memory) GetByID(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *Memory) GetOneByField(_ context.Context, field Field, value string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		id string
		ok bool
	)
	switch field {
	case FieldEmail:
		id, ok = m.byEmail[value]
	case FieldOpenID:
		id, ok = m.byIdentity[value]
	default:
		return nil, ErrUnsupportedField
	}
	if !ok {
		return nil, ErrNotFound
	}
	return m.records[id].Clone(), nil
}

func (m *Memory) UpdateByID(_ context.Context, id string, update Update) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}

	next := current.Clone()
	update.Apply(next)

	if next.Email != current.Email && next.Email != "" {
		if owner, taken := m.byEmail[next.Email]; taken && owner != id {
			return nil, ErrDuplicateEmail
		}
	}
	if next.OpenID != nil {
		key := IdentityKey(next.OpenID.Provider, next.OpenID.Subject)
		if owner, taken := m.byIdentity[key]; taken && owner != id {
			return nil, ErrDuplicateIdentity
		}
	}

	m.unindex(current)
	next.UpdatedAt = m.now()
	m.index(next)
	m.records[id] = next

	return next.Clone(), nil
}

func (m *Memory) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	m.unindex(current)
	delete(m.records, id)
	return nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *Memory) index(r *Record) {
	if r.Email != "" {
		m.byEmail[r.Email] = r.ID
	}
	if r.OpenID != nil {
		m.byIdentity[IdentityKey(r.OpenID.Provider, r.OpenID.Subject)] = r.ID
	}
}

func (m *Memory) unindex(r *Record) {
	if r.Email != "" && m.byEmail[r.Email] == r.ID {
		delete(m.byEmail, r.Email)
	}
	if r.OpenID != nil {
		key := IdentityKey(r.OpenID.Provider, r.OpenID.Subject)
		if m.byIdentity[key] == r.ID {
			delete(m.byIdentity, key)
		}
	}
}
