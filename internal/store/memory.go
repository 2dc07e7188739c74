package store

import (
	"context"
	"sync"

	"whatsapp-proxybot/internal/errs"
	"whatsapp-proxybot/internal/member"
)

// Memory is an in-process member.Store with the same uniqueness rules as
// SQLite. It is used by tests and dry runs.
type Memory struct {
	mu      sync.RWMutex
	byOwner map[string][]member.Member
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{byOwner: map[string][]member.Member{}}
}

func (s *Memory) CreateMember(_ context.Context, m member.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.byOwner[m.OwnerID] {
		if nameKey(other.Name) == nameKey(m.Name) {
			return errs.New(errs.NameTaken, "member name already taken")
		}
		if m.ProxyTag != "" && other.ProxyTag == m.ProxyTag {
			return errs.New(errs.ProxyTagTaken, "proxy tag already taken")
		}
	}
	s.byOwner[m.OwnerID] = append(s.byOwner[m.OwnerID], m)
	return nil
}

func (s *Memory) FindByName(_ context.Context, ownerID, name string) (member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexByName(ownerID, name); i >= 0 {
		return s.byOwner[ownerID][i], nil
	}
	return member.Member{}, errs.New(errs.NotFound, "member not found")
}

func (s *Memory) FindByProxyTag(_ context.Context, ownerID, tag string) (member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.byOwner[ownerID] {
		if tag != "" && m.ProxyTag == tag {
			return m, nil
		}
	}
	return member.Member{}, errs.New(errs.NotFound, "member not found")
}

func (s *Memory) ListByOwner(_ context.Context, ownerID string) ([]member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := s.byOwner[ownerID]
	out := make([]member.Member, len(members))
	copy(out, members)
	return out, nil
}

func (s *Memory) UpdateField(_ context.Context, ownerID, name string, field member.Field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexByName(ownerID, name)
	if i < 0 {
		return errs.New(errs.NotFound, "member not found")
	}
	members := s.byOwner[ownerID]
	for j, other := range members {
		if j == i {
			continue
		}
		if field == member.FieldName && nameKey(other.Name) == nameKey(value) {
			return errs.New(errs.NameTaken, "member name already taken")
		}
		if field == member.FieldProxyTag && value != "" && other.ProxyTag == value {
			return errs.New(errs.ProxyTagTaken, "proxy tag already taken")
		}
	}
	m := &members[i]
	switch field {
	case member.FieldName:
		m.Name = value
	case member.FieldDisplayName:
		m.DisplayName = value
	case member.FieldProxyTag:
		m.ProxyTag = value
	case member.FieldAvatarURL:
		m.AvatarURL = value
	default:
		return errs.Newf(errs.Internal, "unknown member field %q", string(field))
	}
	return nil
}

func (s *Memory) DeleteByName(_ context.Context, ownerID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexByName(ownerID, name)
	if i < 0 {
		return errs.New(errs.NotFound, "member not found")
	}
	members := s.byOwner[ownerID]
	s.byOwner[ownerID] = append(members[:i:i], members[i+1:]...)
	return nil
}

func (s *Memory) indexByName(ownerID, name string) int {
	key := nameKey(name)
	for i, m := range s.byOwner[ownerID] {
		if nameKey(m.Name) == key {
			return i
		}
	}
	return -1
}

var (
	_ member.Store = (*Memory)(nil)
	_ member.Store = (*SQLite)(nil)
)
