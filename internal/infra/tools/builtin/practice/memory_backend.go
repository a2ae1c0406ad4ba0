package practice

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"counsel/internal/domain/agent/ports"
	id "counsel/internal/shared/utils/id"
)

// MemoryBackend keeps practice data in process memory.
type MemoryBackend struct {
	mu      sync.RWMutex
	matters map[string]Matter
	entries []TimeEntry
	now     func() time.Time
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		matters: make(map[string]Matter),
		now:     time.Now,
	}
}

func (b *MemoryBackend) FindMatters(_ context.Context, identity ports.Identity, query string, limit int) ([]Matter, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Matter, 0)
	for _, m := range b.matters {
		if m.TenantID != identity.TenantID {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(m.Title), query) &&
			!strings.Contains(strings.ToLower(m.ClientName), query) &&
			m.ID != query {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b *MemoryBackend) CreateMatter(_ context.Context, identity ports.Identity, input MatterInput) (Matter, error) {
	title := strings.TrimSpace(input.Title)
	client := strings.TrimSpace(input.ClientName)
	if title == "" || client == "" {
		return Matter{}, fmt.Errorf("title and client_name are required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.matters {
		if m.TenantID == identity.TenantID && strings.EqualFold(m.Title, title) && strings.EqualFold(m.ClientName, client) {
			return Matter{}, fmt.Errorf("matter %q for %s already exists as %s", title, client, m.ID)
		}
	}
	m := Matter{
		ID:          "mat_" + id.NewKSUID(),
		TenantID:    identity.TenantID,
		Title:       title,
		ClientName:  client,
		Description: strings.TrimSpace(input.Description),
		Status:      "open",
		CreatedBy:   identity.OwnerID,
		CreatedAt:   b.now(),
	}
	b.matters[m.ID] = m
	return m, nil
}

func (b *MemoryBackend) LogTime(_ context.Context, identity ports.Identity, input TimeEntryInput) (TimeEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.matters[input.MatterID]
	if !ok || m.TenantID != identity.TenantID {
		return TimeEntry{}, fmt.Errorf("%w: %s", ErrMatterNotFound, input.MatterID)
	}
	entry := TimeEntry{
		ID:          "te_" + id.NewKSUID(),
		MatterID:    m.ID,
		Hours:       input.Hours,
		Description: input.Description,
		Date:        input.Date,
		Billable:    input.Billable,
		RecordedBy:  identity.OwnerID,
		CreatedAt:   b.now(),
	}
	b.entries = append(b.entries, entry)
	return entry, nil
}

func (b *MemoryBackend) ListTimeEntries(_ context.Context, identity ports.Identity, matterID string, limit int) ([]TimeEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.matters[matterID]
	if !ok || m.TenantID != identity.TenantID {
		return nil, fmt.Errorf("%w: %s", ErrMatterNotFound, matterID)
	}
	out := make([]TimeEntry, 0)
	for i := len(b.entries) - 1; i >= 0; i-- {
		if b.entries[i].MatterID == matterID {
			out = append(out, b.entries[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
