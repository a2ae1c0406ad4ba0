package practice

import (
	"context"
	"testing"
	"time"

	"counsel/internal/app/toolregistry"
	"counsel/internal/domain/agent/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = ports.Identity{OwnerID: "alice", TenantID: "firm-a"}
	bob   = ports.Identity{OwnerID: "bob", TenantID: "firm-b"}
)

func newRegistry(t *testing.T) *toolregistry.Registry {
	t.Helper()
	r := toolregistry.NewRegistry()
	require.NoError(t, r.RegisterAll(Tools(NewMemoryBackend())...))
	return r
}

func dispatch(t *testing.T, r *toolregistry.Registry, identity ports.Identity, name string, args map[string]any) ports.DomainResult {
	t.Helper()
	outcome := r.Dispatch(context.Background(), ports.ToolCall{ID: "c", Name: name, Arguments: args}, identity)
	result, ok := outcome.(ports.DomainResult)
	require.True(t, ok, "unexpected outcome %T", outcome)
	return result
}

func TestCreateMatterLogAndListTime(t *testing.T) {
	r := newRegistry(t)

	created := dispatch(t, r, alice, "create_matter", map[string]any{"title": "Lease review", "client_name": "Acme"})
	require.False(t, created.Failed(), created.Err)
	matter := created.Payload.(Matter)
	assert.Equal(t, "open", matter.Status)
	assert.Equal(t, "alice", matter.CreatedBy)

	logged := dispatch(t, r, alice, "log_time", map[string]any{
		"matter_id":   matter.ID,
		"hours":       2.04,
		"description": "Reviewed lease",
		"date":        "2026-10-01",
	})
	require.False(t, logged.Failed(), logged.Err)
	entry := logged.Payload.(TimeEntry)
	assert.Equal(t, 2.0, entry.Hours)
	assert.True(t, entry.Billable)
	assert.Equal(t, "2026-10-01", entry.Date)

	listed := dispatch(t, r, alice, "list_time_entries", map[string]any{"matter_id": matter.ID})
	require.False(t, listed.Failed(), listed.Err)
	payload := listed.Payload.(map[string]any)
	assert.Equal(t, 1, payload["count"])
	assert.Equal(t, 2.0, payload["total_hours"])

	found := dispatch(t, r, alice, "find_matter", map[string]any{"query": "acme"})
	assert.Equal(t, 1, found.Payload.(map[string]any)["count"])
}

func TestPracticeToolsRejectBadInput(t *testing.T) {
	r := newRegistry(t)
	matter := dispatch(t, r, alice, "create_matter", map[string]any{"title": "Audit", "client_name": "Globex"}).Payload.(Matter)

	tests := []struct {
		name string
		tool string
		args map[string]any
		want string
	}{
		{"duplicate matter", "create_matter", map[string]any{"title": "audit", "client_name": "GLOBEX"}, "already exists"},
		{"zero hours", "log_time", map[string]any{"matter_id": matter.ID, "hours": 0.0, "description": "x"}, "hours must be"},
		{"too many hours", "log_time", map[string]any{"matter_id": matter.ID, "hours": 25.0, "description": "x"}, "hours must be"},
		{"bad date", "log_time", map[string]any{"matter_id": matter.ID, "hours": 1.0, "description": "x", "date": "01/02/2026"}, "YYYY-MM-DD"},
		{"blank description", "log_time", map[string]any{"matter_id": matter.ID, "hours": 1.0, "description": " "}, "description"},
		{"unknown matter", "log_time", map[string]any{"matter_id": "mat_missing", "hours": 1.0, "description": "x"}, "matter not found"},
		{"missing required", "log_time", map[string]any{"hours": 1.0}, "invalid arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := dispatch(t, r, alice, tt.tool, tt.args)
			require.True(t, result.Failed())
			assert.Contains(t, result.Err, tt.want)
		})
	}
}

func TestPracticeDataIsTenantScoped(t *testing.T) {
	r := newRegistry(t)
	matter := dispatch(t, r, alice, "create_matter", map[string]any{"title": "Merger", "client_name": "Initech"}).Payload.(Matter)

	found := dispatch(t, r, bob, "find_matter", map[string]any{})
	assert.Equal(t, 0, found.Payload.(map[string]any)["count"])

	result := dispatch(t, r, bob, "log_time", map[string]any{"matter_id": matter.ID, "hours": 1.0, "description": "x"})
	assert.Contains(t, result.Err, "matter not found")

	result = dispatch(t, r, bob, "list_time_entries", map[string]any{"matter_id": matter.ID})
	assert.Contains(t, result.Err, "matter not found")
}

func TestMemoryBackendOrdersAndLimits(t *testing.T) {
	backend := NewMemoryBackend()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	backend.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	ctx := context.Background()
	for _, title := range []string{"First", "Second", "Third"} {
		_, err := backend.CreateMatter(ctx, alice, MatterInput{Title: title, ClientName: "Acme"})
		require.NoError(t, err)
	}

	matters, err := backend.FindMatters(ctx, alice, "", 2)
	require.NoError(t, err)
	require.Len(t, matters, 2)
	assert.Equal(t, "Third", matters[0].Title)
	assert.Equal(t, "Second", matters[1].Title)

	for i := 0; i < 3; i++ {
		_, err := backend.LogTime(ctx, alice, TimeEntryInput{MatterID: matters[0].ID, Hours: float64(i + 1), Description: "work"})
		require.NoError(t, err)
	}
	entries, err := backend.ListTimeEntries(ctx, alice, matters[0].ID, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 3.0, entries[0].Hours)
}
