package practice

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"counsel/internal/domain/agent/ports"
)

const (
	defaultListLimit = 10
	maxListLimit     = 50
	maxHoursPerEntry = 24
	dateLayout       = "2006-01-02"
)

// Tools returns the practice tools bound to backend.
func Tools(backend Backend) []ports.Tool {
	h := &handlers{backend: backend, now: time.Now}
	return []ports.Tool{
		{
			Definition: ports.ToolDefinition{
				Name:        "find_matter",
				Description: "Search the caller's matters by title, client name or matter id. Returns the newest matches first.",
				Parameters: ports.ParameterSchema{
					Type: "object",
					Properties: map[string]ports.Property{
						"query": {Type: "string", Description: "Text to match against title, client name or id. Empty lists recent matters."},
						"limit": {Type: "integer", Description: "Maximum results (default 10, max 50)."},
					},
				},
			},
			Handler: h.findMatter,
		},
		{
			Definition: ports.ToolDefinition{
				Name:        "create_matter",
				Description: "Open a new matter for a client. Fails if the same title already exists for that client.",
				Parameters: ports.ParameterSchema{
					Type: "object",
					Properties: map[string]ports.Property{
						"title":       {Type: "string", Description: "Matter title."},
						"client_name": {Type: "string", Description: "Client the matter is for."},
						"description": {Type: "string", Description: "Optional scope notes."},
					},
					Required: []string{"title", "client_name"},
				},
			},
			Handler: h.createMatter,
		},
		{
			Definition: ports.ToolDefinition{
				Name:        "log_time",
				Description: "Record hours worked on a matter.",
				Parameters: ports.ParameterSchema{
					Type: "object",
					Properties: map[string]ports.Property{
						"matter_id":   {Type: "string", Description: "Matter to bill against."},
						"hours":       {Type: "number", Description: "Hours worked, greater than 0 and at most 24. Rounded to one decimal."},
						"description": {Type: "string", Description: "What the work was."},
						"date":        {Type: "string", Description: "Work date as YYYY-MM-DD. Defaults to today."},
						"billable":    {Type: "boolean", Description: "Whether the time is billable (default true)."},
					},
					Required: []string{"matter_id", "hours", "description"},
				},
			},
			Handler: h.logTime,
		},
		{
			Definition: ports.ToolDefinition{
				Name:        "list_time_entries",
				Description: "List the most recent time entries recorded on a matter.",
				Parameters: ports.ParameterSchema{
					Type: "object",
					Properties: map[string]ports.Property{
						"matter_id": {Type: "string", Description: "Matter to list."},
						"limit":     {Type: "integer", Description: "Maximum results (default 10, max 50)."},
					},
					Required: []string{"matter_id"},
				},
			},
			Handler: h.listTimeEntries,
		},
	}
}

type handlers struct {
	backend Backend
	now     func() time.Time
}

func (h *handlers) findMatter(ctx context.Context, args map[string]any, identity ports.Identity) (any, error) {
	matters, err := h.backend.FindMatters(ctx, identity, stringArg(args, "query"), limitArg(args))
	if err != nil {
		return nil, err
	}
	return map[string]any{"matters": matters, "count": len(matters)}, nil
}

func (h *handlers) createMatter(ctx context.Context, args map[string]any, identity ports.Identity) (any, error) {
	matter, err := h.backend.CreateMatter(ctx, identity, MatterInput{
		Title:       stringArg(args, "title"),
		ClientName:  stringArg(args, "client_name"),
		Description: stringArg(args, "description"),
	})
	if err != nil {
		return nil, err
	}
	return matter, nil
}

func (h *handlers) logTime(ctx context.Context, args map[string]any, identity ports.Identity) (any, error) {
	hours, _ := numberArg(args, "hours")
	hours = math.Round(hours*10) / 10
	if hours <= 0 || hours > maxHoursPerEntry {
		return nil, fmt.Errorf("hours must be greater than 0 and at most %d", maxHoursPerEntry)
	}
	description := strings.TrimSpace(stringArg(args, "description"))
	if description == "" {
		return nil, fmt.Errorf("description must not be empty")
	}
	date := strings.TrimSpace(stringArg(args, "date"))
	if date == "" {
		date = h.now().Format(dateLayout)
	} else if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("date must be YYYY-MM-DD, got %q", date)
	}
	billable := true
	if v, ok := args["billable"].(bool); ok {
		billable = v
	}

	entry, err := h.backend.LogTime(ctx, identity, TimeEntryInput{
		MatterID:    strings.TrimSpace(stringArg(args, "matter_id")),
		Hours:       hours,
		Description: description,
		Date:        date,
		Billable:    billable,
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (h *handlers) listTimeEntries(ctx context.Context, args map[string]any, identity ports.Identity) (any, error) {
	matterID := strings.TrimSpace(stringArg(args, "matter_id"))
	entries, err := h.backend.ListTimeEntries(ctx, identity, matterID, limitArg(args))
	if err != nil {
		return nil, err
	}
	total := 0.0
	for _, e := range entries {
		total += e.Hours
	}
	return map[string]any{
		"matter_id":   matterID,
		"entries":     entries,
		"count":       len(entries),
		"total_hours": math.Round(total*10) / 10,
	}, nil
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func numberArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func limitArg(args map[string]any) int {
	n, ok := numberArg(args, "limit")
	if !ok || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return int(n)
}
