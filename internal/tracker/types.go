// Package tracker is a client for the Jira REST API: issue creation and JQL
// search, authenticated by a pluggable strategy and guarded by a circuit
// breaker.
package tracker

import (
	"encoding/json"
	"maps"
)

// IssuePayload is the body of an issue-create call. Custom holds the
// tracker custom fields keyed by field id; they are emitted alongside the
// standard fields inside "fields".
type IssuePayload struct {
	ProjectKey  string
	Summary     string
	Description any
	IssueType   string
	Labels      []string
	Custom      map[string]any
}

type keyRef struct {
	Key string `json:"key"`
}

type nameRef struct {
	Name string `json:"name"`
}

// MarshalJSON renders {"fields": {...}}. Map keys are sorted by
// encoding/json, so identical payloads always produce identical bytes.
func (p IssuePayload) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(p.Custom)+5)
	maps.Copy(fields, p.Custom)
	fields["project"] = keyRef{Key: p.ProjectKey}
	fields["summary"] = p.Summary
	fields["issuetype"] = nameRef{Name: p.IssueType}
	if p.Description != nil {
		fields["description"] = p.Description
	}
	if len(p.Labels) > 0 {
		fields["labels"] = p.Labels
	}
	return json.Marshal(map[string]any{"fields": fields})
}

// TicketRef identifies a created issue.
type TicketRef struct {
	ID  string `json:"id"`
	Key string `json:"key"`
	URL string `json:"url,omitempty"`
}

// Issue is one search hit. Fields stay raw because their shapes depend on
// the field type.
type Issue struct {
	ID     string                     `json:"id"`
	Key    string                     `json:"key"`
	Fields map[string]json.RawMessage `json:"fields"`
}

// FieldValue extracts a display value from a field: a plain string, or the
// "value" (select options) or "name" (statuses, users) of an object.
func (i Issue) FieldValue(field string) (string, bool) {
	raw, ok := i.Fields[field]
	if !ok || len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var obj struct {
		Value string `json:"value"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", false
	}
	if obj.Value != "" {
		return obj.Value, true
	}
	return obj.Name, obj.Name != ""
}

type createResponse struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}

type searchRequest struct {
	JQL        string   `json:"jql"`
	Fields     []string `json:"fields,omitempty"`
	MaxResults int      `json:"maxResults"`
}

type searchResponse struct {
	Total  int     `json:"total"`
	Issues []Issue `json:"issues"`
}
