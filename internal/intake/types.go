// Package intake holds the request and result types of the submission and
// status-lookup flows.
package intake

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SubmissionRequest is the decoded request body of a ticket submission.
// Top-level string keys that are not named fields land in Extensions.
type SubmissionRequest struct {
	FormatType     string
	Messages       []string
	Name           string
	Company        string
	Email          string
	Notes          string
	Connection     string
	RecaptchaToken string
	Extensions     map[string]string
}

// UnmarshalJSON decodes the named fields strictly and keeps every other
// string-valued key as an extension. Non-string extras are ignored.
func (r *SubmissionRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var legacyToken string
	targets := map[string]any{
		"formatType":     &r.FormatType,
		"messages":       &r.Messages,
		"name":           &r.Name,
		"company":        &r.Company,
		"email":          &r.Email,
		"notes":          &r.Notes,
		"connection":     &r.Connection,
		"recaptchaToken": &r.RecaptchaToken,
		"recaptcha":      &legacyToken,
	}
	for key, value := range raw {
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			continue
		}
		if target, ok := targets[key]; ok {
			if err := json.Unmarshal(value, target); err != nil {
				return fmt.Errorf("field %q: %w", key, err)
			}
			continue
		}
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			continue
		}
		if r.Extensions == nil {
			r.Extensions = make(map[string]string)
		}
		r.Extensions[key] = s
	}
	if r.RecaptchaToken == "" {
		r.RecaptchaToken = legacyToken
	}
	return nil
}

// Submission is a validated SubmissionRequest. Every required field is
// non-empty and Extensions holds only non-empty values.
type Submission struct {
	FormatType   string
	Messages     []string
	Name         string
	Company      string
	Email        string
	Notes        string
	Connection   string
	CaptchaToken string
	Extensions   map[string]string
}

// Contact is the "<name> - <email>" requester line.
func (s Submission) Contact() string {
	return s.Name + " - " + s.Email
}

// StatusQueryRequest is the decoded body of a status lookup.
type StatusQueryRequest struct {
	AccountNumber string `json:"accountNumber"`
	FormatType    string `json:"formatType"`
}

// StatusQuery is a validated StatusQueryRequest.
type StatusQuery struct {
	AccountNumber string
	FormatType    string
}

// Receipt describes the ticket created for a submission.
type Receipt struct {
	TicketID  string
	TicketKey string
	TicketURL string
}

// Lookup is the outcome of a status query that matched a ticket.
type Lookup struct {
	Found     bool   `json:"found"`
	Status    string `json:"status"`
	Reference string `json:"reference,omitempty"`
}
