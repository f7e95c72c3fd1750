package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/intake"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/tracker"
	apperrors "github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/errors"
)

// Target is where created issues go.
type Target struct {
	ProjectKey string
	IssueType  string
}

type option struct {
	Value string `json:"value"`
}

// Map renders sub as an issue payload. It is pure: the same inputs always
// give the same payload. Absent optional sources leave their field out;
// an absent required source is an internal error, since validation should
// have rejected the submission first.
func Map(sub intake.Submission, s *Schema, target Target) (tracker.IssuePayload, error) {
	p := tracker.IssuePayload{
		ProjectKey: target.ProjectKey,
		IssueType:  target.IssueType,
		Summary:    Summary(s, sub),
		Labels:     Labels(s, sub),
	}
	text := DescriptionText(sub)
	if s.DescriptionFormat == DescriptionPlain {
		p.Description = text
	} else {
		p.Description = ADF(text)
	}

	for _, slot := range s.Slots {
		value, ok := render(slot, sub)
		if !ok {
			if slot.Required {
				return tracker.IssuePayload{}, fmt.Errorf("%w: schema %s: required field %s has no value from %s",
					apperrors.ErrInternal, s.Name, slot.Field, slot.Source)
			}
			continue
		}
		if p.Custom == nil {
			p.Custom = make(map[string]any, len(s.Slots))
		}
		p.Custom[slot.Field] = value
	}
	return p, nil
}

// Summary is "<prefix> - <company>", or just the company without a prefix.
func Summary(s *Schema, sub intake.Submission) string {
	if s.SummaryPrefix == "" {
		return sub.Company
	}
	return s.SummaryPrefix + " - " + sub.Company
}

// DescriptionText is the notes when given, otherwise a fixed sentence naming
// the company.
func DescriptionText(sub intake.Submission) string {
	if strings.TrimSpace(sub.Notes) != "" {
		return sub.Notes
	}
	return fmt.Sprintf("No additional notes provided for %s.", sub.Company)
}

var whitespace = regexp.MustCompile(`\s+`)

// Slug lower-cases s and joins whitespace runs with "-".
func Slug(s string) string {
	return whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
}

// Labels returns the schema labels followed by the format-type slug, without
// duplicates.
func Labels(s *Schema, sub intake.Submission) []string {
	labels := make([]string, 0, len(s.Labels)+1)
	seen := make(map[string]bool, len(s.Labels)+1)
	add := func(l string) {
		if l != "" && !seen[l] {
			seen[l] = true
			labels = append(labels, l)
		}
	}
	for _, l := range s.Labels {
		add(l)
	}
	if s.LabelFormatType {
		add(Slug(sub.FormatType))
	}
	if len(labels) == 0 {
		return nil
	}
	return labels
}

func render(slot Slot, sub intake.Submission) (any, bool) {
	if slot.Wrap == WrapMulti {
		if len(sub.Messages) == 0 {
			return nil, false
		}
		out := make([]option, 0, len(sub.Messages))
		for _, m := range sub.Messages {
			out = append(out, option{Value: m})
		}
		return out, true
	}
	v := sourceValue(slot, sub)
	if strings.TrimSpace(v) == "" {
		return nil, false
	}
	if slot.Wrap == WrapSingle {
		return option{Value: v}, true
	}
	return v, true
}

func sourceValue(slot Slot, sub intake.Submission) string {
	if key, ok := slot.ExtensionKey(); ok {
		return sub.Extensions[key]
	}
	switch slot.Source {
	case SourceFormatType:
		return sub.FormatType
	case SourceName:
		return sub.Name
	case SourceCompany:
		return sub.Company
	case SourceEmail:
		return sub.Email
	case SourceNotes:
		return sub.Notes
	case SourceConnection:
		return sub.Connection
	case SourceContact:
		if sub.Name == "" || sub.Email == "" {
			return ""
		}
		return sub.Contact()
	case SourceConst:
		return slot.Value
	}
	return ""
}
