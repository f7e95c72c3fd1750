// Package validator checks intake requests for required values. All checks
// run together and report one aggregate error.
package validator

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/intake"
	apperrors "github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/errors"
)

const (
	submissionMessage = "Missing required fields"
	statusMessage     = "Missing account number or format type"
)

// ValidationError lists every missing field. Fields are for logs; callers
// only see Message.
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", strings.ToLower(e.Message), strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ValidateSubmission returns the validated Submission or a *ValidationError.
func ValidateSubmission(req intake.SubmissionRequest) (intake.Submission, error) {
	var missing []string
	if blank(req.FormatType) {
		missing = append(missing, "formatType")
	}
	if len(req.Messages) == 0 {
		missing = append(missing, "messages")
	} else {
		for i, m := range req.Messages {
			if blank(m) {
				missing = append(missing, fmt.Sprintf("messages[%d]", i))
			}
		}
	}
	if blank(req.Name) {
		missing = append(missing, "name")
	}
	if blank(req.Company) {
		missing = append(missing, "company")
	}
	if blank(req.Email) {
		missing = append(missing, "email")
	}
	if blank(req.RecaptchaToken) {
		missing = append(missing, "recaptchaToken")
	}
	if len(missing) > 0 {
		return intake.Submission{}, &ValidationError{Message: submissionMessage, Fields: missing}
	}

	sub := intake.Submission{
		FormatType:   req.FormatType,
		Messages:     append([]string(nil), req.Messages...),
		Name:         req.Name,
		Company:      req.Company,
		Email:        req.Email,
		CaptchaToken: req.RecaptchaToken,
	}
	if !blank(req.Notes) {
		sub.Notes = req.Notes
	}
	if !blank(req.Connection) {
		sub.Connection = req.Connection
	}
	for k, v := range req.Extensions {
		if blank(v) {
			continue
		}
		if sub.Extensions == nil {
			sub.Extensions = make(map[string]string)
		}
		sub.Extensions[k] = v
	}
	return sub, nil
}

// ValidateStatusQuery returns the validated StatusQuery or a *ValidationError.
func ValidateStatusQuery(req intake.StatusQueryRequest) (intake.StatusQuery, error) {
	var missing []string
	if blank(req.AccountNumber) {
		missing = append(missing, "accountNumber")
	}
	if blank(req.FormatType) {
		missing = append(missing, "formatType")
	}
	if len(missing) > 0 {
		return intake.StatusQuery{}, &ValidationError{Message: statusMessage, Fields: missing}
	}
	return intake.StatusQuery{
		AccountNumber: strings.TrimSpace(req.AccountNumber),
		FormatType:    strings.TrimSpace(req.FormatType),
	}, nil
}
