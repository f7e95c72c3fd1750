// Package captcha verifies human-origin tokens against a reCAPTCHA-compatible
// siteverify endpoint.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/metrics"
)

const maxVerdictBytes = 64 << 10

// verdict is the siteverify response body.
type verdict struct {
	Success    bool     `json:"success"`
	Score      *float64 `json:"score,omitempty"`
	Action     string   `json:"action,omitempty"`
	Hostname   string   `json:"hostname,omitempty"`
	ErrorCodes []string `json:"error-codes,omitempty"`
}

// Verifier checks CAPTCHA tokens.
type Verifier struct {
	verifyURL string
	secret    string
	minScore  float64
	client    *http.Client
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewVerifier builds a Verifier from configuration. client may be nil.
func NewVerifier(cfg config.CaptchaConfig, client *http.Client, m *metrics.Metrics) *Verifier {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Verifier{
		verifyURL: cfg.VerifyURL,
		secret:    cfg.Secret,
		minScore:  cfg.MinScore,
		client:    client,
		metrics:   m,
		logger:    slog.Default().With("component", "captcha"),
	}
}

// Verify returns true when the service confirms token. A negative verdict is
// (false, nil); a verifier that cannot be reached or answers garbage yields
// an error wrapping ErrVerificationUnavailable. remoteIP may be empty.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	log := logger.FromContext(ctx).With("component", "captcha")
	start := time.Now()

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, v.unavailable(fmt.Errorf("building verify request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		log.Error("captcha verification unreachable", "error", err)
		return false, v.unavailable(fmt.Errorf("%w: %w", apperrors.ErrTransport, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxVerdictBytes))
	if err != nil {
		return false, v.unavailable(fmt.Errorf("%w: reading verdict: %w", apperrors.ErrTransport, err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Error("captcha verifier returned error status",
			"status", resp.StatusCode,
			"body", logger.Redact(string(body)),
		)
		return false, v.unavailable(fmt.Errorf("verifier returned status %d", resp.StatusCode))
	}

	var out verdict
	if err := json.Unmarshal(body, &out); err != nil {
		log.Error("captcha verdict undecodable", "error", err)
		return false, v.unavailable(fmt.Errorf("decoding verdict: %w", err))
	}

	if !out.Success {
		v.metrics.CaptchaVerifications.WithLabelValues("rejected").Inc()
		log.Info("captcha rejected",
			"error_codes", out.ErrorCodes,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return false, nil
	}
	if v.minScore > 0 && out.Score != nil && *out.Score < v.minScore {
		v.metrics.CaptchaVerifications.WithLabelValues("rejected").Inc()
		log.Info("captcha score below threshold",
			"score", *out.Score,
			"min_score", v.minScore,
			"action", out.Action,
		)
		return false, nil
	}

	v.metrics.CaptchaVerifications.WithLabelValues("accepted").Inc()
	log.Debug("captcha accepted",
		"hostname", out.Hostname,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return true, nil
}

func (v *Verifier) unavailable(err error) error {
	v.metrics.CaptchaVerifications.WithLabelValues("unavailable").Inc()
	return fmt.Errorf("%w: %w", apperrors.ErrVerificationUnavailable, err)
}
