package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/audit"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/intake"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/intake/validator"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/notify"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/tracker/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/tracing"
)

// Caller-facing messages.
const (
	msgCreated            = "Jira ticket created successfully."
	msgCaptchaRejected    = "Invalid reCAPTCHA. Please try again."
	msgCaptchaUnavailable = "Unable to verify reCAPTCHA. Please try again later."
	msgCreateFailed       = "Failed to create Jira ticket."
	msgInternal           = "Internal server error."
)

// defaultAuditTimeout bounds the audit insert when AuditTimeout is unset.
const defaultAuditTimeout = 2 * time.Second

// SubmitterConfig wires a Submitter. Audit, Cache, Tracer and Metrics are
// optional. AuditTimeout caps how long a created ticket waits on the audit
// row.
type SubmitterConfig struct {
	Limiter      RateLimiter
	Cooldown     time.Duration
	Captcha      CaptchaVerifier
	Tickets      TicketCreator
	Schema       *schema.Schema
	Target       schema.Target
	Notifier     Dispatcher
	Audit        AuditLog
	AuditTimeout time.Duration
	Cache        LookupCache
	Tracer       *tracing.Tracer
	Metrics      *metrics.Metrics
}

// Submitter turns submissions into tickets. Stages run strictly in order:
// validate, admit, verify CAPTCHA, map, create, notify, commit. Nothing
// before create mutates state, and a failed create does not commit the
// caller's rate-limit window.
type Submitter struct {
	cfg    SubmitterConfig
	logger *slog.Logger
}

func NewSubmitter(cfg SubmitterConfig) *Submitter {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewUnregistered()
	}
	if cfg.AuditTimeout <= 0 {
		cfg.AuditTimeout = defaultAuditTimeout
	}
	return &Submitter{
		cfg:    cfg,
		logger: slog.Default().With("component", "submitter"),
	}
}

// SuccessMessage is the message returned with a created ticket.
func (s *Submitter) SuccessMessage() string {
	return msgCreated
}

// Submit runs the pipeline for one request from identity (the client IP).
func (s *Submitter) Submit(ctx context.Context, identity string, req intake.SubmissionRequest) (*intake.Receipt, error) {
	ctx, root := s.cfg.Tracer.Start(ctx, "submit")
	defer s.cfg.Tracer.Finish(root)
	log := logger.FromContext(ctx).With("component", "submitter", "client_ip", identity)

	receipt, outcome, err := s.submit(ctx, identity, req, log)
	s.cfg.Metrics.SubmissionsTotal.WithLabelValues(outcome).Inc()
	root.SetAttr("outcome", outcome)
	if err != nil {
		root.EndWithError(err)
	}
	return receipt, err
}

func (s *Submitter) submit(ctx context.Context, identity string, req intake.SubmissionRequest, log *slog.Logger) (*intake.Receipt, string, error) {
	_, span := tracing.StartChildSpan(ctx, "validate")
	sub, err := validator.ValidateSubmission(req)
	span.EndWithError(err)
	if err != nil {
		var verr *validator.ValidationError
		msg := "Missing required fields"
		if errors.As(err, &verr) {
			msg = verr.Message
		}
		log.Info("submission rejected by validation", "error", err)
		return nil, "invalid", apperrors.Wrap(err, apperrors.ErrInvalidInput, http.StatusBadRequest, msg)
	}

	_, span = tracing.StartChildSpan(ctx, "admit")
	decision, err := s.cfg.Limiter.Admit(ctx, identity)
	span.End()
	if err != nil {
		log.Warn("rate-limit check failed, admitting", "error", err)
	}
	if err == nil && !decision.Allowed {
		log.Info("submission throttled", "retry_after", decision.RetryAfter.Round(time.Second))
		return nil, "rate_limited", apperrors.RateLimited(
			"Only one request per "+Window(s.cfg.Cooldown)+" is allowed.", decision.RetryAfter)
	}

	spanCtx, span := tracing.StartChildSpan(ctx, "captcha")
	ok, err := s.cfg.Captcha.Verify(spanCtx, sub.CaptchaToken, identity)
	span.EndWithError(err)
	if err != nil {
		log.Error("captcha verification unavailable", "error", err)
		return nil, "captcha_unavailable", apperrors.Wrap(err, apperrors.ErrVerificationUnavailable, http.StatusInternalServerError, msgCaptchaUnavailable)
	}
	if !ok {
		return nil, "captcha_rejected", apperrors.New(apperrors.ErrCaptchaRejected, http.StatusBadRequest, msgCaptchaRejected)
	}

	_, span = tracing.StartChildSpan(ctx, "map")
	payload, err := schema.Map(sub, s.cfg.Schema, s.cfg.Target)
	span.EndWithError(err)
	if err != nil {
		log.Error("payload mapping failed", "schema", s.cfg.Schema.Name, "error", err)
		return nil, "internal", apperrors.Wrap(err, apperrors.ErrInternal, http.StatusInternalServerError, msgInternal)
	}

	spanCtx, span = tracing.StartChildSpan(ctx, "create")
	ref, err := s.cfg.Tickets.Create(spanCtx, payload)
	span.EndWithError(err)
	if err != nil {
		log.Error("ticket creation failed", "error", err)
		return nil, "create_failed", apperrors.Wrap(err, apperrors.ErrTicketCreateFailed, http.StatusInternalServerError, msgCreateFailed)
	}
	createdAt := s.cfg.Limiter.Now()
	receipt := &intake.Receipt{TicketID: ref.ID, TicketKey: ref.Key, TicketURL: ref.URL}
	log.Info("ticket created",
		"ticket_key", ref.Key,
		"format_type", sub.FormatType,
		"message_count", len(sub.Messages),
	)

	s.afterCreate(ctx, identity, sub, *receipt, createdAt, log)

	if s.cfg.Notifier != nil {
		_, span = tracing.StartChildSpan(ctx, "notify")
		if err := s.cfg.Notifier.Dispatch(ctx, notify.NewTicketCreatedEvent(sub, *receipt, logger.RequestID(ctx), createdAt)); err != nil {
			log.Warn("notification not dispatched", "error", err)
		}
		span.End()
	}

	s.cfg.Limiter.Commit(ctx, identity, createdAt)
	return receipt, "created", nil
}

// afterCreate runs the best-effort bookkeeping that must never fail the
// request: the audit row and status-cache invalidation.
func (s *Submitter) afterCreate(ctx context.Context, identity string, sub intake.Submission, receipt intake.Receipt, at time.Time, log *slog.Logger) {
	if s.cfg.Audit != nil {
		spanCtx, span := tracing.StartChildSpan(ctx, "audit")
		auditCtx, cancel := context.WithTimeout(spanCtx, s.cfg.AuditTimeout)
		err := s.cfg.Audit.Record(auditCtx, audit.Record{
			RequestID:  logger.RequestID(ctx),
			TicketKey:  receipt.TicketKey,
			TicketID:   receipt.TicketID,
			ClientIP:   identity,
			FormatType: sub.FormatType,
			Company:    sub.Company,
			Messages:   sub.Messages,
			CreatedAt:  at,
		})
		cancel()
		span.EndWithError(err)
		if err != nil {
			log.Error("audit record failed", "ticket_key", receipt.TicketKey, "error", err)
		}
	}
	if s.cfg.Cache != nil {
		if key, ok := s.cfg.Schema.CorrelationKey(); ok {
			if acct := sub.Extensions[key]; acct != "" {
				s.cfg.Cache.Invalidate(ctx, intake.StatusQuery{AccountNumber: acct, FormatType: sub.FormatType})
			}
		}
	}
}
