package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/intake"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/intake/validator"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/tracker"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/tracker/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/metrics"
)

// DefaultStatus is reported when a ticket matches but its status field is
// unset.
const DefaultStatus = "Not Started"

const (
	msgStatusThrottled   = "Please wait before checking status again."
	msgStatusNotFound    = "No integration request found"
	msgStatusFailed      = "Failed to query status"
	msgStatusUnsupported = "Status lookup is not available"
)

// StatusConfig wires a StatusService. Limiter, Cache and Metrics are
// optional; without a limiter the route is unthrottled.
type StatusConfig struct {
	Limiter    RateLimiter
	Tickets    TicketSearcher
	Schema     *schema.Schema
	ProjectKey string
	Cache      LookupCache
	Metrics    *metrics.Metrics
}

// StatusService answers "what is the status of my request" by searching the
// tracker for the newest ticket matching an account number and format type.
type StatusService struct {
	cfg    StatusConfig
	logger *slog.Logger
}

func NewStatusService(cfg StatusConfig) *StatusService {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewUnregistered()
	}
	return &StatusService{
		cfg:    cfg,
		logger: slog.Default().With("component", "status"),
	}
}

// Lookup validates req, applies the optional throttle (which commits on
// admission, before the search), and returns the matched ticket's status.
// A search that succeeds with no hits is ErrNotFound.
func (s *StatusService) Lookup(ctx context.Context, identity string, req intake.StatusQueryRequest) (*intake.Lookup, error) {
	l, outcome, err := s.lookup(ctx, identity, req)
	s.cfg.Metrics.StatusLookupsTotal.WithLabelValues(outcome).Inc()
	return l, err
}

func (s *StatusService) lookup(ctx context.Context, identity string, req intake.StatusQueryRequest) (*intake.Lookup, string, error) {
	log := logger.FromContext(ctx).With("component", "status", "client_ip", identity)

	q, err := validator.ValidateStatusQuery(req)
	if err != nil {
		var verr *validator.ValidationError
		msg := "Missing account number or format type"
		if errors.As(err, &verr) {
			msg = verr.Message
		}
		return nil, "invalid", apperrors.Wrap(err, apperrors.ErrInvalidInput, http.StatusBadRequest, msg)
	}
	if !s.cfg.Schema.SupportsStatusLookup() {
		return nil, "error", apperrors.New(apperrors.ErrInternal, http.StatusInternalServerError, msgStatusUnsupported)
	}

	if s.cfg.Limiter != nil {
		decision, err := s.cfg.Limiter.Admit(ctx, identity)
		if err == nil && !decision.Allowed {
			return nil, "rate_limited", apperrors.RateLimited(msgStatusThrottled, decision.RetryAfter)
		}
		s.cfg.Limiter.Commit(ctx, identity, s.cfg.Limiter.Now())
	}

	var (
		l      intake.Lookup
		cached bool
	)
	if s.cfg.Cache != nil {
		l, cached, err = s.cfg.Cache.GetOrCompute(ctx, q, func(ctx context.Context) (intake.Lookup, error) {
			return s.search(ctx, q)
		})
	} else {
		l, err = s.search(ctx, q)
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, "not_found", err
		}
		log.Error("status search failed", "error", err)
		return nil, "error", apperrors.Wrap(err, apperrors.ErrTicketSearchFailed, http.StatusInternalServerError, msgStatusFailed)
	}
	log.Debug("status resolved", "reference", l.Reference, "cached", cached)
	return &l, "found", nil
}

func (s *StatusService) search(ctx context.Context, q intake.StatusQuery) (intake.Lookup, error) {
	sc := s.cfg.Schema
	jql := tracker.NewQuery().
		Equals("project", s.cfg.ProjectKey).
		Contains(sc.CorrelationField, q.AccountNumber).
		Equals(sc.FormatField, q.FormatType).
		OrderBy("created", true).
		String()

	var fields []string
	if sc.StatusField != "" {
		fields = []string{sc.StatusField}
	}
	issues, err := s.cfg.Tickets.Search(ctx, jql, fields, 1)
	if err != nil {
		return intake.Lookup{}, err
	}
	if len(issues) == 0 {
		return intake.Lookup{}, apperrors.New(apperrors.ErrNotFound, http.StatusNotFound, msgStatusNotFound)
	}
	status := DefaultStatus
	if sc.StatusField != "" {
		if v, ok := issues[0].FieldValue(sc.StatusField); ok {
			status = v
		}
	}
	return intake.Lookup{Found: true, Status: status, Reference: issues[0].Key}, nil
}
