package mirror

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"toolbox_backend/credits"
	"toolbox_backend/db"
	"toolbox_backend/logging"
)

// Request outcomes reported to the Observer and stored in the audit trail.
const (
	OutcomeSuccess  = "success"
	OutcomeSafety   = "safety_blocked"
	OutcomeNoImage  = "no_image"
	OutcomeUpstream = "upstream_error"
	OutcomeQuota    = "quota_exhausted"
	OutcomeCanceled = "canceled"
	OutcomeBadInput = "invalid_request"
)

// Ledger is the credit store the service charges. *credits.Ledger
// implements it.
type Ledger interface {
	Balance(ctx context.Context, profileID string) (int, error)
	Consume(ctx context.Context, profileID string) (int, error)
	Refund(ctx context.Context, profileID string) (int, error)
}

// Recorder stores the audit row for each call. *db.Repository implements
// it.
type Recorder interface {
	InsertMirrorRequest(ctx context.Context, rec db.MirrorRecord) (string, error)
}

// Observer receives one callback per call. Optional.
type Observer interface {
	ObserveMirror(provider, outcome string, duration time.Duration)
}

// Response is what the caller gets back from a successful call.
type Response struct {
	Image            []byte
	MIMEType         string
	RemainingCredits int
}

// Service charges one credit per call, runs the provider and records the
// outcome.
type Service struct {
	provider Provider
	ledger   Ledger
	recorder Recorder
	observer Observer
	timeout  time.Duration
	logger   *logging.Logger
}

// ServiceConfig wires a Service. Recorder and Observer are optional.
type ServiceConfig struct {
	Provider Provider
	Ledger   Ledger
	Recorder Recorder
	Observer Observer
	// Timeout bounds one provider call. Zero means no extra bound.
	Timeout time.Duration
	Logger  *logging.Logger
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		provider: cfg.Provider,
		ledger:   cfg.Ledger,
		recorder: cfg.Recorder,
		observer: cfg.Observer,
		timeout:  cfg.Timeout,
		logger:   logger.Named("mirror"),
	}
}

// Enabled reports whether a provider is configured.
func (s *Service) Enabled() bool {
	return s.provider != nil
}

// Credits returns the profile's balance without charging.
func (s *Service) Credits(ctx context.Context, profileID string) (int, error) {
	return s.ledger.Balance(ctx, profileID)
}

// Transform validates req, spends one credit and asks the provider for a
// new image. A credit is given back when the provider fails without a
// policy decision (transport errors, no image, cancellation); safety
// blocks stay charged.
func (s *Service) Transform(ctx context.Context, profileID string, req Request) (*Response, error) {
	start := time.Now()
	requestID := uuid.NewString()
	providerName := "none"
	if s.provider != nil {
		providerName = s.provider.Name()
	}
	log := s.logger.With(logging.MirrorFields(requestID, providerName, req.Level)...)

	finish := func(outcome string, err error) {
		duration := time.Since(start)
		if s.observer != nil {
			s.observer.ObserveMirror(providerName, outcome, duration)
		}
		if s.recorder != nil {
			rec := db.MirrorRecord{
				ID:         requestID,
				ProfileID:  profileID,
				Provider:   providerName,
				Level:      req.Level,
				Status:     db.StatusSuccess,
				DurationMS: duration.Milliseconds(),
			}
			if err != nil {
				rec.Status = db.StatusError
				rec.ErrorMessage = outcome + ": " + err.Error()
			}
			if _, recErr := s.recorder.InsertMirrorRequest(context.WithoutCancel(ctx), rec); recErr != nil {
				log.Warn("failed to record mirror request", zap.Error(recErr))
			}
		}
	}

	if s.provider == nil {
		return nil, ErrNotConfigured
	}
	if err := req.Normalize(); err != nil {
		finish(OutcomeBadInput, err)
		return nil, err
	}

	remaining, err := s.ledger.Consume(ctx, profileID)
	if err != nil {
		outcome := OutcomeUpstream
		if errors.Is(err, credits.ErrQuotaExhausted) {
			outcome = OutcomeQuota
		}
		finish(outcome, err)
		return nil, err
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := s.provider.Transform(callCtx, req)
	if err != nil {
		outcome := classify(ctx, err)
		if outcome != OutcomeSafety {
			if balance, refundErr := s.ledger.Refund(context.WithoutCancel(ctx), profileID); refundErr != nil {
				log.Warn("failed to refund credit", zap.Error(refundErr))
			} else {
				remaining = balance
			}
		}
		log.Warn("mirror request failed",
			zap.String("outcome", outcome),
			zap.Int("remaining_credits", remaining),
			zap.Error(err))
		finish(outcome, err)
		return nil, err
	}

	log.Info("mirror request completed",
		zap.Int("remaining_credits", remaining),
		zap.Int("bytes", len(result.Image)),
		zap.Duration("duration", time.Since(start)))
	finish(OutcomeSuccess, nil)

	return &Response{
		Image:            result.Image,
		MIMEType:         result.MIMEType,
		RemainingCredits: remaining,
	}, nil
}

func classify(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, ErrSafetyBlocked):
		return OutcomeSafety
	case errors.Is(err, ErrNoImage):
		return OutcomeNoImage
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return OutcomeCanceled
	default:
		return OutcomeUpstream
	}
}
