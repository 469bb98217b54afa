// Package ingest orchestrates the feedback submission pipeline: validate,
// rate-limit, resolve configuration, enhance, persist.
//
// The stage order is fixed and must not be reordered. An invalid request
// never consumes quota; a rate-limited request never reaches the enhancer or
// the store. The pipeline is stateless per request except for the rate
// limiter's shared counters.
package ingest

import (
	"context"
	"log/slog"

	"github.com/driftboard/feedback/internal/config"
	"github.com/driftboard/feedback/internal/model"
	"github.com/driftboard/feedback/internal/ratelimit"
	"github.com/driftboard/feedback/internal/validate"
)

// ClientIdentity is what the surrounding auth layer resolved for the caller:
// an authenticated user id or a derived fingerprint. It is used only as a
// rate-limit key and is never persisted.
type ClientIdentity struct {
	Key           string
	Authenticated bool
}

// Store is the persistence contract the pipeline needs. The repository
// package provides the SQLite implementation.
type Store interface {
	Create(ctx context.Context, f *model.Feedback) error
}

// Enhancer produces the AI (or fallback) enhancement. It never fails.
type Enhancer interface {
	Enhance(ctx context.Context, sub *model.ValidatedSubmission, cfg config.EffectiveConfig) model.AIEnhancement
}

// Service runs the pipeline for one endpoint. The plain and the AI-enhanced
// endpoints are two Services sharing a store and an enhancer but carrying
// their own limiter (different caps) and their own AI policy.
type Service struct {
	store     Store
	limiter   *ratelimit.Limiter
	enhancer  Enhancer
	overrides *config.Overrides
	// disableAI forces ai.enabled off after config resolution. Set on the
	// plain endpoint's service so the two endpoints differ only here and in
	// the rate cap.
	disableAI bool
	logger    *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithOverrides applies deployment-level configuration overrides on top of
// the tier preset for every submission.
func WithOverrides(o *config.Overrides) Option {
	return func(s *Service) { s.overrides = o }
}

// WithAIDisabled pins ai.enabled to false regardless of tier or overrides.
func WithAIDisabled() Option {
	return func(s *Service) { s.disableAI = true }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService wires a pipeline instance.
func NewService(store Store, limiter *ratelimit.Limiter, enhancer Enhancer, opts ...Option) *Service {
	s := &Service{
		store:    store,
		limiter:  limiter,
		enhancer: enhancer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit runs the full pipeline for one raw submission. identity may be nil
// when the auth layer could not resolve one (anonymous deployments); the
// rate-limit gate is skipped in that case.
func (s *Service) Submit(ctx context.Context, raw map[string]any, identity *ClientIdentity, tier config.TierID) (*model.Feedback, error) {
	// 1. Validate. Failing here must leave the limiter and store untouched.
	sub, verr := validate.Validate(raw)
	if verr != nil {
		return nil, &InvalidError{Reason: verr.Message}
	}

	// 2. Rate limit, only when an identity was resolved.
	if identity != nil {
		decision := s.limiter.Check(identity.Key)
		if !decision.Allowed {
			s.logger.Info("submission rate limited",
				"identity", identity.Key, "reset_in", decision.ResetIn)
			return nil, &RateLimitedError{RetryAfter: decision.ResetIn}
		}
	}

	// 3. Resolve the effective configuration for this deployment tier.
	cfg, err := config.Resolve(tier, s.overrides)
	if err != nil {
		// Deployment misconfiguration, not the caller's fault. main()
		// validates at startup, so hitting this per-request means the
		// operator changed something underneath us.
		s.logger.Error("config resolution failed", "tier", tier, "error", err)
		return nil, err
	}
	if s.disableAI {
		cfg.AI.Enabled = false
	}

	record := &model.Feedback{
		RawText:       sub.RawText,
		Category:      sub.Category,
		Severity:      sub.Severity,
		PageURL:       sub.PageURL,
		TargetElement: sub.TargetElement,
		DeviceType:    sub.DeviceType,
		Context:       sub.Context,
		Status:        model.StatusPending,
	}

	// 4. Enhance. Never fails: a provider outage degrades to the fallback
	// inside the enhancer, bounded by its timeout.
	if cfg.AI.Enabled {
		enh := s.enhancer.Enhance(ctx, sub, cfg)
		record.Enhancement = &enh
	}

	// 5. Persist.
	if err := s.store.Create(ctx, record); err != nil {
		s.logger.Error("failed to persist feedback", "error", err)
		return nil, &StorageError{Err: err}
	}

	s.logger.Info("feedback accepted",
		"id", record.ID, "category", record.Category, "severity", record.Severity,
		"ai", record.Enhancement != nil)
	return record, nil
}
