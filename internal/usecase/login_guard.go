package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verisafe/account-integrity/internal/core/domain"
	"github.com/verisafe/account-integrity/internal/core/port"
	"github.com/verisafe/account-integrity/internal/infra/logger"
	"github.com/verisafe/account-integrity/internal/infra/telemetry"
	"github.com/verisafe/account-integrity/internal/repository"
)

const (
	defaultLoginThreshold     = 5
	defaultLoginWindow        = 15 * time.Minute
	defaultBlockDuration      = 15 * time.Minute
	defaultAttemptRetention   = 30 * 24 * time.Hour
	loginAlertSuppressionKind = "login-blocked"
)

// LoginGuardConfig bounds the sliding-window limiter.
type LoginGuardConfig struct {
	Threshold      int
	Window         time.Duration
	BlockDuration  time.Duration
	Retention      time.Duration
	SuppressAlerts time.Duration
}

func (c LoginGuardConfig) withDefaults() LoginGuardConfig {
	if c.Threshold <= 0 {
		c.Threshold = defaultLoginThreshold
	}
	if c.Window <= 0 {
		c.Window = defaultLoginWindow
	}
	if c.BlockDuration <= 0 {
		c.BlockDuration = defaultBlockDuration
	}
	if c.Retention <= 0 {
		c.Retention = defaultAttemptRetention
	}
	return c
}

// AttemptState reports the window state after a recorded failure.
type AttemptState struct {
	Email        string
	AttemptCount int
	Blocked      bool
	NewlyBlocked bool
	BlockedUntil *time.Time
}

// LoginGuardService enforces the sliding-window block over failed logins.
// Counting and blocking happen through store-level conditional updates; no
// in-process state is consulted for the block decision.
type LoginGuardService struct {
	attempts   port.LoginAttemptRepository
	events     port.AlertPublisher
	suppressor port.AlertSuppressor
	cfg        LoginGuardConfig
	logger     *zap.Logger
	metrics    *telemetry.Metrics
	now        func() time.Time
}

// NewLoginGuardService constructs a LoginGuardService.
func NewLoginGuardService(attempts port.LoginAttemptRepository, events port.AlertPublisher, cfg LoginGuardConfig, log *zap.Logger) *LoginGuardService {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoginGuardService{
		attempts: attempts,
		events:   events,
		cfg:      cfg.withDefaults(),
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithAlertSuppressor attaches a deduplicator for repeat already-blocked
// alerts within a block window.
func (s *LoginGuardService) WithAlertSuppressor(suppressor port.AlertSuppressor) *LoginGuardService {
	s.suppressor = suppressor
	return s
}

// WithMetrics attaches domain metric collectors.
func (s *LoginGuardService) WithMetrics(metrics *telemetry.Metrics) *LoginGuardService {
	s.metrics = metrics
	return s
}

// WithClock allows injection of a custom clock (primarily for testing).
func (s *LoginGuardService) WithClock(now func() time.Time) *LoginGuardService {
	if now != nil {
		s.now = now
	}
	return s
}

// RecordFailedLogin folds one authentication failure into the email's
// tracking window. Reaching the threshold blocks the email and raises an
// alert; failures against an already blocked email raise a deduplicated
// critical alert and leave the counter untouched.
func (s *LoginGuardService) RecordFailedLogin(ctx context.Context, email, ip, userAgent string) (*AttemptState, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return nil, fmt.Errorf("email is required")
	}

	now := s.now()
	windowStart := now.Add(-s.cfg.Window)

	current, err := s.attempts.ActiveWindow(ctx, normalized, windowStart)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load attempt window: %w", err)
	}

	if current != nil && (current.Blocked(now) || current.AttemptCount >= s.cfg.Threshold) {
		return s.alreadyBlocked(ctx, current, ip, userAgent, now), nil
	}

	if current == nil {
		return s.startFresh(ctx, normalized, ip, userAgent, now, windowStart)
	}

	updated, err := s.attempts.Increment(ctx, normalized, windowStart, s.cfg.Threshold, ip, userAgent, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Lost the race: either a concurrent failure filled the window to
			// the threshold or the window just expired. Re-read and settle.
			return s.settleRace(ctx, normalized, ip, userAgent, now, windowStart)
		}
		return nil, fmt.Errorf("increment attempt window: %w", err)
	}

	if updated.AttemptCount >= s.cfg.Threshold {
		return s.blockWindow(ctx, updated, ip, userAgent, now)
	}

	return &AttemptState{Email: normalized, AttemptCount: updated.AttemptCount}, nil
}

// IsLoginBlocked answers the authentication path's pre-credential check. A
// block that has expired reads as no block at all.
func (s *LoginGuardService) IsLoginBlocked(ctx context.Context, email string) (*domain.BlockStatus, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return nil, fmt.Errorf("email is required")
	}

	now := s.now()

	attempt, err := s.attempts.ActiveWindow(ctx, normalized, now.Add(-s.cfg.Window))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &domain.BlockStatus{RemainingAttempts: s.cfg.Threshold}, nil
		}
		return nil, fmt.Errorf("load attempt window: %w", err)
	}

	if attempt.Blocked(now) {
		return &domain.BlockStatus{Blocked: true, BlockedUntil: attempt.BlockedUntil}, nil
	}

	remaining := s.cfg.Threshold - attempt.AttemptCount
	if remaining < 0 {
		remaining = 0
	}

	return &domain.BlockStatus{RemainingAttempts: remaining}, nil
}

// Sweep marks tracking windows older than the retention horizon inactive.
// Best effort maintenance; correctness never depends on it running.
func (s *LoginGuardService) Sweep(ctx context.Context) (int64, error) {
	horizon := s.now().Add(-s.cfg.Retention)

	swept, err := s.attempts.DeactivateBefore(ctx, horizon)
	if err != nil {
		return 0, fmt.Errorf("sweep login attempts: %w", err)
	}

	if swept > 0 {
		s.logger.Info("login attempt windows swept", zap.Int64("count", swept))
	}

	return swept, nil
}

func (s *LoginGuardService) startFresh(ctx context.Context, email, ip, userAgent string, now, windowStart time.Time) (*AttemptState, error) {
	attempt := domain.LoginAttempt{
		ID:           uuid.NewString(),
		Email:        email,
		IPAddress:    ip,
		UserAgent:    userAgent,
		AttemptCount: 1,
		FirstAttempt: now,
		LastAttempt:  now,
		IsActive:     true,
		CreatedAt:    now,
	}

	if err := s.attempts.StartWindow(ctx, attempt); err != nil {
		// A concurrent first failure may have inserted the window already;
		// fold into it instead of failing the request.
		updated, incErr := s.attempts.Increment(ctx, email, windowStart, s.cfg.Threshold, ip, userAgent, now)
		if incErr != nil {
			return nil, fmt.Errorf("start attempt window: %w", err)
		}
		if updated.AttemptCount >= s.cfg.Threshold {
			return s.blockWindow(ctx, updated, ip, userAgent, now)
		}
		return &AttemptState{Email: email, AttemptCount: updated.AttemptCount}, nil
	}

	return &AttemptState{Email: email, AttemptCount: 1}, nil
}

func (s *LoginGuardService) settleRace(ctx context.Context, email, ip, userAgent string, now, windowStart time.Time) (*AttemptState, error) {
	current, err := s.attempts.ActiveWindow(ctx, email, windowStart)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.startFresh(ctx, email, ip, userAgent, now, windowStart)
		}
		return nil, fmt.Errorf("reload attempt window: %w", err)
	}

	return s.alreadyBlocked(ctx, current, ip, userAgent, now), nil
}

func (s *LoginGuardService) blockWindow(ctx context.Context, attempt *domain.LoginAttempt, ip, userAgent string, now time.Time) (*AttemptState, error) {
	until := now.Add(s.cfg.BlockDuration)

	if err := s.attempts.Block(ctx, attempt.ID, until); err != nil {
		return nil, fmt.Errorf("block attempt window: %w", err)
	}

	s.metrics.ObserveLoginBlock("blocked")
	s.publishBlocked(ctx, attempt, ip, userAgent, until, now, false)

	s.logger.Warn("login blocked",
		zap.String("email", logger.MaskEmail(attempt.Email)),
		zap.String("ip", logger.MaskIP(ip)),
		zap.Int("attempt_count", attempt.AttemptCount),
		zap.Time("blocked_until", until),
	)

	return &AttemptState{
		Email:        attempt.Email,
		AttemptCount: attempt.AttemptCount,
		Blocked:      true,
		NewlyBlocked: true,
		BlockedUntil: &until,
	}, nil
}

func (s *LoginGuardService) alreadyBlocked(ctx context.Context, attempt *domain.LoginAttempt, ip, userAgent string, now time.Time) *AttemptState {
	blockedUntil := attempt.BlockedUntil
	if blockedUntil == nil {
		// At threshold but the blocking writer has not landed yet; report the
		// nominal horizon.
		horizon := attempt.LastAttempt.Add(s.cfg.BlockDuration)
		blockedUntil = &horizon
	}

	s.metrics.ObserveLoginBlock("repeat")
	s.publishBlocked(ctx, attempt, ip, userAgent, *blockedUntil, now, true)

	return &AttemptState{
		Email:        attempt.Email,
		AttemptCount: attempt.AttemptCount,
		Blocked:      true,
		BlockedUntil: blockedUntil,
	}
}

func (s *LoginGuardService) publishBlocked(ctx context.Context, attempt *domain.LoginAttempt, ip, userAgent string, until, now time.Time, already bool) {
	if s.events == nil {
		return
	}

	if already && s.suppressor != nil {
		ttl := s.cfg.SuppressAlerts
		if ttl <= 0 {
			ttl = s.cfg.BlockDuration
		}
		key := fmt.Sprintf("%s:%s", loginAlertSuppressionKind, attempt.Email)
		first, err := s.suppressor.FirstWithin(ctx, key, ttl)
		if err != nil {
			s.logger.Warn("alert suppression check failed", zap.Error(err))
		} else if !first {
			return
		}
	}

	severity := domain.SeverityForAttempts(attempt.AttemptCount)
	if already {
		severity = domain.SeverityCritical
	}

	if err := s.events.PublishLoginBlocked(ctx, domain.LoginBlockedEvent{
		EventID:        uuid.NewString(),
		Email:          attempt.Email,
		IPAddress:      ip,
		UserAgent:      userAgent,
		AttemptCount:   attempt.AttemptCount,
		Severity:       severity,
		AlreadyBlocked: already,
		BlockedUntil:   until,
		OccurredAt:     now,
	}); err != nil {
		s.logger.Warn("publish login blocked event failed",
			zap.String("email", logger.MaskEmail(attempt.Email)),
			zap.Error(err),
		)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
