// Package imagegen generates images under a per-plan daily quota.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmehdipour/data-moodboard/internal/config"
	"github.com/jmehdipour/data-moodboard/internal/logger"
	"github.com/jmehdipour/data-moodboard/internal/metrics"
	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmehdipour/data-moodboard/internal/repository"
	"github.com/jmehdipour/data-moodboard/internal/util"
	"go.uber.org/zap"
)

const maxPromptLen = 1000

var (
	ErrEmptyPrompt      = errors.New("prompt is required")
	ErrPromptTooLong    = errors.New("prompt is too long")
	ErrInvalidSize      = errors.New("unsupported image size")
	ErrGenerationFailed = errors.New("image generation failed")
)

var sizes = map[string]bool{
	"1024x1024": true,
	"1792x1024": true,
	"1024x1792": true,
}

// QuotaError is returned when the daily limit is reached.
type QuotaError struct {
	Limit int
	Used  int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("daily image quota exceeded (%d/%d)", e.Used, e.Limit)
}

type Generator interface {
	GenerateImage(ctx context.Context, prompt, size string) ([]byte, error)
}

type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

type Result struct {
	URL   string `json:"url"`
	Used  int    `json:"used"`
	Limit int    `json:"limit"`
}

type Service struct {
	usage    repository.ImageUsageRepository
	profiles repository.ProfilesRepository
	gen      Generator
	store    Store
	limits   config.ImagesConfig
	now      func() time.Time
}

func New(
	usage repository.ImageUsageRepository,
	profiles repository.ProfilesRepository,
	gen Generator,
	store Store,
	limits config.ImagesConfig,
) *Service {
	return &Service{usage: usage, profiles: profiles, gen: gen, store: store, limits: limits, now: time.Now}
}

func (s *Service) day() string { return s.now().UTC().Format(time.DateOnly) }

// LimitFor returns the daily limit of the user's plan; unknown users get the free limit.
func (s *Service) LimitFor(ctx context.Context, userID string) (int, error) {
	p, err := s.profiles.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return s.limits.DailyLimitFree, nil
	}
	if err != nil {
		return 0, err
	}
	if p.Plan == model.PlanPro {
		return s.limits.DailyLimitPro, nil
	}
	return s.limits.DailyLimitFree, nil
}

func (s *Service) Usage(ctx context.Context, userID string) (model.ImageUsage, error) {
	limit, err := s.LimitFor(ctx, userID)
	if err != nil {
		return model.ImageUsage{}, err
	}
	day := s.day()
	used, err := s.usage.Get(ctx, userID, day)
	if err != nil {
		return model.ImageUsage{}, err
	}
	return model.ImageUsage{Date: day, Used: used, Limit: limit}, nil
}

// Generate reserves a slot first, so concurrent requests cannot overshoot the quota,
// and gives it back when generation or upload fails.
func (s *Service) Generate(ctx context.Context, userID, prompt, size string) (*Result, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if utf8.RuneCountInString(prompt) > maxPromptLen {
		return nil, ErrPromptTooLong
	}
	if size == "" {
		size = s.limits.DefaultSize
	}
	if !sizes[size] {
		return nil, ErrInvalidSize
	}

	limit, err := s.LimitFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	day := s.day()
	used, err := s.usage.Increment(ctx, userID, day)
	if err != nil {
		return nil, fmt.Errorf("reserve quota: %w", err)
	}
	if used > limit {
		s.rollback(userID, day)
		metrics.ImageGenerationsTotal.WithLabelValues("quota_exceeded").Inc()
		return nil, &QuotaError{Limit: limit, Used: used - 1}
	}

	img, err := s.gen.GenerateImage(ctx, prompt, size)
	if err == nil {
		var url string
		key := fmt.Sprintf("images/%s/%s.png", userID, util.New())
		url, err = s.store.Put(ctx, key, img, "image/png")
		if err == nil {
			metrics.ImageGenerationsTotal.WithLabelValues("ok").Inc()
			return &Result{URL: url, Used: used, Limit: limit}, nil
		}
	}

	logger.Log.Warn("image generation failed", zap.String("user_id", userID), zap.Error(err))
	s.rollback(userID, day)
	metrics.ImageGenerationsTotal.WithLabelValues("failed").Inc()
	return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
}

// rollback is best effort and survives request cancellation.
func (s *Service) rollback(userID, day string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.usage.Decrement(ctx, userID, day); err != nil {
		logger.Log.Error("image quota rollback failed", zap.String("user_id", userID), zap.Error(err))
	}
}
