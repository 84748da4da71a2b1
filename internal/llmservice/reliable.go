package llmservice

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"study-planner/internal/helper"
	"study-planner/internal/models"

	"github.com/rs/zerolog/log"
)

var thinkTag = regexp.MustCompile(models.ThinkTag)

var errEmptyCompletion = errors.New("empty completion")

// Reliable bounds every call with a timeout and retries transient failures with backoff.
// Failures come back as *models.UpstreamError.
type Reliable struct {
	model      Model
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewReliable(model Model, timeout time.Duration, maxRetries int, retryDelay time.Duration) *Reliable {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Reliable{
		model:      model,
		timeout:    timeout,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		sleep:      sleepCtx,
	}
}

func (r *Reliable) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	retryable := true

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, helper.CalculateBackoff(r.retryDelay, attempt)); err != nil {
				retryable = false
				break
			}
		}

		text, err := r.attempt(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			// caller gave up, the failure is theirs
			retryable = false
			break
		}
		if permanent(err) {
			retryable = false
			break
		}
		log.Warn().Err(err).Int("attempt", attempt+1).Int("max_attempts", r.maxRetries+1).Msg("llm call failed")
	}

	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return "", &models.UpstreamError{Op: "llm generate", Retryable: retryable, Err: lastErr}
}

func (r *Reliable) attempt(ctx context.Context, prompt string) (string, error) {
	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := r.model.Generate(callCtx, prompt)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("timed out after %s: %w", r.timeout, err)
		}
		return "", err
	}
	log.Debug().Dur("took", time.Since(start)).Int("prompt_chars", len(prompt)).Msg("llm call done")

	text = strings.TrimSpace(thinkTag.ReplaceAllString(text, ""))
	if text == "" {
		return "", errEmptyCompletion
	}
	return text, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
