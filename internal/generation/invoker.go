package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker"
)

// InvokerConfig holds retry, timeout and circuit breaker settings.
type InvokerConfig struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int

	// RetryDelay is the fixed pause between attempts
	RetryDelay time.Duration

	// AttemptTimeout bounds each individual call
	AttemptTimeout time.Duration

	// BreakerFailures is how many consecutive failed calls open the breaker.
	// Zero disables tripping
	BreakerFailures uint32

	// BreakerCooldown is how long the breaker stays open before probing again
	BreakerCooldown time.Duration

	// BreakerProbes is how many calls a half-open breaker lets through. It
	// should be at least the number of concurrently running tasks
	BreakerProbes uint32
}

// DefaultInvokerConfig returns 3 attempts, 2 s apart, 120 s each, with the
// breaker tripping disabled.
func DefaultInvokerConfig() InvokerConfig {
	return InvokerConfig{
		MaxRetries:      2,
		RetryDelay:      2 * time.Second,
		AttemptTimeout:  120 * time.Second,
		BreakerCooldown: 30 * time.Second,
		BreakerProbes:   3,
	}
}

// ResilientInvoker implements Invoker over a Transport.
type ResilientInvoker struct {
	transport Transport
	config    InvokerConfig
	breaker   *gobreaker.CircuitBreaker
	logger    *slog.Logger
}

// NewResilientInvoker creates an invoker.
//
// Parameters:
//   - transport: the backend adapter that performs one call
//   - config: retry, timeout and breaker settings
//   - logger: structured logger for attempt-level logging
//
// Returns:
//   - A ready ResilientInvoker or an error wrapping ErrInvalidConfig
func NewResilientInvoker(transport Transport, config InvokerConfig, logger *slog.Logger) (*ResilientInvoker, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: transport cannot be nil", ErrInvalidConfig)
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if config.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: max retries cannot be negative", ErrInvalidConfig)
	}
	if config.RetryDelay < 0 {
		return nil, fmt.Errorf("%w: retry delay cannot be negative", ErrInvalidConfig)
	}
	if config.AttemptTimeout <= 0 {
		return nil, fmt.Errorf("%w: attempt timeout must be positive", ErrInvalidConfig)
	}

	if config.BreakerProbes == 0 {
		config.BreakerProbes = 1
	}

	threshold := config.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "generative-model",
		MaxRequests: config.BreakerProbes,
		Timeout:     config.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return threshold > 0 && counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// invalid requests and blocked content say nothing about backend health
			return err == nil || errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrContentBlocked) ||
				errors.Is(err, ErrInvalidConfig)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("model circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})

	return &ResilientInvoker{
		transport: transport,
		config:    config,
		breaker:   breaker,
		logger:    logger,
	}, nil
}

// Invoke sends req, retrying failed attempts after a fixed delay. Blocked
// content and a misconfigured transport are not retried. A call rejected by
// the breaker counts as a failed attempt and is retried like any other.
func (i *ResilientInvoker) Invoke(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	mode := "text"
	if req.IsVision() {
		mode = "vision"
	}
	maxAttempts := i.config.MaxRetries + 1
	logger := i.logger.With("model_mode", mode, "max_attempts", maxAttempts)

	attempts := 0
	var lastErr error

	backoff := retry.WithMaxRetries(uint64(i.config.MaxRetries), retry.NewConstant(i.config.RetryDelay))
	text, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (string, error) {
		attempts++
		start := time.Now()
		logger.InfoContext(ctx, "calling generative model",
			"attempt", attempts,
			"prompt_length", len(req.Prompt),
			"image_bytes", len(req.Image))

		out, err := i.attempt(ctx, req)
		elapsed := time.Since(start).Milliseconds()
		if err == nil {
			logger.InfoContext(ctx, "generative model call succeeded",
				"attempt", attempts,
				"elapsed_ms", elapsed,
				"response_length", len(out))
			return out, nil
		}

		lastErr = err
		logger.ErrorContext(ctx, "generative model call failed",
			"attempt", attempts,
			"elapsed_ms", elapsed,
			"error", err)

		if errors.Is(err, ErrContentBlocked) || errors.Is(err, ErrInvalidConfig) {
			return "", err
		}
		if attempts < maxAttempts {
			logger.InfoContext(ctx, "retrying after delay",
				"attempt", attempts,
				"delay_ms", i.config.RetryDelay.Milliseconds())
		}
		return "", retry.RetryableError(err)
	})
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return "", &ModelError{Attempts: attempts, LastCause: lastErr}
	}
	return text, nil
}

// attempt makes one bounded call through the breaker.
func (i *ResilientInvoker) attempt(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, i.config.AttemptTimeout)
	defer cancel()

	out, err := i.breaker.Execute(func() (interface{}, error) {
		var text string
		var err error
		if req.IsVision() {
			text, err = i.transport.GenerateVision(ctx, req)
		} else {
			text, err = i.transport.GenerateText(ctx, req)
		}
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return "", fmt.Errorf("%w: empty response text", ErrInvalidResponse)
		}
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}
