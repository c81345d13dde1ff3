// Package gateway asks the language model for a plan, retrying on failure.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/perbu/esxiops/plan"
	"golang.org/x/time/rate"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
	RoleModel  Role = "model"
)

// Message is one entry of the conversation sent to the model.
type Message struct {
	Role Role
	Text string
}

// ModelCaller sends an ordered message list to the model and returns its text.
type ModelCaller interface {
	Call(ctx context.Context, messages []Message) (string, error)
}

// CallerFunc adapts a function to ModelCaller.
type CallerFunc func(ctx context.Context, messages []Message) (string, error)

// Call implements ModelCaller.
func (f CallerFunc) Call(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}

// ErrAIUnavailable is returned once every attempt to reach the model failed.
var ErrAIUnavailable = errors.New("model unavailable")

// UnavailableError carries the last underlying failure after retries ran out.
type UnavailableError struct {
	Attempts int
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("model unavailable after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *UnavailableError) Unwrap() []error { return []error{ErrAIUnavailable, e.Err} }

// Settings configures the gateway.
type Settings struct {
	SystemPrompt string
	// MaxAttempts is the total number of model calls per turn, at least 1.
	MaxAttempts int
	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration
	// RequestsPerMinute throttles model calls; zero disables throttling.
	RequestsPerMinute float64
}

// Gateway wraps a ModelCaller with the retry policy and message assembly.
type Gateway struct {
	caller   ModelCaller
	settings Settings
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// New creates a Gateway.
func New(caller ModelCaller, settings Settings, logger *slog.Logger) *Gateway {
	if settings.MaxAttempts < 1 {
		settings.MaxAttempts = 1
	}
	g := &Gateway{
		caller:   caller,
		settings: settings,
		logger:   logger,
	}
	if settings.RequestsPerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(settings.RequestsPerMinute/60), 1)
	}
	return g
}

// Converse sends the system instruction, the transcript and userText to the
// model and extracts a plan from the answer. Call failures and empty answers
// each consume one attempt; after MaxAttempts the last failure is returned
// wrapped in an *UnavailableError.
func (g *Gateway) Converse(ctx context.Context, userText string, transcript []Message) (*plan.Plan, error) {
	messages := g.Messages(userText, transcript)

	var (
		attempts int
		result   *plan.Plan
	)
	op := func() error {
		attempts++
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		text, err := g.caller.Call(ctx, messages)
		if err == nil {
			result, err = plan.Extract(text)
		}
		if err != nil {
			g.logger.Warn("model call failed", "attempt", attempts, "max_attempts", g.settings.MaxAttempts, "error", err)
			return err
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(g.settings.RetryDelay), uint64(g.settings.MaxAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, &UnavailableError{Attempts: attempts, Err: err}
	}

	if result.ParseErr != nil {
		g.logger.Debug("model response is not a plan, showing it verbatim", "error", result.ParseErr)
	}
	return result, nil
}

// Messages builds the ordered message list for one call: the system
// instruction, then the transcript, then the new user turn.
func (g *Gateway) Messages(userText string, transcript []Message) []Message {
	messages := make([]Message, 0, len(transcript)+2)
	messages = append(messages, Message{Role: RoleSystem, Text: g.settings.SystemPrompt})
	messages = append(messages, transcript...)
	messages = append(messages, Message{Role: RoleUser, Text: userText})
	return messages
}
