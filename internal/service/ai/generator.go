package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zhouzirui/z-clinic/backend/internal/config"
)

// FallbackReply replaces the reply whenever the upstream call fails.
const FallbackReply = "I need to take a break from this session. Thank you for understanding."

var (
	// ErrNoProvider is reported when no generation provider is configured.
	ErrNoProvider = errors.New("no generation provider configured")
	// ErrEmptyReply is reported when the upstream answers with no usable text.
	ErrEmptyReply = errors.New("upstream returned an empty reply")
)

// Result is what one generation call produced.
type Result struct {
	Text   string
	Handle string
	// Continuation reports whether the upstream kept server-side memory for this turn.
	Continuation bool
	// Failed is set when Text is FallbackReply because the upstream call failed.
	Failed bool
}

// Generator produces persona replies. Generate never returns an error: upstream
// failures come back as FallbackReply with an empty handle.
type Generator interface {
	Generate(ctx context.Context, payload Payload, handle string) Result
	Name() string
}

// Observer receives the outcome of every generation call. err is nil on success.
type Observer interface {
	ObserveGeneration(provider string, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveGeneration(string, time.Duration, error) {}

// NewGenerator 根据配置选择生成服务，未配置任何凭证时返回 ErrNoProvider。
func NewGenerator(ctx context.Context, cfg config.AIConfig, observer Observer) (Generator, error) {
	switch cfg.ResolvedProvider() {
	case config.ProviderOpenAI:
		return NewOpenAIGenerator(cfg, observer), nil
	case config.ProviderArk:
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		return NewArkGenerator(ctx, chatModel, cfg, observer)
	default:
		return nil, ErrNoProvider
	}
}

// Unavailable returns a generator that always answers with FallbackReply.
// It keeps the session flow usable when no provider is configured.
func Unavailable(observer Observer) Generator {
	if observer == nil {
		observer = nopObserver{}
	}
	return unavailable{observer: observer}
}

type unavailable struct {
	observer Observer
}

func (u unavailable) Name() string { return "unavailable" }

func (u unavailable) Generate(context.Context, Payload, string) Result {
	return fail(u.observer, u.Name(), time.Now(), ErrNoProvider)
}

// fail logs and reports a failed call, returning the fallback result.
func fail(observer Observer, provider string, started time.Time, err error) Result {
	elapsed := time.Since(started)
	log.Printf("[ai] %s generation failed after %s: %v", provider, elapsed.Round(time.Millisecond), err)
	observer.ObserveGeneration(provider, elapsed, err)
	return Result{Text: FallbackReply, Failed: true}
}

// succeed reports a successful call and assembles the result.
func succeed(observer Observer, provider string, started time.Time, text, handle string) Result {
	observer.ObserveGeneration(provider, time.Since(started), nil)
	return Result{
		Text:         text,
		Handle:       handle,
		Continuation: handle != "",
	}
}

// cleanReply strips a leading "<speaker>:" label and cuts the reply where the
// model starts writing the clinician's side of the dialogue.
func cleanReply(text, speaker string) string {
	reply := strings.TrimSpace(text)

	if speaker != "" {
		label := speaker + ":"
		for len(reply) >= len(label) && strings.EqualFold(reply[:len(label)], label) {
			reply = strings.TrimSpace(reply[len(label):])
		}
	}

	if idx := strings.Index(reply, "Clinician:"); idx >= 0 {
		reply = reply[:idx]
	}
	return strings.TrimSpace(reply)
}
