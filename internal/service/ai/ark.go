package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/z-clinic/backend/internal/config"
	"github.com/zhouzirui/z-clinic/backend/internal/model/chat"
)

// ArkGenerator runs payloads through an eino chain over the Ark chat model.
// Ark keeps no conversation state, so results never carry a handle and every
// turn after the first is sent with full history.
type ArkGenerator struct {
	chain    compose.Runnable[Payload, *schema.Message]
	timeout  time.Duration
	observer Observer
}

// NewArkGenerator compiles the payload → messages → chat model chain.
func NewArkGenerator(ctx context.Context, chatModel model.BaseChatModel, cfg config.AIConfig, observer Observer) (*ArkGenerator, error) {
	if observer == nil {
		observer = nopObserver{}
	}

	chain := compose.NewChain[Payload, *schema.Message]()
	chain.AppendLambda(compose.InvokableLambda(func(_ context.Context, p Payload) ([]*schema.Message, error) {
		return schemaMessages(p.Messages)
	}))
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ArkGenerator{
		chain:    runnable,
		timeout:  cfg.RequestTimeout,
		observer: observer,
	}, nil
}

// Name implements Generator.
func (g *ArkGenerator) Name() string { return config.ProviderArk }

// Generate implements Generator. The handle is ignored.
func (g *ArkGenerator) Generate(ctx context.Context, payload Payload, _ string) Result {
	started := time.Now()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	response, err := g.chain.Invoke(ctx, payload)
	if err != nil {
		return fail(g.observer, g.Name(), started, fmt.Errorf("failed to run AI chain: %w", err))
	}
	if response == nil {
		return fail(g.observer, g.Name(), started, ErrEmptyReply)
	}

	text := cleanReply(response.Content, payload.Speaker)
	if text == "" {
		return fail(g.observer, g.Name(), started, ErrEmptyReply)
	}

	return succeed(g.observer, g.Name(), started, text, "")
}

// schemaMessages maps payload roles onto eino messages. Consecutive system
// content is kept as separate system messages in payload order.
func schemaMessages(messages []chat.Message) ([]*schema.Message, error) {
	out := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		switch msg.Role {
		case chat.RolePersona, chat.RoleDirective:
			out = append(out, schema.SystemMessage(content))
		case chat.RoleUser:
			out = append(out, schema.UserMessage(content))
		case chat.RoleAssistant:
			out = append(out, schema.AssistantMessage(content, nil))
		default:
			return nil, fmt.Errorf("unsupported message role %d", msg.Role)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	return out, nil
}
