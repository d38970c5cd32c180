package ai

import (
	"context"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/zhouzirui/z-clinic/backend/internal/config"
	"github.com/zhouzirui/z-clinic/backend/internal/model/chat"
)

// OpenAIGenerator calls the OpenAI Responses API. The response id doubles as the
// continuation handle, so later turns can send only the new user message.
type OpenAIGenerator struct {
	client    openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
	observer  Observer
}

// NewOpenAIGenerator builds a generator from config. Extra options are applied
// after the configured ones.
func NewOpenAIGenerator(cfg config.AIConfig, observer Observer, opts ...option.RequestOption) *OpenAIGenerator {
	if observer == nil {
		observer = nopObserver{}
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(cfg.OpenAIAPIKey),
		// 请求总时长由 timeout 约束，不在客户端内部重试。
		option.WithMaxRetries(0),
	}
	if cfg.OpenAIBaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.OpenAIBaseURL))
	}
	clientOpts = append(clientOpts, opts...)

	return &OpenAIGenerator{
		client:    openai.NewClient(clientOpts...),
		model:     cfg.OpenAIModel,
		maxTokens: cfg.MaxOutputTokens,
		timeout:   cfg.RequestTimeout,
		observer:  observer,
	}
}

// Name implements Generator.
func (g *OpenAIGenerator) Name() string { return config.ProviderOpenAI }

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, payload Payload, handle string) Result {
	started := time.Now()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	params := responses.ResponseNewParams{
		Model: g.model,
		// 续写依赖服务端保存的上一轮响应。
		Store: openai.Bool(true),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: inputItems(payload.Messages),
		},
	}
	if g.maxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(g.maxTokens))
	}
	if payload.Mode == ModeContinuation && handle != "" {
		params.PreviousResponseID = openai.String(handle)
	}
	if payload.Cacheable && payload.CacheKey != "" {
		params.PromptCacheKey = openai.String(payload.CacheKey)
	}

	resp, err := g.client.Responses.New(ctx, params)
	if err != nil {
		return fail(g.observer, g.Name(), started, err)
	}

	text := cleanReply(responseText(resp), payload.Speaker)
	if text == "" {
		return fail(g.observer, g.Name(), started, ErrEmptyReply)
	}

	return succeed(g.observer, g.Name(), started, text, resp.ID)
}

func inputItems(messages []chat.Message) []responses.ResponseInputItemUnionParam {
	items := make([]responses.ResponseInputItemUnionParam, 0, len(messages))
	for _, msg := range messages {
		var role responses.EasyInputMessageRole
		switch msg.Role {
		case chat.RolePersona:
			role = responses.EasyInputMessageRoleSystem
		case chat.RoleDirective:
			role = responses.EasyInputMessageRoleDeveloper
		case chat.RoleUser:
			role = responses.EasyInputMessageRoleUser
		case chat.RoleAssistant:
			role = responses.EasyInputMessageRoleAssistant
		default:
			continue
		}
		items = append(items, responses.ResponseInputItemParamOfMessage(msg.Content, role))
	}
	return items
}

// responseText prefers the first populated structured content block and falls
// back to the flat output text.
func responseText(resp *responses.Response) string {
	if resp == nil {
		return ""
	}
	for _, item := range resp.Output {
		for _, part := range item.Content {
			if strings.TrimSpace(part.Text) != "" {
				return part.Text
			}
		}
	}
	return resp.OutputText()
}
