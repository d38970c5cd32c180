package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/z-clinic/backend/internal/model/chat"
	"github.com/zhouzirui/z-clinic/backend/internal/model/persona"
)

// Mode 表示本轮请求如何携带上下文。
type Mode int

const (
	// ModeFirstTurn sends the persona block once, marked cacheable, then the user message.
	ModeFirstTurn Mode = iota + 1
	// ModeContinuation sends only the new user message; the upstream rebuilds context from the handle.
	ModeContinuation
	// ModeFullHistory resends everything for upstreams without server-side memory.
	ModeFullHistory
)

func (m Mode) String() string {
	switch m {
	case ModeFirstTurn:
		return "first_turn"
	case ModeContinuation:
		return "continuation"
	case ModeFullHistory:
		return "full_history"
	default:
		return "unknown"
	}
}

// Payload is the ordered message sequence for one generation call.
type Payload struct {
	Mode     Mode
	Messages []chat.Message
	// Cacheable marks Messages[0] as a persona block the upstream may cache.
	Cacheable bool
	// CacheKey groups cacheable persona blocks across sessions.
	CacheKey string
	// Speaker is the persona name, used to clean speaker labels out of replies.
	Speaker string
}

// HasPersona reports whether the persona block leads the payload.
func (p Payload) HasPersona() bool {
	return len(p.Messages) > 0 && p.Messages[0].Role == chat.RolePersona
}

// UserMessage returns the newest user message in the payload.
func (p Payload) UserMessage() string {
	for i := len(p.Messages) - 1; i >= 0; i-- {
		if p.Messages[i].Role == chat.RoleUser {
			return p.Messages[i].Content
		}
	}
	return ""
}

// AssembleInput carries everything Assemble reads. History holds the stored
// user/assistant exchanges and is never modified.
type AssembleInput struct {
	Persona      persona.Context
	History      []chat.Message
	UserMessage  string
	Handle       string
	HistoryLimit int
}

// SelectMode derives the context strategy from stored history and the handle.
func SelectMode(history []chat.Message, handle string) Mode {
	switch {
	case countRole(history, chat.RoleUser) == 0:
		return ModeFirstTurn
	case handle != "":
		return ModeContinuation
	default:
		return ModeFullHistory
	}
}

// Assemble builds the outbound payload. Whenever the persona block is included
// it is element 0.
func Assemble(in AssembleInput) Payload {
	mode := SelectMode(in.History, in.Handle)
	block := in.Persona.Block()

	payload := Payload{
		Mode:    mode,
		Speaker: in.Persona.Name,
	}

	switch mode {
	case ModeFirstTurn:
		msgs := make([]chat.Message, 0, 2)
		if block != "" {
			msgs = append(msgs, chat.Message{Role: chat.RolePersona, Content: block})
			payload.Cacheable = true
			payload.CacheKey = cacheKey(in.Persona)
		}
		payload.Messages = append(msgs, chat.Message{Role: chat.RoleUser, Content: in.UserMessage})

	case ModeContinuation:
		payload.Messages = []chat.Message{{Role: chat.RoleUser, Content: in.UserMessage}}

	case ModeFullHistory:
		history := trimHistory(in.History, in.HistoryLimit)
		msgs := make([]chat.Message, 0, len(history)+3)
		if block != "" {
			msgs = append(msgs, chat.Message{Role: chat.RolePersona, Content: block})
		}
		for _, msg := range history {
			switch msg.Role {
			case chat.RoleUser, chat.RoleAssistant:
				msgs = append(msgs, chat.Message{Role: msg.Role, Content: msg.Content})
			case chat.RolePersona, chat.RoleDirective:
				// 存储的历史只应包含问答，其他角色在此丢弃。
			}
		}
		msgs = append(msgs,
			chat.Message{Role: chat.RoleDirective, Content: Directive(in.Persona.Name)},
			chat.Message{Role: chat.RoleUser, Content: in.UserMessage},
		)
		payload.Messages = msgs
	}

	return payload
}

// Directive is the transient stay-in-character reminder placed before the newest user message.
func Directive(name string) string {
	if strings.TrimSpace(name) == "" {
		return "Remember to stay in character. Respond only as the patient would."
	}
	return fmt.Sprintf("Remember, you are %s. Respond as %s would, and only as %s.", name, name, name)
}

// trimHistory keeps the last limit exchanges. A limit of 0 keeps everything.
func trimHistory(history []chat.Message, limit int) []chat.Message {
	if limit <= 0 {
		return history
	}

	seen := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != chat.RoleUser {
			continue
		}
		seen++
		if seen == limit {
			return history[i:]
		}
	}
	return history
}

func countRole(history []chat.Message, role chat.Role) int {
	n := 0
	for _, msg := range history {
		if msg.Role == role {
			n++
		}
	}
	return n
}

func cacheKey(pc persona.Context) string {
	if pc.PersonaID == "" {
		return ""
	}
	return "persona:" + pc.PersonaID
}
