package chat

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-clinic/backend/internal/model/chat"
	chatService "github.com/zhouzirui/z-clinic/backend/internal/service/chat"
	"github.com/zhouzirui/z-clinic/backend/internal/store/transcript"
	"github.com/zhouzirui/z-clinic/backend/pkg/utils"
)

// Handler 会话状态机的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Route("/sessions/{sessionID}", func(s chi.Router) {
		s.Post("/start", h.handleStart)
		s.Post("/chat", h.handleChat)
		s.Post("/restart", h.handleRestart)
		s.Get("/status", h.handleStatus)
		s.Get("/transcript", h.handleTranscript)
	})
}

// TurnResponse is the wire shape of a turn. ResponseID is null when the
// upstream holds no continuation for the session.
type TurnResponse struct {
	Response       string  `json:"response"`
	ResponseID     *string `json:"responseId"`
	Ended          bool    `json:"ended"`
	TurnsRemaining int     `json:"turnsRemaining"`
	Outcome        string  `json:"outcome"`
}

// NewTurnResponse converts a service result to its wire shape.
func NewTurnResponse(res chatService.TurnResult) TurnResponse {
	out := TurnResponse{
		Response:       res.Response,
		Ended:          res.Ended,
		TurnsRemaining: res.TurnsRemaining,
		Outcome:        string(res.Outcome),
	}
	if res.Handle != "" {
		handle := res.Handle
		out.ResponseID = &handle
	}
	return out
}

type sessionResponse struct {
	ID        string     `json:"id"`
	PersonaID string     `json:"personaId"`
	Phase     chat.Phase `json:"phase"`
}

// handleCreateSession 创建会话，personaId 可省略。
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID string `json:"personaId"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.chatSvc.CreateSession(r.Context(), strings.TrimSpace(payload.PersonaID))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, sessionResponse{
		ID:        session.ID,
		PersonaID: session.PersonaID,
		Phase:     session.Phase,
	})
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	res, err := h.chatSvc.Start(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, NewTurnResponse(res))
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message            string `json:"message"`
		PreviousResponseID string `json:"previousResponseId"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	res, err := h.chatSvc.SubmitTurn(r.Context(), chi.URLParam(r, "sessionID"), payload.Message, strings.TrimSpace(payload.PreviousResponseID))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, NewTurnResponse(res))
}

func (h *Handler) handleRestart(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.Restart(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.chatSvc.Status(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, status)
}

// handleTranscript 以 JSONL 格式导出会话记录。
func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	records, err := h.chatSvc.Transcript(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", transcript.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="transcript-`+sessionID+`.jsonl"`)
	w.WriteHeader(http.StatusOK)
	if err := transcript.WriteJSONL(w, records); err != nil {
		log.Printf("[transcript] export for session %s failed: %v", sessionID, err)
	}
}

// respondServiceError maps service errors to HTTP status codes.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionIDRequired):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrPersonaNotFound):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrInvalidState):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("[chat] request failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
