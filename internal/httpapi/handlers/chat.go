package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/pentabot/backend/internal/chat"
	"github.com/pentabot/backend/internal/common"
	"go.uber.org/zap"
)

// chatRef accepts chatId as a number, a numeric string, or null.
type chatRef struct {
	ID *uint64
}

func (r *chatRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		r.ID = nil
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		r.ID = nil
		return nil
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return err
	}
	r.ID = &id
	return nil
}

type sendMessageReq struct {
	Message string  `json:"message" binding:"required"`
	ChatID  chatRef `json:"chatId"`
}

type chatSummaryDTO struct {
	ID            uint64    `json:"id"`
	Title         string    `json:"title"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

type messageDTO struct {
	ID        uint64      `json:"id"`
	ChatID    uint64      `json:"chatId"`
	Sender    chat.Sender `json:"sender"`
	Text      string      `json:"text"`
	Orphaned  bool        `json:"orphaned"`
	CreatedAt time.Time   `json:"createdAt"`
}

type jobDTO struct {
	ID        string         `json:"id"`
	Status    chat.JobStatus `json:"status"`
	ChatID    *uint64        `json:"chatId"`
	Reply     *string        `json:"reply"`
	ChatTitle *string        `json:"chatTitle"`
	Credits   *int           `json:"credits"`
	Error     *string        `json:"error"`
	CreatedAt time.Time      `json:"createdAt"`
}

func toJobDTO(j *chat.Job) jobDTO {
	chatID := j.ResultChatID
	if chatID == nil {
		chatID = j.ChatID
	}
	return jobDTO{
		ID:        j.ID,
		Status:    j.Status,
		ChatID:    chatID,
		Reply:     j.Reply,
		ChatTitle: j.ChatTitle,
		Credits:   j.Credits,
		Error:     j.Error,
		CreatedAt: j.CreatedAt,
	}
}

func chatIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("chatId"), 10, 64)
	if err != nil || id == 0 {
		// a malformed id can never name an owned chat
		common.Fail(c, http.StatusNotFound, "Chat not found")
		return 0, false
	}
	return id, true
}

func bindSend(c *gin.Context) (sendMessageReq, bool) {
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			common.Fail(c, http.StatusBadRequest, "Message is required")
		} else {
			common.Fail(c, http.StatusBadRequest, "Invalid request body")
		}
		return req, false
	}
	if strings.TrimSpace(req.Message) == "" {
		common.Fail(c, http.StatusBadRequest, "Message is required")
		return req, false
	}
	return req, true
}

func (h *Handler) SendMessage(c *gin.Context) {
	uid, ok := h.currentUser(c)
	if !ok {
		return
	}
	req, ok := bindSend(c)
	if !ok {
		return
	}

	res, err := h.ChatSvc.HandleSend(c.Request.Context(), uid, req.ChatID.ID, req.Message)
	if err != nil {
		h.writeError(c, err, "Chat error")
		return
	}

	common.OK(c, http.StatusOK, gin.H{
		"reply":     res.Reply,
		"chatId":    res.ChatID,
		"credits":   res.Credits,
		"chatTitle": res.ChatTitle,
	})
}

func (h *Handler) SendMessageAsync(c *gin.Context) {
	uid, ok := h.currentUser(c)
	if !ok {
		return
	}
	if h.Jobs == nil {
		common.Fail(c, http.StatusServiceUnavailable, "Async processing unavailable")
		return
	}
	req, ok := bindSend(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	job, created, err := h.ChatSvc.EnqueueSend(ctx, uid, req.ChatID.ID, req.Message, c.GetHeader("Idempotency-Key"))
	if err != nil {
		h.writeError(c, err, "Chat error")
		return
	}

	// a replay of a still-queued job republishes it in case the first publish was lost
	if job.Status == chat.JobQueued {
		if err := h.Jobs.PublishJob(ctx, job.ID); err != nil {
			h.Log.Error("publish job", zap.String("job_id", job.ID), zap.Error(err))
			common.Fail(c, http.StatusServiceUnavailable, "Failed to enqueue job")
			return
		}
	}

	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}
	common.OK(c, status, gin.H{"jobId": job.ID, "status": job.Status})
}

func (h *Handler) GetJob(c *gin.Context) {
	uid, ok := h.currentUser(c)
	if !ok {
		return
	}
	job, err := h.ChatSvc.GetJob(c.Request.Context(), uid, c.Param("jobId"))
	if err != nil {
		h.writeError(c, err, "Failed to fetch job")
		return
	}
	common.OK(c, http.StatusOK, gin.H{"job": toJobDTO(job)})
}

func (h *Handler) ListChats(c *gin.Context) {
	uid, ok := h.currentUser(c)
	if !ok {
		return
	}
	list, err := h.ChatSvc.ListChats(c.Request.Context(), uid)
	if err != nil {
		h.writeError(c, err, "Failed to fetch chats")
		return
	}

	chats := make([]chatSummaryDTO, 0, len(list))
	for _, s := range list {
		chats = append(chats, chatSummaryDTO{
			ID:            s.ID,
			Title:         s.Title,
			LastMessage:   s.LastMessage,
			LastMessageAt: s.LastMessageAt,
		})
	}
	common.OK(c, http.StatusOK, gin.H{"chats": chats})
}

func (h *Handler) GetChat(c *gin.Context) {
	uid, ok := h.currentUser(c)
	if !ok {
		return
	}
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	ch, msgs, err := h.ChatSvc.GetChat(c.Request.Context(), uid, chatID)
	if err != nil {
		h.writeError(c, err, "Failed to fetch messages")
		return
	}
	messages := make([]messageDTO, 0, len(msgs))
	for _, m := range msgs {
		messages = append(messages, messageDTO{
			ID:        m.ID,
			ChatID:    m.ChatID,
			Sender:    m.Sender,
			Text:      m.Text,
			Orphaned:  m.Orphaned,
			CreatedAt: m.CreatedAt,
		})
	}
	common.OK(c, http.StatusOK, gin.H{
		"chat": gin.H{
			"id":       ch.ID,
			"title":    ch.Title,
			"messages": messages,
		},
	})
}

func (h *Handler) DeleteChat(c *gin.Context) {
	uid, ok := h.currentUser(c)
	if !ok {
		return
	}
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	if err := h.ChatSvc.DeleteChat(c.Request.Context(), uid, chatID); err != nil {
		h.writeError(c, err, "Failed to delete chat")
		return
	}
	common.OK(c, http.StatusOK, gin.H{"msg": "Chat deleted successfully"})
}

func (h *Handler) GetCredits(c *gin.Context) {
	uid, ok := h.currentUser(c)
	if !ok {
		return
	}
	user, err := h.Users.Get(c.Request.Context(), uid)
	if err != nil {
		h.writeError(c, err, "Failed to fetch credits")
		return
	}
	common.OK(c, http.StatusOK, gin.H{
		"credits": user.Credits,
		"user": gin.H{
			"id":       user.ID,
			"username": user.Username,
			"email":    user.Email,
		},
	})
}
