package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbillet/routier/internal/ai"
	"github.com/tbillet/routier/internal/model"
	"github.com/tbillet/routier/internal/pkg/errcode"
	apperr "github.com/tbillet/routier/internal/pkg/errors"
	"github.com/tbillet/routier/internal/pkg/response"
	"github.com/tbillet/routier/internal/safety"
	"github.com/tbillet/routier/internal/service"
	"github.com/tbillet/routier/internal/store"
)

type ChatHandler struct {
	answers    *service.AnswerService
	corpus     *store.Store
	embedModel string
}

func NewChatHandler(answers *service.AnswerService, corpus *store.Store, embedModel string) *ChatHandler {
	return &ChatHandler{answers: answers, corpus: corpus, embedModel: embedModel}
}

type chatRequest struct {
	Question string `json:"question"`
}

func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid request")
		return
	}
	answer, err := h.answers.Ask(c.Request.Context(), req.Question)
	if err != nil {
		var rejected *service.InputRejectedError
		switch {
		case errors.As(err, &rejected):
			code := errcode.ErrQueryTooShort
			if rejected.Reason == safety.ReasonBanned {
				code = errcode.ErrQueryBanned
			}
			response.Error(c, http.StatusBadRequest, code, string(rejected.Reason))
		case errors.Is(err, ai.ErrUnavailable):
			response.Error(c, http.StatusServiceUnavailable, errcode.ErrAIUnavailable, "ai not configured")
		case apperr.IsIndexUnavailable(err):
			response.Error(c, http.StatusServiceUnavailable, errcode.ErrIndexUnavailable, "corpus unavailable")
		default:
			response.Error(c, http.StatusInternalServerError, errcode.ErrInternal, "internal error")
		}
		return
	}
	response.Success(c, answer)
}

func (h *ChatHandler) Plan(c *gin.Context) {
	entries := h.corpus.Plan()
	if entries == nil {
		entries = []model.PlanEntry{}
	}
	response.Success(c, gin.H{"items": entries})
}

func (h *ChatHandler) Status(c *gin.Context) {
	response.Success(c, gin.H{
		"chunks":          h.corpus.Size(),
		"index_engine":    h.corpus.Engine(),
		"embedding_model": h.embedModel,
	})
}
