package http

import (
	"errors"
	stdhttp "net/http"

	"github.com/dkeye/coroom/internal/app/orch"
	"github.com/dkeye/coroom/internal/executor"
	"github.com/dkeye/coroom/internal/languages"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	orch         *orch.Orchestrator
	executor     *executor.Executor
	languages    *languages.Resolver
	maxBodyBytes int64
}

type RunRequest struct {
	Language string  `json:"language"`
	Code     *string `json:"code"`
	Stdin    string  `json:"stdin"`
}

func (h *handlers) run(c *gin.Context) {
	if h.maxBodyBytes > 0 {
		c.Request.Body = stdhttp.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	}

	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *stdhttp.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(stdhttp.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		c.JSON(stdhttp.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Language == "" {
		c.JSON(stdhttp.StatusBadRequest, gin.H{"error": "language is required"})
		return
	}
	if req.Code == nil {
		c.JSON(stdhttp.StatusBadRequest, gin.H{"error": "code must be a string"})
		return
	}

	res, err := h.executor.Execute(c.Request.Context(), executor.ExecuteOptions{
		LanguageID: req.Language,
		SourceCode: *req.Code,
		Stdin:      req.Stdin,
	})
	switch {
	case err == nil:
		c.JSON(stdhttp.StatusOK, res)
	case errors.Is(err, executor.ErrInvalidRequest):
		c.JSON(stdhttp.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, executor.ErrUnavailable):
		c.JSON(stdhttp.StatusServiceUnavailable, gin.H{"error": "execution capacity unavailable"})
	default:
		log.Error().Err(err).Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("run failed")
		c.JSON(stdhttp.StatusInternalServerError, gin.H{"error": "internal error", "detail": err.Error()})
	}
}

func (h *handlers) rooms(c *gin.Context) {
	c.JSON(stdhttp.StatusOK, h.orch.Rooms())
}

type languageInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (h *handlers) listLanguages(c *gin.Context) {
	langs := h.languages.List()
	out := make([]languageInfo, 0, len(langs))
	for _, l := range langs {
		out = append(out, languageInfo{ID: l.ID, Name: l.Name})
	}
	c.JSON(stdhttp.StatusOK, out)
}
