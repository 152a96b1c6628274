package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/revisioned/internal/data/repos/stories"
	"github.com/yungbote/revisioned/internal/domain/story"
	"github.com/yungbote/revisioned/internal/http/response"
	"github.com/yungbote/revisioned/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/revisioned/internal/pkg/errors"
	"github.com/yungbote/revisioned/internal/platform/ctxutil"
	"github.com/yungbote/revisioned/internal/platform/logger"
)

type StoryHandler struct {
	repo stories.StoryRepo
	log  *logger.Logger
}

func NewStoryHandler(repo stories.StoryRepo, log *logger.Logger) *StoryHandler {
	return &StoryHandler{repo: repo, log: log.With("handler", "StoryHandler")}
}

type storyDTO struct {
	ID        uint      `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toDTO(s *story.Story) storyDTO {
	tags := s.TagList()
	if tags == nil {
		tags = []string{}
	}
	return storyDTO{ID: s.ID, Title: s.Title, Body: s.Body, Tags: tags, UpdatedAt: s.UpdatedAt}
}

// POST /api/stories
// body: { "title": "...", "body": "...", "tags": ["..."] }
func (h *StoryHandler) CreateStory(c *gin.Context) {
	var req struct {
		Title string   `json:"title"`
		Body  string   `json:"body"`
		Tags  []string `json:"tags"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	s := &story.Story{Title: req.Title, Body: req.Body}
	if req.Tags != nil {
		tags, err := story.EncodeTags(req.Tags)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
		s.Tags = tags
	}
	created, err := h.repo.Create(h.dbc(c), s)
	if err != nil {
		h.fail(c, "create", err)
		return
	}
	response.RespondCreated(c, gin.H{"story": toDTO(created)})
}

// GET /api/stories/:id
func (h *StoryHandler) GetStory(c *gin.Context) {
	id, ok := h.storyID(c)
	if !ok {
		return
	}
	s, err := h.repo.GetByID(h.dbc(c), id)
	if err != nil {
		h.fail(c, "get", err)
		return
	}
	response.RespondOK(c, gin.H{"story": toDTO(s)})
}

// PATCH /api/stories/:id
// body: any of { "title", "body", "tags" }
func (h *StoryHandler) UpdateStory(c *gin.Context) {
	id, ok := h.storyID(c)
	if !ok {
		return
	}
	var req struct {
		Title *string   `json:"title"`
		Body  *string   `json:"body"`
		Tags  *[]string `json:"tags"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	patch := stories.StoryPatch{Title: req.Title, Body: req.Body, Tags: req.Tags}
	if patch.Empty() {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("nothing to update"))
		return
	}
	s, err := h.repo.Update(h.dbc(c), id, patch)
	if err != nil {
		h.fail(c, "update", err)
		return
	}
	response.RespondOK(c, gin.H{"story": toDTO(s)})
}

// GET /api/stories/:id/versions
func (h *StoryHandler) ListVersions(c *gin.Context) {
	id, ok := h.storyID(c)
	if !ok {
		return
	}
	versions, err := h.repo.ListVersions(h.dbc(c), id)
	if err != nil {
		h.fail(c, "versions", err)
		return
	}
	out := make([]storyDTO, 0, len(versions))
	for _, v := range versions {
		out = append(out, toDTO(v))
	}
	response.RespondOK(c, gin.H{"versions": out})
}

func (h *StoryHandler) dbc(c *gin.Context) dbctx.Context {
	return dbctx.Context{Ctx: c.Request.Context()}
}

func (h *StoryHandler) storyID(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_id",
			fmt.Errorf("%w: story id %q", pkgerrors.ErrInvalidArgument, raw))
		return 0, false
	}
	return uint(id), true
}

func (h *StoryHandler) fail(c *gin.Context, op string, err error) {
	if !errors.Is(err, pkgerrors.ErrNotFound) && !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		h.log.Error("Story request failed",
			"op", op,
			"request_id", ctxutil.RequestID(c.Request.Context()),
			"error", err,
		)
	}
	_ = c.Error(err)
	response.RespondErr(c, err)
}
