package stories

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/revisioned/internal/domain/story"
	"github.com/yungbote/revisioned/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/revisioned/internal/pkg/errors"
	"github.com/yungbote/revisioned/internal/platform/logger"
	"github.com/yungbote/revisioned/internal/revision"
)

// StoryPatch carries the fields of a partial update. Nil means unchanged.
type StoryPatch struct {
	Title *string
	Body  *string
	Tags  *[]string
}

func (p StoryPatch) Empty() bool {
	return p.Title == nil && p.Body == nil && p.Tags == nil
}

type StoryRepo interface {
	Create(dbc dbctx.Context, s *story.Story) (*story.Story, error)
	GetByID(dbc dbctx.Context, id uint) (*story.Story, error)
	Update(dbc dbctx.Context, id uint, patch StoryPatch) (*story.Story, error)
	ListVersions(dbc dbctx.Context, id uint) ([]*story.Story, error)
}

type storyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStoryRepo(db *gorm.DB, baseLog *logger.Logger) StoryRepo {
	return &storyRepo{db: db, log: baseLog.With("repo", "StoryRepo")}
}

func (r *storyRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if dbc.Ctx != nil {
		transaction = transaction.WithContext(dbc.Ctx)
	}
	return transaction
}

func (r *storyRepo) Create(dbc dbctx.Context, s *story.Story) (*story.Story, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: missing story", pkgerrors.ErrInvalidArgument)
	}
	if strings.TrimSpace(s.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", pkgerrors.ErrInvalidArgument)
	}
	if err := r.tx(dbc).Create(s).Error; err != nil {
		return nil, r.saveErr("create", s, err)
	}
	return s, nil
}

func (r *storyRepo) GetByID(dbc dbctx.Context, id uint) (*story.Story, error) {
	if id == 0 {
		return nil, fmt.Errorf("%w: missing id", pkgerrors.ErrInvalidArgument)
	}
	var s story.Story
	if err := r.tx(dbc).Where("id = ?", id).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("story %d: %w", id, pkgerrors.ErrNotFound)
		}
		return nil, err
	}
	return &s, nil
}

// Update applies patch to the stored story and saves it. The story's own
// hook moves UpdatedAt only when the patch actually changes something, so a
// no-op patch does not create a version.
func (r *storyRepo) Update(dbc dbctx.Context, id uint, patch StoryPatch) (*story.Story, error) {
	s, err := r.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title is required", pkgerrors.ErrInvalidArgument)
		}
		s.Title = title
	}
	if patch.Body != nil {
		s.Body = *patch.Body
	}
	if patch.Tags != nil {
		tags, err := story.EncodeTags(*patch.Tags)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidArgument, err)
		}
		s.Tags = tags
	}
	if err := r.tx(dbc).Save(s).Error; err != nil {
		return nil, r.saveErr("update", s, err)
	}
	return s, nil
}

// ListVersions returns the stored snapshots of a story, newest first.
func (r *storyRepo) ListVersions(dbc dbctx.Context, id uint) ([]*story.Story, error) {
	s, err := r.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	snaps, err := revision.Versions(r.tx(dbc), s, false)
	if err != nil {
		return nil, err
	}
	return revision.DecodeAll[story.Story](snaps)
}

// saveErr logs snapshot failures. The primary row is already stored in that
// case, so the error is returned as is for the caller to report.
func (r *storyRepo) saveErr(op string, s *story.Story, err error) error {
	var snapErr *revision.SnapshotPersistenceError
	if errors.As(err, &snapErr) {
		r.log.Warn("Story saved without snapshot",
			"op", op,
			"story_id", s.ID,
			"duplicate", revision.DuplicateSnapshot(err),
			"error", err,
		)
	}
	return err
}
