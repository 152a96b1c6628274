package testutil

import (
	"context"
	"testing"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/revisioned/internal/domain/story"
)

func SeedStory(tb testing.TB, ctx context.Context, tx *gorm.DB, title string, tags ...string) *story.Story {
	tb.Helper()
	s := &story.Story{Title: title, Body: title + " body"}
	if len(tags) > 0 {
		s.Tags = mustTags(tb, tags)
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed story: %v", err)
	}
	return s
}

func mustTags(tb testing.TB, tags []string) datatypes.JSON {
	tb.Helper()
	b, err := story.EncodeTags(tags)
	if err != nil {
		tb.Fatalf("encode tags: %v", err)
	}
	return b
}
