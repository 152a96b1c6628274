package story_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/revisioned/internal/data/repos/testutil"
	"github.com/yungbote/revisioned/internal/domain/story"
	"github.com/yungbote/revisioned/internal/revision"
)

func TestStoryRevisionScenario(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	s := &story.Story{Title: "A"}
	require.NoError(t, tx.Create(s).Error)
	n, err := revision.CountVersions(tx, s)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	s.Title = "B"
	require.NoError(t, tx.Save(s).Error)
	snaps, err := revision.Versions(tx, s, false)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	v2, _ := snaps[0].Get("updated_at")
	v1, _ := snaps[1].Get("updated_at")
	require.False(t, v1.(time.Time).Equal(v2.(time.Time)))

	require.NoError(t, tx.Save(s).Error)
	n, err = revision.CountVersions(tx, s)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestBeforeSaveMovesRevisionForward(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	future := time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond)
	s := &story.Story{Title: "clock skew", UpdatedAt: future}
	require.NoError(t, tx.Create(s).Error)
	require.True(t, s.UpdatedAt.After(future))

	before := s.UpdatedAt
	s.Body = "edited"
	require.NoError(t, tx.Save(s).Error)
	require.True(t, s.UpdatedAt.After(before))
}

func TestTags(t *testing.T) {
	tags, err := story.EncodeTags([]string{" a ", "", "b"})
	require.NoError(t, err)
	require.JSONEq(t, `["a","b"]`, string(tags))

	s := &story.Story{Tags: tags}
	require.Equal(t, []string{"a", "b"}, s.TagList())

	s.Tags = []byte("{")
	require.Nil(t, s.TagList())

	ctx := context.Background()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	seeded := testutil.SeedStory(t, ctx, tx, "tagged", "x")
	require.Equal(t, []string{"x"}, seeded.TagList())
}
