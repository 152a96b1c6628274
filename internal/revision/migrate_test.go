package revision

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAutoAlterSchema(t *testing.T) {
	db, p := openDB(t)
	_, err := p.Enable(db, &story{}, Options{On: "UpdatedAt"})
	require.NoError(t, err)

	require.NoError(t, AutoAlterSchema(db, &story{}, &plain{}))

	m := db.Migrator()
	require.True(t, m.HasTable(&story{}))
	require.True(t, m.HasTable(&plain{}))
	require.True(t, m.HasTable("story_versions"))
	require.False(t, m.HasTable("plain_versions"))
	for _, col := range []string{"id", "title", "updated_at"} {
		require.True(t, m.HasColumn("story_versions", col), col)
	}

	// idempotent
	require.NoError(t, AutoAlterSchema(db, &story{}, &plain{}))
}

func TestAutoCreateSchemaResets(t *testing.T) {
	db, p := openDB(t)
	_, err := p.Enable(db, &story{}, Options{On: "UpdatedAt"})
	require.NoError(t, err)
	require.NoError(t, AutoCreateSchema(db, &story{}))

	s := &story{Title: "gone soon"}
	require.NoError(t, db.Create(s).Error)
	require.EqualValues(t, 1, countVersions(t, db, s))

	require.NoError(t, AutoCreateSchema(db, &story{}))

	var n int64
	require.NoError(t, db.Model(&story{}).Count(&n).Error)
	require.Zero(t, n)
	require.NoError(t, db.Table("story_versions").Count(&n).Error)
	require.Zero(t, n)
}

func TestHistoryKeyAllowsRepeatedPrimaryID(t *testing.T) {
	db, _ := openDB(t)
	enable(t, db, &story{}, Options{On: "UpdatedAt"})

	s := &story{Title: "a"}
	require.NoError(t, db.Create(s).Error)
	for _, title := range []string{"b", "c", "d"} {
		s.Title = title
		require.NoError(t, db.Save(s).Error)
	}

	var rows int64
	require.NoError(t, db.Table("story_versions").Where("id = ?", s.ID).Count(&rows).Error)
	require.EqualValues(t, 4, rows)
}
