package revision

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func titles(t *testing.T, db *gorm.DB, rec Record) []string {
	t.Helper()
	snaps, err := Versions(db, rec, false)
	require.NoError(t, err)
	out := make([]string, 0, len(snaps))
	for _, s := range snaps {
		v, ok := s.Get("title")
		require.True(t, ok)
		out = append(out, v.(string))
	}
	return out
}

func TestStoryLifecycle(t *testing.T) {
	db, _ := openDB(t)
	enable(t, db, &story{}, Options{On: "UpdatedAt"})

	s := &story{Title: "A"}
	require.NoError(t, db.Create(s).Error)
	require.EqualValues(t, 1, countVersions(t, db, s))
	require.True(t, Tracked(s))
	require.False(t, Dirty(db, s))

	s.Title = "B"
	require.True(t, Dirty(db, s))
	require.NoError(t, db.Save(s).Error)
	require.EqualValues(t, 2, countVersions(t, db, s))

	snaps, err := Versions(db, s, false)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	first, _ := snaps[1].Get("updated_at")
	second, _ := snaps[0].Get("updated_at")
	require.NotEqual(t, first, second)

	// nothing changed, the revision stays put
	require.NoError(t, db.Save(s).Error)
	require.EqualValues(t, 2, countVersions(t, db, s))
	require.Equal(t, []string{"B", "A"}, titles(t, db, s))
}

func TestVersionsOrderedMostRecentFirst(t *testing.T) {
	db, _ := openDB(t)
	enable(t, db, &story{}, Options{On: "UpdatedAt"})

	s := &story{Title: "v1"}
	require.NoError(t, db.Create(s).Error)
	for _, title := range []string{"v2", "v3"} {
		s.Title = title
		require.NoError(t, db.Save(s).Error)
	}
	require.Equal(t, []string{"v3", "v2", "v1"}, titles(t, db, s))
}

func TestVersionsAfterReload(t *testing.T) {
	db, _ := openDB(t)
	enable(t, db, &story{}, Options{On: "UpdatedAt"})

	created := &story{Title: "first"}
	require.NoError(t, db.Create(created).Error)

	var loaded story
	require.NoError(t, db.First(&loaded, created.ID).Error)
	require.True(t, Tracked(&loaded))
	require.False(t, Dirty(db, &loaded))

	loaded.Title = "second"
	require.NoError(t, db.Save(&loaded).Error)
	require.Equal(t, []string{"second", "first"}, titles(t, db, &loaded))
}

func TestUpdateColumnThroughModel(t *testing.T) {
	db, _ := openDB(t)
	enable(t, db, &story{}, Options{On: "UpdatedAt"})

	s := &story{Title: "draft"}
	require.NoError(t, db.Create(s).Error)
	before := s.UpdatedAt

	require.NoError(t, db.Model(s).Update("title", "final").Error)
	require.Equal(t, "final", s.Title)
	require.True(t, s.UpdatedAt.After(before))
	require.Equal(t, []string{"final", "draft"}, titles(t, db, s))

	var stored story
	require.NoError(t, db.First(&stored, s.ID).Error)
	require.True(t, stored.UpdatedAt.Equal(s.UpdatedAt))
}

func TestVersionsAreScopedToTheInstance(t *testing.T) {
	db, _ := openDB(t)
	enable(t, db, &story{}, Options{On: "UpdatedAt"})

	a := &story{Title: "a1"}
	b := &story{Title: "b1"}
	require.NoError(t, db.Create(a).Error)
	require.NoError(t, db.Create(b).Error)
	a.Title = "a2"
	require.NoError(t, db.Save(a).Error)

	require.Equal(t, []string{"a2", "a1"}, titles(t, db, a))
	require.Equal(t, []string{"b1"}, titles(t, db, b))
}

func TestBatchCreateSnapshotsEveryRecord(t *testing.T) {
	db, _ := openDB(t)
	enable(t, db, &story{}, Options{On: "UpdatedAt"})

	batch := []*story{{Title: "x"}, {Title: "y"}, {Title: "z"}}
	require.NoError(t, db.Create(&batch).Error)
	for _, s := range batch {
		require.NotZero(t, s.ID)
		require.EqualValues(t, 1, countVersions(t, db, s))
		require.False(t, s.wantsVersion)
	}
}

func TestCompositeNaturalKey(t *testing.T) {
	db, _ := openDB(t)
	entry := enable(t, db, &page{}, Options{On: "Rev"})
	require.Len(t, entry.History().Keys(), 1)

	home := &page{Site: "docs", Slug: "home", Body: "hello", Rev: 1}
	about := &page{Site: "docs", Slug: "about", Body: "us", Rev: 2}
	require.NoError(t, db.Create(home).Error)
	require.NoError(t, db.Create(about).Error)

	home.Body = "hello again"
	home.Rev = 3
	require.NoError(t, db.Save(home).Error)

	// body changes without a revision bump are not versioned
	home.Body = "typo fix"
	require.NoError(t, db.Save(home).Error)

	snaps, err := Versions(db, home, false)
	require.NoError(t, err)
	pages, err := DecodeAll[page](snaps)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	require.EqualValues(t, 3, pages[0].Rev)
	require.Equal(t, "hello again", pages[0].Body)
	require.EqualValues(t, 1, pages[1].Rev)

	require.EqualValues(t, 1, countVersions(t, db, about))
}

func TestRevisionColumnUpdate(t *testing.T) {
	db, _ := openDB(t)
	enable(t, db, &page{}, Options{On: "Rev"})

	p := &page{Site: "s", Slug: "p", Body: "b", Rev: 10}
	require.NoError(t, db.Create(p).Error)

	require.NoError(t, db.Model(p).Update("rev", 11).Error)
	require.EqualValues(t, 2, countVersions(t, db, p))

	require.NoError(t, db.Model(p).Update("body", "c").Error)
	require.EqualValues(t, 2, countVersions(t, db, p))
}

func TestNeverPolicy(t *testing.T) {
	db, _ := openDB(t)
	enable(t, db, &story{}, Options{On: "UpdatedAt", Policy: Never})

	s := &story{Title: "quiet"}
	require.NoError(t, db.Create(s).Error)
	s.Title = "still quiet"
	require.NoError(t, db.Save(s).Error)

	snaps, err := Versions(db, s, false)
	require.NoError(t, err)
	require.NotNil(t, snaps)
	require.Empty(t, snaps)
}

func TestAlwaysPolicyCollidesOnUnchangedRevision(t *testing.T) {
	db, p := openDB(t)
	enable(t, db, &page{}, Options{On: "Rev"})
	require.NoError(t, p.BindPolicy(&page{}, Always))

	pg := &page{Site: "s", Slug: "a", Body: "one", Rev: 1}
	require.NoError(t, db.Create(pg).Error)

	pg.Body = "two"
	err := db.Save(pg).Error
	var perr *SnapshotPersistenceError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "page_versions", perr.Table)
	require.True(t, DuplicateSnapshot(err))

	var stored page
	require.NoError(t, db.Where("site = ? AND slug = ?", "s", "a").First(&stored).Error)
	require.Equal(t, "two", stored.Body)
	require.False(t, pg.wantsVersion)
}

func TestBoundPolicyIsConsulted(t *testing.T) {
	db, p := openDB(t)
	enable(t, db, &story{}, Options{On: "UpdatedAt"})

	var calls atomic.Int32
	require.NoError(t, p.BindPolicy(&story{}, func(tx *gorm.DB, rec Record) (bool, error) {
		calls.Add(1)
		return rec.(*story).Title == "publish", nil
	}))

	s := &story{Title: "draft"}
	require.NoError(t, db.Create(s).Error)
	s.Title = "publish"
	require.NoError(t, db.Save(s).Error)

	require.EqualValues(t, 2, calls.Load())
	require.Equal(t, []string{"publish"}, titles(t, db, s))

	require.NoError(t, p.BindPolicy(&story{}, nil))
	s.Title = "edited"
	require.NoError(t, db.Save(s).Error)
	require.EqualValues(t, 2, calls.Load())
	require.Equal(t, []string{"edited", "publish"}, titles(t, db, s))
}

func TestVersionWanter(t *testing.T) {
	db, _ := openDB(t)
	enable(t, db, &draft{}, Options{On: "Rev"})

	d := &draft{Body: "wip", Rev: 1}
	require.NoError(t, db.Create(d).Error)
	require.EqualValues(t, 0, countVersions(t, db, d))

	d.Body = "ready"
	d.Rev = 2
	d.Publish = true
	require.NoError(t, db.Save(d).Error)
	require.EqualValues(t, 1, countVersions(t, db, d))
}

func TestPolicyErrorAbortsSave(t *testing.T) {
	db, p := openDB(t)
	enable(t, db, &story{}, Options{On: "UpdatedAt"})

	boom := errors.New("boom")
	require.NoError(t, p.BindPolicy(&story{}, func(*gorm.DB, Record) (bool, error) { return false, boom }))

	s := &story{Title: "never stored"}
	err := db.Create(s).Error
	require.ErrorIs(t, err, boom)

	var n int64
	require.NoError(t, db.Model(&story{}).Count(&n).Error)
	require.Zero(t, n)
	require.NoError(t, db.Table("story_versions").Count(&n).Error)
	require.Zero(t, n)
}

func TestFailedWriteTakesNoSnapshot(t *testing.T) {
	db, _ := openDB(t)
	enable(t, db, &story{}, Options{On: "UpdatedAt"})

	s := &story{Title: "one"}
	require.NoError(t, db.Create(s).Error)

	dup := &story{ID: s.ID, Title: "clash"}
	require.Error(t, db.Create(dup).Error)
	require.False(t, dup.wantsVersion)
	require.False(t, Tracked(dup))
	require.EqualValues(t, 1, countVersions(t, db, s))
}

func TestVanishedRowTakesNoSnapshot(t *testing.T) {
	db, _ := openDB(t)
	enable(t, db, &story{}, Options{On: "UpdatedAt"})

	s := &story{Title: "here"}
	require.NoError(t, db.Create(s).Error)
	require.NoError(t, db.Exec("DELETE FROM stories WHERE id = ?", s.ID).Error)

	res := db.Model(s).Update("title", "gone")
	require.NoError(t, res.Error)
	require.Zero(t, res.RowsAffected)
	require.EqualValues(t, 1, countVersions(t, db, s))
	require.False(t, s.wantsVersion)
}

func TestSnapshotFailureLeavesPrimaryCommitted(t *testing.T) {
	db, _ := openDB(t)
	_, err := Enable(db, &story{}, Options{On: "UpdatedAt"})
	require.NoError(t, err)
	// history table deliberately missing
	require.NoError(t, db.AutoMigrate(&story{}))

	s := &story{Title: "orphan"}
	err = db.Create(s).Error
	var perr *SnapshotPersistenceError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "story_versions", perr.Table)
	require.NotNil(t, errors.Unwrap(perr))
	require.False(t, DuplicateSnapshot(err))

	var stored story
	require.NoError(t, db.First(&stored, s.ID).Error)
	require.Equal(t, "orphan", stored.Title)
	require.False(t, s.wantsVersion)
}

func TestSnapshotInsideCallerTransaction(t *testing.T) {
	db, _ := openDB(t)
	enable(t, db, &story{}, Options{On: "UpdatedAt"})

	s := &story{Title: "tx"}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(s).Error; err != nil {
			return err
		}
		return errors.New("rollback")
	})
	require.Error(t, err)

	var n int64
	require.NoError(t, db.Table("story_versions").Count(&n).Error)
	require.Zero(t, n)
	require.NoError(t, db.Model(&story{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestNonRevisionedModelsAreUntouched(t *testing.T) {
	db, _ := openDB(t)
	enable(t, db, &story{}, Options{On: "UpdatedAt"})
	require.NoError(t, db.AutoMigrate(&plain{}))

	pl := &plain{Name: "x"}
	require.NoError(t, db.Create(pl).Error)
	_, err := Versions(db, pl, false)
	require.ErrorIs(t, err, ErrNotRevisioned)
}

// tally has literal column defaults that must not leak into history rows.
type tally struct {
	ID     uint   `gorm:"primaryKey"`
	Hits   int    `gorm:"default:5"`
	Active bool   `gorm:"default:true"`
	Label  string `gorm:"default:'none'"`
	Rev    int64  `gorm:"not null"`

	Versioned `gorm:"-"`
}

func TestSnapshotKeepsZeroValuesOfDefaultedColumns(t *testing.T) {
	db, _ := openDB(t)
	enable(t, db, &tally{}, Options{On: "Rev"})

	tl := &tally{Hits: 3, Active: true, Label: "a", Rev: 1}
	require.NoError(t, db.Create(tl).Error)

	tl.Hits, tl.Active, tl.Label, tl.Rev = 0, false, "", 2
	require.NoError(t, db.Save(tl).Error)

	var stored tally
	require.NoError(t, db.First(&stored, tl.ID).Error)
	require.Equal(t, 0, stored.Hits)
	require.False(t, stored.Active)
	require.Equal(t, "", stored.Label)

	snaps, err := Versions(db, tl, false)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	hits, _ := snaps[0].Get("hits")
	active, _ := snaps[0].Get("active")
	label, _ := snaps[0].Get("label")
	require.Equal(t, 0, hits)
	require.Equal(t, false, active)
	require.Equal(t, "", label)
}

func TestSnapshotMatchesCommittedRow(t *testing.T) {
	db, p := openDB(t)
	entry := enable(t, db, &tally{}, Options{On: "Rev"})
	require.NoError(t, p.BindPolicy(&tally{}, Always))

	tl := &tally{Hits: 9, Label: "first", Rev: 1}
	require.NoError(t, db.Create(tl).Error)
	for i, edit := range []func(){
		func() { tl.Hits = 0 },
		func() { tl.Active = false; tl.Label = "" },
		func() { tl.Hits = 1; tl.Active = true },
	} {
		edit()
		tl.Rev = int64(i + 2)
		require.NoError(t, db.Save(tl).Error)

		var stored tally
		require.NoError(t, db.First(&stored, tl.ID).Error)
		snaps, err := Versions(db, tl, false)
		require.NoError(t, err)
		require.Len(t, snaps, i+2)

		row := reflect.ValueOf(&stored).Elem()
		for _, f := range entry.Primary().Fields {
			if f.DBName == "" {
				continue
			}
			want, _ := f.ValueOf(context.Background(), row)
			got, ok := snaps[0].Get(f.DBName)
			require.True(t, ok, f.DBName)
			require.Equal(t, want, got, "rev %d column %s", tl.Rev, f.DBName)
		}
	}
}

func TestSaveFallbackConsultsPolicyOnce(t *testing.T) {
	db, p := openDB(t)
	enable(t, db, &story{}, Options{On: "UpdatedAt"})

	var calls atomic.Int32
	require.NoError(t, p.BindPolicy(&story{}, func(tx *gorm.DB, rec Record) (bool, error) {
		calls.Add(1)
		return true, nil
	}))

	s := &story{Title: "here"}
	require.NoError(t, db.Create(s).Error)
	require.EqualValues(t, 1, calls.Load())

	// Save finds no row to update and inserts it again.
	require.NoError(t, db.Exec("DELETE FROM stories WHERE id = ?", s.ID).Error)
	s.Title = "back"
	require.NoError(t, db.Save(s).Error)

	require.EqualValues(t, 2, calls.Load())
	require.Equal(t, []string{"back", "here"}, titles(t, db, s))
	require.False(t, s.wantsVersion)

	s.Title = "again"
	require.NoError(t, db.Save(s).Error)
	require.EqualValues(t, 3, calls.Load())
	require.EqualValues(t, 3, countVersions(t, db, s))
}
