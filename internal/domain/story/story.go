package story

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/revisioned/internal/revision"
)

// Story is a revisioned document. UpdatedAt is its revision field: every
// save that changes a column moves it forward and snapshots the row into
// story_versions.
type Story struct {
	ID        uint           `gorm:"primaryKey;column:id" json:"id"`
	Title     string         `gorm:"column:title;not null" json:"title"`
	Body      string         `gorm:"column:body;not null;default:''" json:"body"`
	Tags      datatypes.JSON `gorm:"column:tags" json:"tags,omitempty"`
	UpdatedAt time.Time      `gorm:"column:updated_at;not null;autoUpdateTime:false" json:"updated_at"`

	revision.Versioned `gorm:"-" json:"-"`
}

func (Story) TableName() string { return "story" }

// RevisionField names the column Story is versioned on.
const RevisionField = "UpdatedAt"

// BeforeSave touches UpdatedAt when any attribute changed. Saving an
// unchanged record leaves the revision alone, so no snapshot is taken.
// SetColumn keeps Update/Updates calls with a map in step with the record.
func (s *Story) BeforeSave(tx *gorm.DB) error {
	if !revision.Dirty(tx, s) {
		return nil
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	if !now.After(s.UpdatedAt) {
		now = s.UpdatedAt.Add(time.Microsecond)
	}
	tx.Statement.SetColumn("UpdatedAt", now)
	return nil
}

// EncodeTags normalises tags (trimmed, empty ones dropped) into the JSON
// array stored in the tags column.
func EncodeTags(tags []string) (datatypes.JSON, error) {
	clean := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			clean = append(clean, t)
		}
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

// TagList decodes the tags column. A missing or malformed value is no tags.
func (s *Story) TagList() []string {
	if len(s.Tags) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(s.Tags, &out); err != nil {
		return nil
	}
	return out
}
