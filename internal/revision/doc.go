// Package revision keeps an append-only history table next to a gorm model.
//
// A model opts in by embedding Versioned and being enabled on a *gorm.DB that
// has the plugin installed:
//
//	db.Use(revision.New(log))
//	revision.Enable(db, &Story{}, revision.Options{On: "UpdatedAt"})
//	revision.AutoAlterSchema(db, &Story{})
//
// The history table mirrors every column of the model. Its primary key is the
// revision column plus every auto-generated column of the model, so a serial
// id may repeat across history rows while (id, revision) stays unique.
//
// Each create and update asks the model's Policy whether the save deserves a
// snapshot. The answer is latched on the record before the write and consumed
// once the write's transaction has finished: a failed or no-op write never
// produces a snapshot, and a failed snapshot never undoes the write.
package revision
