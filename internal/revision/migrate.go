package revision

import (
	"fmt"

	"gorm.io/gorm"
)

// AutoAlterSchema migrates every model and, for revisioned ones, its history
// table. Non-revisioned models are migrated as usual.
func AutoAlterSchema(db *gorm.DB, models ...interface{}) error {
	p, _ := FromDB(db)
	for _, m := range models {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("auto migrate %T: %w", m, err)
		}
		if p == nil {
			continue
		}
		entry, ok := p.Lookup(m)
		if !ok {
			continue
		}
		vt, err := entry.Version()
		if err != nil {
			return err
		}
		if err := db.Table(vt.Table).AutoMigrate(vt.New()); err != nil {
			return fmt.Errorf("auto migrate %s: %w", vt.Table, err)
		}
		p.log.Debug("History table migrated", "model", entry.primary.Name, "history_table", vt.Table)
	}
	return nil
}

// AutoCreateSchema drops and recreates every model's table and, for
// revisioned ones, its history table. All rows are lost.
func AutoCreateSchema(db *gorm.DB, models ...interface{}) error {
	p, _ := FromDB(db)
	mig := db.Migrator()
	for _, m := range models {
		if p != nil {
			if entry, ok := p.Lookup(m); ok {
				vt, err := entry.Version()
				if err != nil {
					return err
				}
				if err := mig.DropTable(vt.Table); err != nil {
					return fmt.Errorf("drop %s: %w", vt.Table, err)
				}
				if err := db.Table(vt.Table).Migrator().CreateTable(vt.New()); err != nil {
					return fmt.Errorf("create %s: %w", vt.Table, err)
				}
			}
		}
		if err := mig.DropTable(m); err != nil {
			return fmt.Errorf("drop %T: %w", m, err)
		}
		if err := mig.CreateTable(m); err != nil {
			return fmt.Errorf("create %T: %w", m, err)
		}
	}
	return nil
}
