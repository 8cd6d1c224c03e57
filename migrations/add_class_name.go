package migrations

import (
	"log"

	"gorm.io/gorm"
)

// AddClassNameToVoters backfills the class_name column for deployments
// created before class tracking existed. AutoMigrate covers fresh
// databases; this guard keeps upgrades idempotent.
func AddClassNameToVoters(db *gorm.DB) error {
	if db.Migrator().HasColumn(&voter{}, "class_name") {
		return nil
	}

	if err := db.Exec("ALTER TABLE voters ADD COLUMN class_name VARCHAR(64) DEFAULT ''").Error; err != nil {
		log.Printf("migration failed: %v", err)
		return err
	}
	log.Println("migration applied: voters.class_name added")
	return nil
}

// minimal mirror of the voter table, only for column checks
type voter struct{}

func (voter) TableName() string { return "voters" }
