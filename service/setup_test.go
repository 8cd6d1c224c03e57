package service

import (
	"testing"

	"school-evoting-backend/database"
	"school-evoting-backend/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens an in-memory SQLite database with the election schema.
// A single connection keeps concurrent transactions serialized the way a
// real MySQL deployment serializes conflicting row writes.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		clearTables(db)
		_ = sqlDB.Close()
	})

	return db
}

// clearTables empties all election tables between tests. Order matters for
// foreign key references; deletes are unscoped so unique indexes are freed.
func clearTables(db *gorm.DB) {
	session := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped()
	session.Delete(&models.Vote{})
	session.Delete(&models.VoteToken{})
	session.Delete(&models.Voter{})
	session.Delete(&models.Candidate{})
	session.Delete(&models.ElectionState{})
}

func createVoter(t *testing.T, db *gorm.DB, studentNumber, name, className string) *models.Voter {
	t.Helper()
	voter := &models.Voter{StudentNumber: studentNumber, Name: name, ClassName: className}
	require.NoError(t, db.Create(voter).Error)
	return voter
}

func createCandidate(t *testing.T, db *gorm.DB, name string, active bool) *models.Candidate {
	t.Helper()
	candidate := &models.Candidate{Name: name, IsActive: active}
	require.NoError(t, db.Create(candidate).Error)
	return candidate
}

func openSchedule() ElectionSchedule {
	return ElectionSchedule{VotingOpen: true}
}
