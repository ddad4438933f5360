package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modulearn/modulearn-api/internal/models"
)

func TestSectionRepositoryListByModule(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "module_id", "title", "content", "order_index", "estimated_minutes", "created_at", "updated_at"}).
		AddRow("sec-1", "mod-1", "Intro", "Hello", 0, 2, now, now).
		AddRow("sec-2", "mod-1", "Body", "World", 1, 5, now, now)
	mock.ExpectQuery("SELECT (.+) FROM module_sections WHERE module_id").
		WithArgs("mod-1").
		WillReturnRows(rows)

	sections, err := repo.ListByModule(context.Background(), "mod-1")
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, 0, sections[0].OrderIndex)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryReplaceAll(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM module_sections").
		WithArgs("mod-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO module_sections").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO module_sections").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	sections := []models.ModuleSection{
		{Title: "Intro", Content: "Hello", EstimatedMinutes: 2},
		{Title: "Body", Content: "World", EstimatedMinutes: 5},
	}
	err := repo.ReplaceAll(context.Background(), "mod-1", sections)
	require.NoError(t, err)
	assert.Equal(t, 0, sections[0].OrderIndex)
	assert.Equal(t, 1, sections[1].OrderIndex)
	assert.Equal(t, "mod-1", sections[0].ModuleID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryReplaceAllRollsBackOnInsertError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM module_sections").
		WithArgs("mod-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO module_sections").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.ReplaceAll(context.Background(), "mod-1", []models.ModuleSection{{Title: "Intro"}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryReorder(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE module_sections SET order_index").
		WithArgs(0, sqlmock.AnyArg(), "sec-2", "mod-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE module_sections SET order_index").
		WithArgs(1, sqlmock.AnyArg(), "sec-1", "mod-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Reorder(context.Background(), "mod-1", []string{"sec-2", "sec-1"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryReorderForeignSectionFails(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE module_sections SET order_index").
		WithArgs(0, sqlmock.AnyArg(), "sec-other", "mod-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Reorder(context.Background(), "mod-1", []string{"sec-other"})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
