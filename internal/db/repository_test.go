package db

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/poddle/compute/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return gormDB, mock
}

func TestRepository_UpdateStatus_ZeroRowsIsVisible(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository(gormDB)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "deployments" SET "status"`).
		WithArgs(string(domain.StatusRunning), sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	affected, err := repo.UpdateStatus(context.Background(), id, domain.StatusRunning)
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)
}

func TestRepository_ListActive_ExcludesTerminalStatuses(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository(gormDB)

	rows := sqlmock.NewRows([]string{"id", "user_id", "project_id", "name", "image", "port",
		"desired_replicas", "ready_replicas", "available_replicas", "status"}).
		AddRow(uuid.New(), uuid.New(), uuid.New(), "web", "nginx:1.25", 80, 2, 2, 2, "running")

	mock.ExpectQuery(`SELECT \* FROM "deployments" WHERE status NOT IN`).
		WillReturnRows(rows)

	deployments, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, deployments, 1)
	assert.Equal(t, domain.StatusRunning, deployments[0].Status)
}

func TestRepository_Create_IgnoresConflictingID(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "deployments"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.Create(context.Background(), &domain.Deployment{
		ID: uuid.New(), UserID: uuid.New(), ProjectID: uuid.New(),
		Name: "web", Image: "nginx:1.25", Port: 80,
		Status: domain.StatusProvisioning,
	})
	require.NoError(t, err)
}

func TestRepository_InsertEvent_GeneratesIDWhenMissing(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "deployment_events"`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.InsertEvent(context.Background(), &domain.DeploymentEvent{
		DeploymentID: uuid.New(),
		Type:         domain.EventTypeDriftRepaired,
		Message:      "cluster workload missing",
	})
	require.NoError(t, err)
}
