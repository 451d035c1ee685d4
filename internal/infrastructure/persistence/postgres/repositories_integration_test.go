//go:build integration

package postgres_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/turtacn/ckms/internal/domain/models"
	"github.com/turtacn/ckms/internal/domain/service"
	"github.com/turtacn/ckms/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/ckms/pkg/constants"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	if os.Getenv("SKIP_DOCKER_TESTS") == "true" {
		t.Skip("skipping docker-dependent test")
	}

	ctx := context.Background()
	container, err := tcpostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		tcpostgres.WithDatabase("ckms"),
		tcpostgres.WithUsername("ckms"),
		tcpostgres.WithPassword("ckms"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(connStr), &gorm.Config{})
	require.NoError(t, err)

	migrationsPath, err := filepath.Abs("../../../../migrations/0001_key_management.sql")
	require.NoError(t, err)
	sqlBytes, err := os.ReadFile(migrationsPath)
	require.NoError(t, err)
	require.NoError(t, db.Exec(string(sqlBytes)).Error)

	return db
}

func TestAliasIndexRepository_InsertAndFindByScope(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewAliasIndexRepository(db)
	ctx := context.Background()

	scope := models.Scope{ApplicationID: "KERNEL", ReferenceID: "SIGN"}
	now := time.Now().UTC().Truncate(time.Second)
	alias := models.KeyAlias{
		ApplicationID:     scope.ApplicationID,
		ReferenceID:       scope.ReferenceID,
		Alias:             "alias-1",
		KeyGenerationTime: now,
		KeyExpiryTime:     now.Add(24 * time.Hour),
		CreatedBy:         "test",
		CreatedAt:         now,
	}

	require.NoError(t, repo.Insert(ctx, alias))

	found, err := repo.FindByScope(ctx, scope)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "alias-1", found[0].Alias)

	current, err := repo.FindCurrent(ctx, scope, now.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, current)
	require.Equal(t, "alias-1", current.Alias)
}

func TestAliasIndexRepository_InsertRejectsDuplicateGenerationInstant(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewAliasIndexRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	first := models.KeyAlias{
		ApplicationID: "KERNEL", ReferenceID: "SIGN", Alias: "alias-1",
		KeyGenerationTime: now, KeyExpiryTime: now.Add(time.Hour), CreatedAt: now,
	}
	second := models.KeyAlias{
		ApplicationID: "KERNEL", ReferenceID: "SIGN", Alias: "alias-2",
		KeyGenerationTime: now, KeyExpiryTime: now.Add(time.Hour), CreatedAt: now,
	}

	require.NoError(t, repo.Insert(ctx, first))
	require.Error(t, repo.Insert(ctx, second), "the key_alias unique constraint on (app_id, ref_id, key_gen_time) must reject a second mint at the same instant")
}

func TestWrappedKeyStoreRepository_InsertAndFindByAlias(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewWrappedKeyStoreRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	key := models.WrappedKey{
		Alias:             "alias-1",
		MasterAlias:       "master-1",
		PublicKeyDER:      []byte("public-der"),
		WrappedPrivateKey: []byte("wrapped-private"),
		CreatedBy:         "test",
		CreatedAt:         now,
	}
	require.NoError(t, repo.Insert(ctx, key))

	found, err := repo.FindByAlias(ctx, "alias-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "master-1", found.MasterAlias)
	require.Equal(t, []byte("public-der"), found.PublicKeyDER)
}

func TestWrappedKeyStoreRepository_FindByAliasMissingReturnsNil(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewWrappedKeyStoreRepository(db)

	found, err := repo.FindByAlias(context.Background(), "never-minted")
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestKLRRepository_LogEventPersistsTheRow(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewKLRRepository(db)
	ctx := context.Background()

	event := service.LifecycleEvent{
		EventType:     constants.AuditEventKeyMinted,
		ApplicationID: "KERNEL",
		ReferenceID:   "SIGN",
		Alias:         "alias-1",
		Timestamp:     time.Now().UTC(),
		Metadata:      map[string]interface{}{"algorithm": "RSA2048"},
	}
	require.NoError(t, repo.LogEvent(ctx, event))

	var count int64
	require.NoError(t, db.Table("key_lifecycle_event").
		Where("app_id = ? AND ref_id = ? AND alias = ?", "KERNEL", "SIGN", "alias-1").
		Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestKLRRepository_LogEventAllowsRepeatedAliasesAcrossEvents(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewKLRRepository(db)
	ctx := context.Background()

	for _, eventType := range []constants.AuditEventType{constants.AuditEventKeyMinted, constants.AuditEventKeySigned, constants.AuditEventKeyVerified} {
		event := service.LifecycleEvent{
			EventType:     eventType,
			ApplicationID: "KERNEL",
			ReferenceID:   "SIGN",
			Alias:         "alias-1",
			Timestamp:     time.Now().UTC(),
		}
		require.NoError(t, repo.LogEvent(ctx, event))
	}

	var count int64
	require.NoError(t, db.Table("key_lifecycle_event").
		Where("alias = ?", "alias-1").
		Count(&count).Error)
	require.EqualValues(t, 3, count)
}
