package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/cardsync/internal/database/dbtest"
	"github.com/mrlokans/cardsync/internal/entities"
)

func TestRepository_SaveAndLookup(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	row := &entities.IdentityMapping{
		ConnectionID:   1,
		MappingID:      10,
		LocalEntityID:  "card-1",
		RemoteRecordID: "r1",
		RemoteTable:    "cmdb_ci_appl",
		CreatedBySync:  true,
	}
	require.NoError(t, repo.Save(ctx, row))
	assert.NotZero(t, row.ID)
	assert.False(t, row.LastSyncedAt.IsZero())

	got, err := repo.GetByRemote(ctx, 10, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "card-1", got.LocalEntityID)
	assert.True(t, got.CreatedBySync)

	got, err = repo.GetByLocal(ctx, 10, "card-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "r1", got.RemoteRecordID)

	got, err = repo.GetByRemote(ctx, 11, "r1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_UniqueRemotePerMapping(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &entities.IdentityMapping{MappingID: 10, LocalEntityID: "a", RemoteRecordID: "r1"}))
	err := repo.Save(ctx, &entities.IdentityMapping{MappingID: 10, LocalEntityID: "b", RemoteRecordID: "r1"})
	assert.Error(t, err)

	// Same remote id under another mapping is a different identity.
	require.NoError(t, repo.Save(ctx, &entities.IdentityMapping{MappingID: 11, LocalEntityID: "b", RemoteRecordID: "r1"}))
}

func TestRepository_ListTouchDelete(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	for _, id := range []string{"r1", "r2"} {
		require.NoError(t, repo.Save(ctx, &entities.IdentityMapping{
			ConnectionID: 1, MappingID: 10, LocalEntityID: "card-" + id, RemoteRecordID: id,
		}))
	}
	require.NoError(t, repo.Save(ctx, &entities.IdentityMapping{ConnectionID: 2, MappingID: 10, LocalEntityID: "x", RemoteRecordID: "r3"}))

	rows, err := repo.ListForMapping(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	at := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Touch(ctx, rows[0].ID, at))
	got, err := repo.GetByRemote(ctx, 10, "r1")
	require.NoError(t, err)
	assert.True(t, got.LastSyncedAt.Equal(at))

	require.NoError(t, repo.DeleteByRemote(ctx, 10, "r1"))
	require.NoError(t, repo.DeleteByRemote(ctx, 10, "r1"))
	got, err = repo.GetByRemote(ctx, 10, "r1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
