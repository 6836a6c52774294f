package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mrlokans/cardsync/internal/audit"
	"github.com/mrlokans/cardsync/internal/crypto"
	auditRepo "github.com/mrlokans/cardsync/internal/database/audit"
	"github.com/mrlokans/cardsync/internal/database/connections"
	"github.com/mrlokans/cardsync/internal/database/dbtest"
	"github.com/mrlokans/cardsync/internal/database/mappings"
	"github.com/mrlokans/cardsync/internal/database/runs"
	"github.com/mrlokans/cardsync/internal/entities"
	"github.com/mrlokans/cardsync/internal/remote"
	"github.com/mrlokans/cardsync/internal/services"
	"github.com/mrlokans/cardsync/internal/tasks"
)

type fakeRemote struct {
	records []remote.Record
	created int
}

func (f *fakeRemote) FetchRecords(_ context.Context, _ string, _ []string, _ string, limit, offset int) ([]remote.Record, int, error) {
	if offset >= len(f.records) {
		return nil, len(f.records), nil
	}
	return f.records[offset:min(offset+limit, len(f.records))], len(f.records), nil
}

func (f *fakeRemote) CreateRecord(context.Context, string, map[string]any) (remote.Record, error) {
	f.created++
	return remote.Record{"sys_id": fmt.Sprintf("%032x", f.created)}, nil
}

func (f *fakeRemote) UpdateRecord(_ context.Context, _ string, id string, _ map[string]any) (remote.Record, error) {
	return remote.Record{"sys_id": id}, nil
}

func (f *fakeRemote) Close() {}

func (f *fakeRemote) TestConnection(context.Context) (bool, string) {
	return false, "invalid credentials"
}

func (f *fakeRemote) ListTables(_ context.Context, search string) ([]remote.Table, error) {
	return []remote.Table{{Name: "cmdb_ci_appl", Label: "Application"}}, nil
}

func (f *fakeRemote) ListTableFields(_ context.Context, table string) ([]remote.TableField, error) {
	if table == "bad table" {
		return nil, remote.ErrInvalidTable
	}
	return []remote.TableField{{Name: "name", Label: "Name", Type: "string"}}, nil
}

type fakeQueue struct {
	added  []backlite.Task
	status backlite.TaskStatus
	err    error
}

func (q *fakeQueue) Enqueue(_ context.Context, task backlite.Task) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.added = append(q.added, task)
	return fmt.Sprintf("task-%d", len(q.added)), nil
}

func (q *fakeQueue) Status(context.Context, string) (backlite.TaskStatus, error) {
	return q.status, nil
}

type apiFixture struct {
	db      *gorm.DB
	router  *gin.Engine
	remote  *fakeRemote
	queue   *fakeQueue
	conn    *entities.Connection
	mapping *entities.Mapping
}

func setupAPI(t *testing.T, withQueue bool) *apiFixture {
	t.Helper()
	ctx := context.Background()

	db := dbtest.Open(t)
	codec, err := crypto.NewCredentialCodec("test-secret", nil)
	require.NoError(t, err)

	f := &apiFixture{db: db, remote: &fakeRemote{}}

	f.conn = &entities.Connection{Name: "prod", URL: "https://instance.example.com", AuthKind: entities.AuthKindBasic, IsActive: true}
	require.NoError(t, connections.NewRepository(db, codec).CreateConnection(ctx, f.conn, crypto.Credentials{"username": "admin", "password": "pw"}))

	f.mapping = &entities.Mapping{
		Name:             "applications",
		ConnectionID:     f.conn.ID,
		CardType:         "application",
		RemoteTable:      "cmdb_ci_appl",
		SyncDirection:    entities.SyncDirectionPull,
		SyncMode:         entities.SyncModeAdditive,
		MaxDeletionRatio: entities.DefaultMaxDeletionRatio,
		IsActive:         true,
		FieldMappings: []entities.FieldMapping{
			{RemoteField: "name", LocalFieldPath: "name", IsIdentity: true},
		},
	}
	require.NoError(t, mappings.NewRepository(db).SaveMapping(ctx, f.mapping))

	service := services.NewSyncService(db, codec, audit.NewService(auditRepo.NewRepository(db), nil), services.SyncServiceConfig{
		Opener: func(*entities.Connection, crypto.Credentials) (services.RemoteClient, error) {
			return f.remote, nil
		},
	})

	cfg := RouterConfig{
		Connections: service,
		Mappings:    service,
		Runs:        service,
		Version:     "test",
	}
	if withQueue {
		f.queue = &fakeQueue{status: backlite.TaskStatusPending}
		cfg.TaskQueue = f.queue
	}
	f.router = NewRouter(cfg)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestRouter_Ping(t *testing.T) {
	f := setupAPI(t, false)

	w := f.do(t, "GET", "/ping", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pong")
}

func TestRouter_Connections(t *testing.T) {
	f := setupAPI(t, false)
	base := fmt.Sprintf("/api/connections/%d", f.conn.ID)

	t.Run("list hides credentials", func(t *testing.T) {
		w := f.do(t, "GET", "/api/connections", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"name":"prod"`)
		assert.NotContains(t, w.Body.String(), "credentials")
	})

	t.Run("failed test is reported in body", func(t *testing.T) {
		w := f.do(t, "POST", base+"/test", "")
		require.Equal(t, http.StatusOK, w.Code)
		result := decode[services.ConnectionTestResult](t, w)
		assert.False(t, result.OK)
		assert.Equal(t, "invalid credentials", result.Message)
	})

	t.Run("unknown connection", func(t *testing.T) {
		w := f.do(t, "POST", "/api/connections/999/test", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("tables and fields", func(t *testing.T) {
		w := f.do(t, "GET", base+"/tables?search=appl", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "cmdb_ci_appl")

		w = f.do(t, "GET", base+"/tables/cmdb_ci_appl/fields", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"type":"string"`)
	})

	t.Run("invalid table name", func(t *testing.T) {
		w := f.do(t, "GET", base+"/tables/bad%20table/fields", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRouter_PullReviewApply(t *testing.T) {
	f := setupAPI(t, false)
	f.remote.records = []remote.Record{
		{"sys_id": "a1", "name": "CRM"},
		{"sys_id": "a2", "name": "Billing"},
	}

	w := f.do(t, "POST", fmt.Sprintf("/api/mappings/%d/pull", f.mapping.ID), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	pulled := decode[struct {
		Run     entities.SyncRun `json:"run"`
		Applied *struct{}        `json:"applied"`
	}](t, w)
	assert.Equal(t, entities.SyncStatusCompleted, pulled.Run.Status)
	assert.Nil(t, pulled.Applied)

	runPath := fmt.Sprintf("/api/runs/%d", pulled.Run.ID)

	w = f.do(t, "GET", runPath+"/staged?status=pending", "")
	require.Equal(t, http.StatusOK, w.Code)
	staged := decode[struct {
		Records []entities.StagedRecord `json:"records"`
	}](t, w)
	assert.Len(t, staged.Records, 2)

	w = f.do(t, "POST", runPath+"/apply", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	applied := decode[struct {
		Summary struct {
			Created int `json:"created"`
		} `json:"summary"`
	}](t, w)
	assert.Equal(t, 2, applied.Summary.Created)

	w = f.do(t, "GET", runPath, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, "GET", fmt.Sprintf("/api/runs?mapping_id=%d&status=completed", f.mapping.ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[PaginatedResponse](t, w)
	assert.Equal(t, int64(1), page.Total)
	assert.False(t, page.HasMore)

	var cards int64
	require.NoError(t, f.db.Model(&entities.Card{}).Count(&cards).Error)
	assert.Equal(t, int64(2), cards)
}

func TestRouter_PreviewWritesNothing(t *testing.T) {
	f := setupAPI(t, false)
	f.remote.records = []remote.Record{{"sys_id": "a1", "name": "CRM"}}

	w := f.do(t, "POST", fmt.Sprintf("/api/mappings/%d/preview?limit=5", f.mapping.ID), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"action":"create"`)

	var count int64
	require.NoError(t, f.db.Model(&entities.SyncRun{}).Count(&count).Error)
	assert.Zero(t, count)

	w = f.do(t, "POST", fmt.Sprintf("/api/mappings/%d/preview?limit=0", f.mapping.ID), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_ErrorMapping(t *testing.T) {
	f := setupAPI(t, false)
	ctx := context.Background()

	t.Run("push on pull-only mapping", func(t *testing.T) {
		w := f.do(t, "POST", fmt.Sprintf("/api/mappings/%d/push", f.mapping.ID), "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "not_allowed")
	})

	t.Run("unknown mapping and run", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, f.do(t, "POST", "/api/mappings/999/pull", "").Code)
		assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/api/runs/999", "").Code)
		assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/api/runs/999/staged", "").Code)
		assert.Equal(t, http.StatusNotFound, f.do(t, "POST", "/api/runs/999/apply", "").Code)
	})

	t.Run("bad parameters", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/api/runs/abc", "").Code)
		assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/api/runs?status=weird", "").Code)
		assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/api/runs?mapping_id=x", "").Code)
	})

	t.Run("run in progress", func(t *testing.T) {
		running := &entities.SyncRun{MappingID: f.mapping.ID, Direction: entities.RunDirectionPull, Status: entities.SyncStatusRunning}
		require.NoError(t, runs.NewRepository(f.db).CreateRun(ctx, running))

		w := f.do(t, "POST", fmt.Sprintf("/api/mappings/%d/pull", f.mapping.ID), "")
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "run_active")

		w = f.do(t, "POST", fmt.Sprintf("/api/runs/%d/apply", running.ID), "")
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("async without queue", func(t *testing.T) {
		w := f.do(t, "POST", fmt.Sprintf("/api/mappings/%d/pull?async=true", f.mapping.ID), "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/api/tasks/types", "").Code)
	})
}

func TestRouter_AsyncPasses(t *testing.T) {
	f := setupAPI(t, true)

	w := f.do(t, "POST", fmt.Sprintf("/api/mappings/%d/pull?async=true&auto_apply=true", f.mapping.ID), "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "task-1")

	w = f.do(t, "POST", "/api/runs/7/apply?async=true", "")
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Len(t, f.queue.added, 2)
	assert.Equal(t, tasks.SyncPullTask{MappingID: f.mapping.ID, AutoApply: true}, f.queue.added[0])
	assert.Equal(t, tasks.SyncApplyTask{RunID: 7}, f.queue.added[1])

	var count int64
	require.NoError(t, f.db.Model(&entities.SyncRun{}).Count(&count).Error)
	assert.Zero(t, count, "async requests only enqueue")
}

func TestRouter_Tasks(t *testing.T) {
	f := setupAPI(t, true)

	w := f.do(t, "GET", "/api/tasks/types", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), tasks.QueueSyncApply)

	w = f.do(t, "POST", "/api/tasks/sync_push/run", `{"mapping_id": 3}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, tasks.SyncPushTask{MappingID: 3}, f.queue.added[0])

	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/api/tasks/sync_apply/run", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/api/tasks/unknown/run", "").Code)

	w = f.do(t, "GET", "/api/tasks/task-1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"pending"`)

	f.queue.status = backlite.TaskStatusNotFound
	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/api/tasks/missing", "").Code)

	f.queue.err = errors.New("queue closed")
	assert.Equal(t, http.StatusInternalServerError, f.do(t, "POST", "/api/tasks/sync_pull/run", `{"mapping_id": 1}`).Code)
}
