package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/cardsync/internal/entities"
)

func writeResult(t *testing.T, w http.ResponseWriter, result any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"result": result}))
}

func newBasicClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL:     serverURL,
		AuthKind:    entities.AuthKindBasic,
		Credentials: map[string]string{"username": "admin", "password": "secret"},
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestNewClient(t *testing.T) {
	t.Run("empty base url", func(t *testing.T) {
		_, err := NewClient(Config{AuthKind: entities.AuthKindBasic})
		assert.Error(t, err)
	})

	t.Run("unsupported auth kind", func(t *testing.T) {
		_, err := NewClient(Config{BaseURL: "https://example.test", AuthKind: "kerberos"})
		assert.ErrorIs(t, err, ErrUnsupportedAuth)
	})

	t.Run("oauth2 without token", func(t *testing.T) {
		_, err := NewClient(Config{BaseURL: "https://example.test", AuthKind: entities.AuthKindOAuth2})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("close is idempotent", func(t *testing.T) {
		client, err := NewClient(Config{BaseURL: "https://example.test", AuthKind: entities.AuthKindBasic})
		require.NoError(t, err)
		client.Close()
		client.Close()
	})
}

func TestClient_TestConnection(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantOK     bool
	}{
		{name: "success", statusCode: http.StatusOK, wantOK: true},
		{name: "unauthorized", statusCode: http.StatusUnauthorized, wantOK: false},
		{name: "server error", statusCode: http.StatusInternalServerError, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/now/table/sys_db_object", r.URL.Path)
				assert.Equal(t, "1", r.URL.Query().Get("sysparm_limit"))

				user, pass, ok := r.BasicAuth()
				assert.True(t, ok)
				assert.Equal(t, "admin", user)
				assert.Equal(t, "secret", pass)

				if tt.statusCode != http.StatusOK {
					w.WriteHeader(tt.statusCode)
					return
				}
				writeResult(t, w, []map[string]any{{"name": "incident"}})
			}))
			defer server.Close()

			ok, message := newBasicClient(t, server.URL).TestConnection(context.Background())
			assert.Equal(t, tt.wantOK, ok)
			assert.NotEmpty(t, message)
		})
	}

	t.Run("transport failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		ok, message := newBasicClient(t, url).TestConnection(context.Background())
		assert.False(t, ok)
		assert.Contains(t, message, "request failed")
	})
}

func TestClient_OAuth2StaticToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		writeResult(t, w, []map[string]any{})
	}))
	defer server.Close()

	client, err := NewClient(Config{
		BaseURL:     server.URL,
		AuthKind:    entities.AuthKindOAuth2,
		Credentials: map[string]string{"access_token": "tok-123"},
	})
	require.NoError(t, err)
	defer client.Close()

	ok, _ := client.TestConnection(context.Background())
	assert.True(t, ok)
}

func TestClient_OAuth2ClientCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth_token.do", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"issued-token","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/api/now/table/sys_db_object", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer issued-token", r.Header.Get("Authorization"))
		writeResult(t, w, []map[string]any{})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := NewClient(Config{
		BaseURL:  server.URL,
		AuthKind: entities.AuthKindOAuth2,
		Credentials: map[string]string{
			"client_id":     "id",
			"client_secret": "secret",
			"token_url":     server.URL + "/oauth_token.do",
		},
	})
	require.NoError(t, err)
	defer client.Close()

	ok, message := client.TestConnection(context.Background())
	assert.True(t, ok, message)
}

func TestClient_ListTables(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/now/table/sys_db_object", r.URL.Path)
		assert.Equal(t, "nameISNOTEMPTY^nameLIKEcmdb ci^ORlabelLIKEcmdb ci^ORDERBYname", r.URL.Query().Get("sysparm_query"))
		writeResult(t, w, []map[string]any{
			{"name": "cmdb_ci", "label": "Configuration Item"},
			{"name": "cmdb_ci_appl", "label": "Application"},
		})
	}))
	defer server.Close()

	tables, err := newBasicClient(t, server.URL).ListTables(context.Background(), "cmdb'; ci")
	require.NoError(t, err)
	assert.Equal(t, []Table{
		{Name: "cmdb_ci", Label: "Configuration Item"},
		{Name: "cmdb_ci_appl", Label: "Application"},
	}, tables)
}

func TestClient_ListTableFields(t *testing.T) {
	t.Run("reference-style values are flattened", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/now/table/sys_dictionary", r.URL.Path)
			assert.Equal(t, "name=cmdb_ci_appl^elementISNOTEMPTY", r.URL.Query().Get("sysparm_query"))
			writeResult(t, w, []map[string]any{
				{"element": "name", "column_label": "Name", "internal_type": map[string]any{"value": "string"}},
				{"element": "u_risk", "column_label": "Risk", "internal_type": "choice"},
			})
		}))
		defer server.Close()

		fields, err := newBasicClient(t, server.URL).ListTableFields(context.Background(), "cmdb_ci_appl")
		require.NoError(t, err)
		assert.Equal(t, []TableField{
			{Name: "name", Label: "Name", Type: "string"},
			{Name: "u_risk", Label: "Risk", Type: "choice"},
		}, fields)
	})

	t.Run("invalid table issues no request", func(t *testing.T) {
		var hits int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
		}))
		defer server.Close()

		fields, err := newBasicClient(t, server.URL).ListTableFields(context.Background(), "bad/table")
		require.NoError(t, err)
		assert.Empty(t, fields)
		assert.Zero(t, atomic.LoadInt32(&hits))
	})
}

func TestClient_FetchRecords(t *testing.T) {
	t.Run("page with total", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			assert.Equal(t, "/api/now/table/cmdb_ci_appl", r.URL.Path)
			assert.Equal(t, "2", q.Get("sysparm_limit"))
			assert.Equal(t, "4", q.Get("sysparm_offset"))
			assert.Equal(t, "active=true", q.Get("sysparm_query"))
			assert.Equal(t, "sys_id,name", q.Get("sysparm_fields"))

			w.Header().Set("X-Total-Count", "5")
			writeResult(t, w, []map[string]any{{"sys_id": "abc", "name": "CRM"}})
		}))
		defer server.Close()

		records, total, err := newBasicClient(t, server.URL).FetchRecords(
			context.Background(), "cmdb_ci_appl", []string{"sys_id", "name", "bad field;"}, "active=true", 2, 4)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Equal(t, []Record{{"sys_id": "abc", "name": "CRM"}}, records)
	})

	t.Run("missing total header", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeResult(t, w, []map[string]any{})
		}))
		defer server.Close()

		records, total, err := newBasicClient(t, server.URL).FetchRecords(context.Background(), "incident", nil, "", 10, 0)
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, records)
	})

	t.Run("invalid table issues no request", func(t *testing.T) {
		var hits int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
		}))
		defer server.Close()

		records, total, err := newBasicClient(t, server.URL).FetchRecords(context.Background(), "incident?x=1", nil, "", 10, 0)
		require.NoError(t, err)
		assert.Empty(t, records)
		assert.Zero(t, total)
		assert.Zero(t, atomic.LoadInt32(&hits))
	})

	t.Run("unauthorized", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		_, _, err := newBasicClient(t, server.URL).FetchRecords(context.Background(), "incident", nil, "", 10, 0)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("status error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, "upstream down")
		}))
		defer server.Close()

		_, _, err := newBasicClient(t, server.URL).FetchRecords(context.Background(), "incident", nil, "", 10, 0)
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
		assert.Equal(t, "upstream down", statusErr.Body)
	})
}

func TestClient_CreateRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/now/table/cmdb_ci_appl", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CRM", body["name"])

		w.WriteHeader(http.StatusCreated)
		writeResult(t, w, map[string]any{"sys_id": "0123456789abcdef0123456789abcdef", "name": "CRM"})
	}))
	defer server.Close()

	created, err := newBasicClient(t, server.URL).CreateRecord(context.Background(), "cmdb_ci_appl", map[string]any{"name": "CRM"})
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", created["sys_id"])

	_, err = newBasicClient(t, server.URL).CreateRecord(context.Background(), "../etc", map[string]any{})
	assert.ErrorIs(t, err, ErrInvalidTable)
}

func TestClient_UpdateRecord(t *testing.T) {
	const id = "0123456789abcdef0123456789abcdef"

	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/now/table/cmdb_ci_appl/"+id, r.URL.Path)
		writeResult(t, w, map[string]any{"sys_id": id, "u_risk": "low"})
	}))
	defer server.Close()

	client := newBasicClient(t, server.URL)

	updated, err := client.UpdateRecord(context.Background(), "cmdb_ci_appl", id, map[string]any{"u_risk": "low"})
	require.NoError(t, err)
	assert.Equal(t, "low", updated["u_risk"])

	for _, bad := range []string{"", "0123456789ABCDEF0123456789ABCDEF", "abc", id + "0"} {
		_, err := client.UpdateRecord(context.Background(), "cmdb_ci_appl", bad, map[string]any{})
		assert.ErrorIs(t, err, ErrInvalidRecordID, bad)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
