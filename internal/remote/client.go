// Package remote is the wire client for the remote table resource exposed
// under <instance>/api/now/table.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/mrlokans/cardsync/internal/entities"
)

const (
	tableAPIPath = "/api/now/table/"

	defaultTimeout  = 30 * time.Second
	maxErrorBody    = 200
	tableListLimit  = 500
	fieldListLimit  = 1000
	totalCountField = "X-Total-Count"
)

var (
	tableNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	fieldNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)
	recordIDPattern  = regexp.MustCompile(`^[0-9a-f]{32}$`)
	searchSanitizer  = regexp.MustCompile(`[^A-Za-z0-9_ ]`)
)

// Record is one remote row as returned by the table API.
type Record map[string]any

// Table describes a remote table from sys_db_object.
type Table struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// TableField describes a column of a remote table from sys_dictionary.
type TableField struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// Config holds everything needed to reach one remote instance.
type Config struct {
	BaseURL     string
	AuthKind    entities.AuthKind
	Credentials map[string]string
	Timeout     time.Duration

	// Transport overrides the base round tripper, mainly for tests.
	Transport http.RoundTripper
}

// Client talks to one remote instance. All calls share one http.Client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	username   string
	password   string
	basicAuth  bool
	closeOnce  sync.Once
}

// NewClient builds a client for the given connection settings.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("remote base URL is empty")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("failed to parse remote base URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	c := &Client{baseURL: base}

	switch cfg.AuthKind {
	case entities.AuthKindBasic:
		c.basicAuth = true
		c.username = cfg.Credentials["username"]
		c.password = cfg.Credentials["password"]
		c.httpClient = &http.Client{Transport: transport, Timeout: timeout}
	case entities.AuthKindOAuth2:
		src, err := tokenSource(cfg.Credentials, &http.Client{Transport: transport, Timeout: timeout})
		if err != nil {
			return nil, err
		}
		c.httpClient = &http.Client{
			Transport: &oauth2.Transport{Source: src, Base: transport},
			Timeout:   timeout,
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAuth, cfg.AuthKind)
	}

	return c, nil
}

// NewClientForConnection builds a client from a stored connection and its
// decrypted credentials.
func NewClientForConnection(conn *entities.Connection, creds map[string]string, timeout time.Duration) (*Client, error) {
	return NewClient(Config{
		BaseURL:     conn.URL,
		AuthKind:    conn.AuthKind,
		Credentials: creds,
		Timeout:     timeout,
	})
}

// tokenSource prefers the client-credentials grant when the connection carries
// enough to run it, and falls back to a static bearer token.
func tokenSource(creds map[string]string, tokenClient *http.Client) (oauth2.TokenSource, error) {
	if creds["client_id"] != "" && creds["client_secret"] != "" && creds["token_url"] != "" {
		cc := &clientcredentials.Config{
			ClientID:     creds["client_id"],
			ClientSecret: creds["client_secret"],
			TokenURL:     creds["token_url"],
		}
		if scope := creds["scope"]; scope != "" {
			cc.Scopes = strings.Fields(scope)
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, tokenClient)
		return cc.TokenSource(ctx), nil
	}
	if token := creds["access_token"]; token != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}), nil
	}
	return nil, fmt.Errorf("%w: oauth2 connection has neither access_token nor client credentials", ErrUnauthorized)
}

// Close releases idle connections. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.httpClient.CloseIdleConnections()
	})
}

// TestConnection performs a minimal read. It never returns an error; transport
// and status failures are reported through ok=false and the message.
func (c *Client) TestConnection(ctx context.Context) (bool, string) {
	q := url.Values{}
	q.Set("sysparm_limit", "1")
	q.Set("sysparm_fields", "name")

	var rows []map[string]any
	if _, err := c.do(ctx, http.MethodGet, "sys_db_object", q, nil, &rows); err != nil {
		return false, err.Error()
	}
	return true, "connection successful"
}

// ListTables returns remote tables whose name or label contains search.
func (c *Client) ListTables(ctx context.Context, search string) ([]Table, error) {
	search = strings.TrimSpace(searchSanitizer.ReplaceAllString(search, ""))

	query := "nameISNOTEMPTY"
	if search != "" {
		query += "^nameLIKE" + search + "^ORlabelLIKE" + search
	}
	query += "^ORDERBYname"

	q := url.Values{}
	q.Set("sysparm_query", query)
	q.Set("sysparm_fields", "name,label")
	q.Set("sysparm_limit", strconv.Itoa(tableListLimit))

	var rows []map[string]any
	if _, err := c.do(ctx, http.MethodGet, "sys_db_object", q, nil, &rows); err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	tables := make([]Table, 0, len(rows))
	for _, row := range rows {
		tables = append(tables, Table{Name: stringValue(row["name"]), Label: stringValue(row["label"])})
	}
	return tables, nil
}

// ListTableFields returns the dictionary entries of a table. An invalid table
// name yields an empty result without a request.
func (c *Client) ListTableFields(ctx context.Context, table string) ([]TableField, error) {
	if !ValidTableName(table) {
		return []TableField{}, nil
	}

	q := url.Values{}
	q.Set("sysparm_query", "name="+table+"^elementISNOTEMPTY")
	q.Set("sysparm_fields", "element,column_label,internal_type")
	q.Set("sysparm_limit", strconv.Itoa(fieldListLimit))

	var rows []map[string]any
	if _, err := c.do(ctx, http.MethodGet, "sys_dictionary", q, nil, &rows); err != nil {
		return nil, fmt.Errorf("failed to list fields of %s: %w", table, err)
	}

	fields := make([]TableField, 0, len(rows))
	for _, row := range rows {
		fields = append(fields, TableField{
			Name:  stringValue(row["element"]),
			Label: stringValue(row["column_label"]),
			Type:  stringValue(row["internal_type"]),
		})
	}
	return fields, nil
}

// FetchRecords reads one page of a table. The total is taken from the
// X-Total-Count header and is 0 when the header is absent. An invalid table
// name yields an empty result without a request; invalid field names are
// dropped.
func (c *Client) FetchRecords(ctx context.Context, table string, fields []string, query string, limit, offset int) ([]Record, int, error) {
	if !ValidTableName(table) {
		return []Record{}, 0, nil
	}

	q := url.Values{}
	if limit > 0 {
		q.Set("sysparm_limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("sysparm_offset", strconv.Itoa(offset))
	}
	if query != "" {
		q.Set("sysparm_query", query)
	}
	if valid := validFields(fields); len(valid) > 0 {
		q.Set("sysparm_fields", strings.Join(valid, ","))
	}

	var records []Record
	header, err := c.do(ctx, http.MethodGet, table, q, nil, &records)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch %s: %w", table, err)
	}

	total, _ := strconv.Atoi(header.Get(totalCountField))
	if records == nil {
		records = []Record{}
	}
	return records, total, nil
}

// CreateRecord inserts a row and returns the created record, including its sys_id.
func (c *Client) CreateRecord(ctx context.Context, table string, data map[string]any) (Record, error) {
	if !ValidTableName(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}

	var created Record
	if _, err := c.do(ctx, http.MethodPost, table, nil, data, &created); err != nil {
		return nil, fmt.Errorf("failed to create %s record: %w", table, err)
	}
	return created, nil
}

// UpdateRecord patches a row identified by its 32-character hex sys_id.
func (c *Client) UpdateRecord(ctx context.Context, table, id string, data map[string]any) (Record, error) {
	if !ValidTableName(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	if !ValidRecordID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRecordID, id)
	}

	var updated Record
	if _, err := c.do(ctx, http.MethodPatch, table+"/"+id, nil, data, &updated); err != nil {
		return nil, fmt.Errorf("failed to update %s record %s: %w", table, id, err)
	}
	return updated, nil
}

// ValidTableName reports whether name is safe to use as a path segment.
func ValidTableName(name string) bool {
	return tableNamePattern.MatchString(name)
}

// ValidRecordID reports whether id looks like a remote sys_id.
func ValidRecordID(id string) bool {
	return recordIDPattern.MatchString(id)
}

func validFields(fields []string) []string {
	valid := make([]string, 0, len(fields))
	for _, f := range fields {
		if fieldNamePattern.MatchString(f) {
			valid = append(valid, f)
		}
	}
	return valid
}

// do issues one request and decodes the "result" member of the envelope into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) (http.Header, error) {
	u := c.baseURL + tableAPIPath + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.basicAuth {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return nil, fmt.Errorf("failed to decode result: %w", err)
		}
	}

	return resp.Header, nil
}

// stringValue flattens the values the table API returns, which are either
// plain scalars or {"value": ..., "display_value": ...} objects.
func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any:
		return stringValue(val["value"])
	default:
		return fmt.Sprint(val)
	}
}
