//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/discover/internal/api/handlers"
	"github.com/cloo-solutions/discover/internal/export"
	"github.com/cloo-solutions/discover/internal/gateway"
	"github.com/cloo-solutions/discover/internal/repository"
	"github.com/cloo-solutions/discover/internal/server"
	"github.com/cloo-solutions/discover/internal/service"
	"github.com/cloo-solutions/discover/internal/storage"
	"github.com/cloo-solutions/discover/internal/testutil"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	configIndex = ".discover-config"
	logsPattern = "logs-*"
)

// E2ETestEnv holds the containers and the in-process server.
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	ES         *testutil.ElasticsearchContainer
	PostgresC  *testutil.PostgresContainer
	RustFSC    *testutil.RustFSContainer
	Pool       *pgxpool.Pool
	Cluster    *elasticsearch.Client
	Server     *httptest.Server
	Token      string
	HTTPClient *http.Client
}

// SetupE2EEnv starts Elasticsearch, PostgreSQL and RustFS, seeds the
// cluster, and serves the full router with auth, audit log and archival.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()
	env := &E2ETestEnv{T: t, Ctx: ctx, HTTPClient: &http.Client{Timeout: 30 * time.Second}}

	env.ES = testutil.NewElasticsearchContainer(ctx, t)
	env.PostgresC = testutil.NewPostgresContainer(ctx, t)
	env.RustFSC = testutil.NewRustFSContainer(ctx, t)
	env.Pool = testutil.NewTestPool(ctx, t, env.PostgresC, "../../migrations")

	cluster, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{env.ES.URL()}})
	if err != nil {
		t.Fatalf("failed to create elasticsearch client: %v", err)
	}
	env.Cluster = cluster
	env.seed()

	objects, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        env.RustFSC.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     testutil.RustFSCredentials,
		SecretAccessKey: testutil.RustFSCredentials,
		Bucket:          "discover-e2e",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	gw, err := gateway.New(gateway.Config{Addresses: []string{env.ES.URL()}, ConfigIndex: configIndex})
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}
	gw.Init(ctx)

	token, err := service.GenerateAPIToken()
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	env.Token = token

	logs := repository.NewExportLogRepository(env.Pool)
	coordinator := export.NewCoordinator(gw, gw.Scope,
		export.WithTimeout(10*time.Second),
		export.WithLogStore(logs),
		export.WithArchiver(objects),
	)

	env.Server = httptest.NewServer(server.NewRouter(server.RouterConfig{
		AuthValidator: service.NewTokenAuthService(token),
		Cluster:       gw,
		ExportHandler: handlers.NewExportHandler(coordinator, logs),
		SearchHandler: handlers.NewSearchHandler(service.NewSearchService(gw, gw.Scope, "@timestamp", 500)),
	}))

	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.Server != nil {
		e.Server.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.ES != nil {
		e.ES.Terminate(e.Ctx)
	}
}

// seedBase is the timestamp of the oldest seeded document.
var seedBase = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// seed writes the config document and ten log lines spread over two
// indices, one minute apart, then refreshes.
func (e *E2ETestEnv) seed() {
	e.index(configIndex, "config:1", map[string]any{
		"type":   "config",
		"config": map[string]any{"defaultIndex": logsPattern},
	})

	for i := range 10 {
		idx := "logs-a"
		if i%2 == 1 {
			idx = "logs-b"
		}
		doc := map[string]any{
			"@timestamp": seedBase.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			"host":       fmt.Sprintf("web-%d", i%3),
			"status":     200,
			"message":    fmt.Sprintf(`request "%d"`, i),
		}
		if i == 7 {
			doc["status"] = 500
		}
		e.index(idx, fmt.Sprintf("doc-%d", i), doc)
	}

	res, err := e.Cluster.Indices.Refresh()
	if err != nil {
		e.T.Fatalf("failed to refresh: %v", err)
	}
	res.Body.Close()
}

func (e *E2ETestEnv) index(index, id string, doc map[string]any) {
	body, _ := json.Marshal(doc)
	res, err := e.Cluster.Index(index, bytes.NewReader(body), e.Cluster.Index.WithDocumentID(id))
	if err != nil {
		e.T.Fatalf("failed to index %s/%s: %v", index, id, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		e.T.Fatalf("failed to index %s/%s: %s", index, id, res.String())
	}
}

// Response is one server reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Data decodes the data field of an enveloped JSON reply.
func (r *Response) Data(v any) error {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(r.Body, &env); err != nil {
		return err
	}
	return json.Unmarshal(env.Data, v)
}

// Do sends an authenticated request to the server.
func (e *E2ETestEnv) Do(method, path string, body any) *Response {
	return e.DoWithToken(method, path, body, e.Token)
}

// DoWithToken sends a request with the given bearer token, or none.
func (e *E2ETestEnv) DoWithToken(method, path string, body any, token string) *Response {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			e.T.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(e.Ctx, method, e.Server.URL+path, reader)
	if err != nil {
		e.T.Fatalf("failed to build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		e.T.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		e.T.Fatalf("failed to read body: %v", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
}

// CSVLines splits a CSV body into its lines.
func CSVLines(body []byte) []string {
	return strings.Split(strings.TrimSuffix(string(body), "\n"), "\n")
}
