// Package testutil starts the backing services of discoverd in containers
// for integration and e2e tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloo-solutions/discover/internal/database"
	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Service is a started container reachable on one mapped port.
type Service struct {
	Container testcontainers.Container
	Host      string
	Port      string
}

// Terminate stops and removes the container.
func (s *Service) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(s.Container)
}

func (s *Service) httpURL() string {
	return fmt.Sprintf("http://%s:%s", s.Host, s.Port)
}

// start runs req and resolves the host mapping of port, failing t on error.
func start(ctx context.Context, t *testing.T, name string, port string, req testcontainers.ContainerRequest) Service {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to create %s container: %v", name, err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get %s host: %v", name, err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		t.Fatalf("failed to get %s port: %v", name, err)
	}

	return Service{Container: container, Host: host, Port: mapped.Port()}
}

const pgCredentials = "discover"

// PostgresContainer holds the export audit log database.
type PostgresContainer struct {
	Service
}

// NewPostgresContainer starts an empty PostgreSQL database.
func NewPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	svc := start(ctx, t, "postgres", "5432/tcp", testcontainers.ContainerRequest{
		Image:        "postgres:17-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     pgCredentials,
			"POSTGRES_PASSWORD": pgCredentials,
			"POSTGRES_DB":       pgCredentials,
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(60 * time.Second),
	})
	return &PostgresContainer{Service: svc}
}

// ConnectionString returns the PostgreSQL connection string.
func (pc *PostgresContainer) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		pgCredentials, pgCredentials, pc.Host, pc.Port, pgCredentials)
}

// NewTestPool migrates the database from migrationsDir and returns a pool
// on it. Connection attempts are retried while the server finishes booting.
func NewTestPool(ctx context.Context, t *testing.T, pc *PostgresContainer, migrationsDir string) *pgxpool.Pool {
	t.Helper()

	dir, err := filepath.Abs(migrationsDir)
	if err != nil {
		t.Fatalf("failed to resolve migrations dir: %v", err)
	}

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= 5; attempt++ {
		pool, err = database.NewPool(ctx, database.Config{URL: pc.ConnectionString(), MaxConns: 4})
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("failed to connect after retries: %v", err)
	}

	if err := database.Migrate(pc.ConnectionString(), "file://"+dir); err != nil {
		pool.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	return pool
}

// TruncateAll empties every table the migrations create.
func TruncateAll(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, "TRUNCATE TABLE export_logs"); err != nil {
		return fmt.Errorf("failed to truncate export_logs: %w", err)
	}
	return nil
}

// RustFSCredentials is both the access key and secret of test containers.
const RustFSCredentials = "rustfsadmin"

// RustFSContainer is an S3-compatible store for archival tests.
type RustFSContainer struct {
	Service
}

// NewRustFSContainer starts a RustFS container with the credentials in RustFSCredentials.
func NewRustFSContainer(ctx context.Context, t *testing.T) *RustFSContainer {
	svc := start(ctx, t, "rustfs", "9000/tcp", testcontainers.ContainerRequest{
		Image:        "rustfs/rustfs:latest",
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": RustFSCredentials,
			"RUSTFS_SECRET_KEY": RustFSCredentials,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	})
	return &RustFSContainer{Service: svc}
}

// Endpoint returns the S3 endpoint URL.
func (rc *RustFSContainer) Endpoint() string {
	return rc.httpURL()
}

// ElasticsearchContainer is a single-node cluster with security disabled.
type ElasticsearchContainer struct {
	Service
}

// NewElasticsearchContainer starts a single-node Elasticsearch container.
func NewElasticsearchContainer(ctx context.Context, t *testing.T) *ElasticsearchContainer {
	svc := start(ctx, t, "elasticsearch", "9200/tcp", testcontainers.ContainerRequest{
		Image:        "docker.elastic.co/elasticsearch/elasticsearch:8.17.1",
		ExposedPorts: []string{"9200/tcp"},
		Env: map[string]string{
			"discovery.type":         "single-node",
			"xpack.security.enabled": "false",
			"ES_JAVA_OPTS":           "-Xms512m -Xmx512m",
		},
		WaitingFor: wait.ForHTTP("/_cluster/health?wait_for_status=yellow").
			WithPort("9200/tcp").
			WithStartupTimeout(120 * time.Second),
	})
	return &ElasticsearchContainer{Service: svc}
}

// URL returns the cluster's HTTP address.
func (ec *ElasticsearchContainer) URL() string {
	return ec.httpURL()
}
