// Package gateway is the only component that talks to the search cluster.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/cloo-solutions/discover/internal/domain"
	"github.com/cloo-solutions/discover/internal/telemetry"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Config holds the settings for connecting to the cluster.
type Config struct {
	Addresses   []string
	Username    string
	Password    string
	ConfigIndex string
	Transport   http.RoundTripper
}

// Gateway wraps the Elasticsearch client together with the search scope
// resolved at startup.
type Gateway struct {
	client      *elasticsearch.Client
	configIndex string

	initOnce sync.Once
	scope    atomic.Pointer[string]
}

// New creates a Gateway. No request is made until Init or a search.
func New(cfg Config) (*Gateway, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	configIndex := cfg.ConfigIndex
	if configIndex == "" {
		configIndex = DefaultConfigIndex
	}

	return &Gateway{client: client, configIndex: configIndex}, nil
}

// Ping checks that the cluster is reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	res, err := g.client.Ping(g.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("ping: %w", backendError(res))
	}
	return nil
}

// Execute runs a search and decodes the response. The request is cancelled
// when ctx ends.
func (g *Gateway) Execute(ctx context.Context, q domain.SearchQuery) (*domain.SearchResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "Gateway.Execute", telemetry.SpanAttributes{
		Index:     q.Index,
		Operation: "search",
	})
	defer span.End()

	search := g.client.Search
	opts := []func(*esapi.SearchRequest){
		search.WithContext(ctx),
		search.WithBody(bytes.NewReader(q.Body)),
		search.WithIgnoreUnavailable(true),
	}
	if q.Index != "" {
		opts = append(opts, search.WithIndex(q.Index))
	}
	if len(q.FilterPath) > 0 {
		opts = append(opts, search.WithFilterPath(q.FilterPath...))
	}

	res, err := search(opts...)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("search %s: %w", q.Index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		err := backendError(res)
		span.SetError(err)
		return nil, fmt.Errorf("search %s: %w", q.Index, err)
	}

	var out domain.SearchResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil && err != io.EOF {
		span.SetError(err)
		return nil, fmt.Errorf("search %s: failed to decode response: %w", q.Index, err)
	}
	return &out, nil
}

// ResolveIndices lists the concrete indices matching pattern. A pattern that
// matches nothing yields an empty list and no error.
func (g *Gateway) ResolveIndices(ctx context.Context, pattern string) ([]string, error) {
	cat := g.client.Cat.Indices
	res, err := cat(
		cat.WithContext(ctx),
		cat.WithIndex(pattern),
		cat.WithFormat("json"),
		cat.WithH("index"),
	)
	if err != nil {
		return nil, fmt.Errorf("cat indices %s: %w", pattern, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("cat indices %s: %w", pattern, backendError(res))
	}

	var rows []struct {
		Index string `json:"index"`
	}
	if err := json.NewDecoder(res.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("cat indices %s: failed to decode response: %w", pattern, err)
	}

	indices := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.Index != "" {
			indices = append(indices, r.Index)
		}
	}
	return indices, nil
}

type errorBody struct {
	Error  domain.FailureReason `json:"error"`
	Status int                  `json:"status"`
}

func backendError(res *esapi.Response) error {
	var body errorBody
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.String() != "" {
		return domain.NewDomainErrorWithCause(domain.ErrCodeBackend, domain.ErrBackendRejected.Message,
			fmt.Errorf("%s: %s", res.Status(), body.Error.String()))
	}
	log.Printf("gateway: unexpected error response %s: %s", res.Status(), bytes.TrimSpace(raw))
	return domain.NewDomainErrorWithCause(domain.ErrCodeBackend, domain.ErrBackendRejected.Message,
		fmt.Errorf("%s", res.Status()))
}
