package gateway

import (
	"context"
	"encoding/json"
	"log"
	"strconv"

	"github.com/cloo-solutions/discover/internal/domain"
	"github.com/cloo-solutions/discover/internal/telemetry"
)

const (
	// DefaultConfigIndex is where the dashboard stores its settings.
	DefaultConfigIndex = ".kibana"
	// WildcardScope searches every index.
	WildcardScope = "*"
)

var scopeFilterPath = []string{
	"hits.total",
	"hits.hits._source.defaultIndex",
	"hits.hits._source.config.defaultIndex",
}

// scopePageSize is how many settings documents are scanned for a default
// index. Documents from other versions may lack one.
const scopePageSize = 10

// Older layouts keep the settings document under _type config; newer ones
// use a type field and nest the settings under "config".
var scopeQuery = json.RawMessage(`{"size":` + strconv.Itoa(scopePageSize) + `,"query":{"bool":{"should":[` +
	`{"match":{"_type":"config"}},{"match":{"type":"config"}}` +
	`],"minimum_should_match":1}}}`)

type configSource struct {
	DefaultIndex string `json:"defaultIndex"`
	Config       *struct {
		DefaultIndex string `json:"defaultIndex"`
	} `json:"config"`
}

func (s configSource) defaultIndex() string {
	if s.DefaultIndex != "" {
		return s.DefaultIndex
	}
	if s.Config != nil {
		return s.Config.DefaultIndex
	}
	return ""
}

// LoadScope reads the default index pattern from the configuration index.
// It always returns a usable scope: when nothing is configured, or the
// lookup fails, the scope is "*" and the error says why.
func (g *Gateway) LoadScope(ctx context.Context) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "Gateway.LoadScope", telemetry.SpanAttributes{
		Index:     g.configIndex,
		Operation: "load_scope",
	})
	defer span.End()

	resp, err := g.Execute(ctx, domain.SearchQuery{
		Index:      g.configIndex,
		Body:       scopeQuery,
		FilterPath: scopeFilterPath,
	})
	if err != nil {
		return WildcardScope, domain.NewDomainErrorWithCause(domain.ErrCodeNotFound, domain.ErrConfigNotFound.Message, err)
	}

	for _, hit := range resp.HitList() {
		if hit == nil || hit.Source == nil {
			continue
		}
		raw, err := json.Marshal(hit.Source)
		if err != nil {
			continue
		}
		var src configSource
		if err := json.Unmarshal(raw, &src); err != nil {
			continue
		}
		if idx := src.defaultIndex(); idx != "" {
			return idx, nil
		}
	}

	return WildcardScope, domain.ErrConfigNotFound
}

// Init resolves the search scope once. Later calls return the stored scope.
// A failed lookup is logged and reported, never fatal.
func (g *Gateway) Init(ctx context.Context) string {
	g.initOnce.Do(func() {
		scope, err := g.LoadScope(ctx)
		if err != nil {
			log.Printf("gateway: %v; searching %q", err, scope)
			telemetry.CaptureError(ctx, err)
		} else {
			log.Printf("gateway: default index pattern %q", scope)
		}
		g.scope.Store(&scope)
	})
	return g.Scope()
}

// Scope returns the resolved search scope, or "*" before Init.
func (g *Gateway) Scope() string {
	if s := g.scope.Load(); s != nil {
		return *s
	}
	return WildcardScope
}
