package sources

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-resty/resty/v2"
	"github.com/leadscout/leadscout/internal/models"
)

// Connector fetches raw items from one platform for a search. Transient
// failures wrap models.ErrConnectorUnavailable or models.ErrRateLimited.
type Connector interface {
	Name() string
	Fetch(ctx context.Context, spec *models.KeywordSearchSpec) ([]models.RawItem, error)
	IsEnabled() bool
}

// Registry resolves platform names to connectors
type Registry struct {
	connectors map[string]Connector
}

// NewRegistry creates a registry holding the given connectors
func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{connectors: make(map[string]Connector, len(connectors))}
	for _, c := range connectors {
		r.connectors[c.Name()] = c
	}
	return r
}

// Get returns the connector for a platform
func (r *Registry) Get(platform string) (Connector, error) {
	c, ok := r.connectors[platform]
	if !ok {
		return nil, fmt.Errorf("%w: no connector for platform %q", models.ErrValidation, platform)
	}
	return c, nil
}

// Names lists registered platforms in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// classifyResponse maps transport and HTTP failures to the shared error kinds
func classifyResponse(platform string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s request failed: %v", models.ErrConnectorUnavailable, platform, err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusOK:
		return nil
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s returned 429", models.ErrRateLimited, platform)
	case code >= 500, code == http.StatusUnauthorized, code == http.StatusForbidden:
		return fmt.Errorf("%w: %s returned status %d", models.ErrConnectorUnavailable, platform, code)
	default:
		return fmt.Errorf("%s API returned status %d", platform, code)
	}
}

// dedupeItems drops repeated source IDs, keeping the first occurrence
func dedupeItems(items []models.RawItem) []models.RawItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]models.RawItem, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.SourceID]; ok {
			continue
		}
		seen[item.SourceID] = struct{}{}
		out = append(out, item)
	}
	return out
}
