package sparql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"depictor/pkg/request"
)

// ErrUpstreamQuery indicates the graph query service failed or returned
// something unusable.
var ErrUpstreamQuery = errors.New("sparql upstream query error")

// Client handles SPARQL queries against the configured endpoint.
type Client struct {
	request  *request.Client
	Endpoint string
	Logger   *slog.Logger
}

// NewClient creates a new SPARQL client.
func NewClient(r *request.Client, endpoint string, logger *slog.Logger) *Client {
	return &Client{
		request:  r,
		Endpoint: endpoint,
		Logger:   logger,
	}
}

// SelectIDs executes a SELECT query and returns the entity IDs bound to
// ?item (the last path segment of each result URI).
func (c *Client) SelectIDs(ctx context.Context, query, cacheKey string) ([]string, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint: %v", ErrUpstreamQuery, err)
	}

	q := u.Query()
	q.Add("query", query)
	q.Add("format", "json")
	u.RawQuery = q.Encode()

	headers := map[string]string{
		"Accept": "application/sparql-results+json",
	}

	body, err := c.request.GetWithHeaders(ctx, u.String(), headers, cacheKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamQuery, err)
	}

	var result sparqlResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode json: %v", ErrUpstreamQuery, err)
	}

	return parseBindings(result), nil
}

// -- Internal parsing structs --

type sparqlResponse struct {
	Results struct {
		Bindings []map[string]sparqlValue `json:"bindings"`
	} `json:"results"`
}

type sparqlValue struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func parseBindings(resp sparqlResponse) []string {
	var ids []string

	for _, b := range resp.Results.Bindings {
		itemURI := val(b, "item")
		id := ""
		if parts := strings.Split(itemURI, "/"); len(parts) > 0 {
			id = parts[len(parts)-1]
		}

		if id == "" {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func val(binding map[string]sparqlValue, key string) string {
	if v, ok := binding[key]; ok {
		return v.Value
	}
	return ""
}
