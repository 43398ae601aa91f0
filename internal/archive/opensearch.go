// Package archive copies accepted security events into an OpenSearch index
// for long-term search, independent of the relational store of record.
package archive

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/steelmarket-systems/gsocc/internal/models"
)

// Config holds OpenSearch connection settings.
type Config struct {
	URL           string
	Username      string
	Password      string
	Index         string
	TLSSkipVerify bool
}

// Client indexes events into OpenSearch.
type Client struct {
	osClient *opensearch.Client
	index    string
}

// NewClient creates an OpenSearch archive client.
func NewClient(cfg Config) (*Client, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.TLSSkipVerify,
			},
		},
	}

	osCfg := opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	}

	client, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	index := cfg.Index
	if index == "" {
		index = "gsocc-events"
	}

	return &Client{osClient: client, index: index}, nil
}

// Ping verifies the cluster is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req := opensearchapi.InfoRequest{}
	res, err := req.Do(ctx, c.osClient)
	if err != nil {
		return fmt.Errorf("failed to connect to opensearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch returned error: %s", res.Status())
	}
	return nil
}

// ArchiveEvent indexes one event, keyed by its event id so retries stay
// idempotent.
func (c *Client) ArchiveEvent(ctx context.Context, event *models.SecurityEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index:      c.index,
		DocumentID: event.ID,
		Body:       strings.NewReader(string(body)),
	}

	res, err := req.Do(ctx, c.osClient)
	if err != nil {
		return fmt.Errorf("failed to index event: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch index request failed: %s", res.Status())
	}
	return nil
}
