package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"carelink/internal/domain"
)

const feedPath = "/ws/atomfeed/patient/"

// PageSource fetches one feed page by token. Satisfied by Client and by test
// fakes.
type PageSource interface {
	GetPage(ctx context.Context, token string) (*Page, error)
}

// Client fetches feed pages over HTTP for one endpoint.
type Client struct {
	http *resty.Client
	log  *zap.Logger
}

func NewClient(ep domain.Endpoint, timeout time.Duration, log *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(ep.BaseURL).
		SetTimeout(timeout).
		SetBasicAuth(ep.Username, ep.Password)

	return &Client{http: httpClient, log: log}
}

// GetPage fetches and parses the page behind an opaque token.
func (c *Client) GetPage(ctx context.Context, token string) (*Page, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(feedPath + token)
	if err != nil {
		return nil, fmt.Errorf("fetch feed page %q: %w", token, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch feed page %q: registry returned %s", token, resp.Status())
	}
	page, err := ParsePage(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("feed page %q: %w", token, err)
	}
	c.log.Debug("fetched feed page",
		zap.String("token", token),
		zap.Int("entries", len(page.Entries)),
		zap.String("next_archive", page.NextArchive),
	)
	return page, nil
}
