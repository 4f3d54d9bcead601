// Package notionq mirrors review-queue entries into a Notion database so
// analysts can triage value clashes without database access.
package notionq

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Notion API operations used by the review queue.
type Client interface {
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
}

// Entry is one review item to mirror.
type Entry struct {
	RunID         string
	Segment       string
	EntityName    string
	Period        int
	Metric        string
	ExistingValue float64
	IncomingValue float64
	DetectedAt    time.Time
}

// ClientOption configures the Notion client.
type ClientOption func(*notionClient)

// WithRateLimit overrides the default rate limit (3 req/s, Notion's cap).
func WithRateLimit(rps float64) ClientOption {
	return func(c *notionClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// notionClient implements Client by wrapping a *notionapi.Client.
type notionClient struct {
	inner   *notionapi.Client
	limiter *rate.Limiter
}

// NewClient creates a new Notion client with the given integration token.
// API calls are throttled to 3 req/s by default.
func NewClient(token string, opts ...ClientOption) Client {
	c := &notionClient{
		inner:   notionapi.NewClient(notionapi.Token(token)),
		limiter: rate.NewLimiter(3, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *notionClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "notionq: rate limit")
		}
	}
	page, err := c.inner.Page.Create(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "notionq: create page")
	}
	return page, nil
}

// Queue publishes review entries to one Notion database.
type Queue struct {
	client Client
	dbID   string
}

// NewQueue creates a queue targeting the given review database.
func NewQueue(client Client, dbID string) *Queue {
	return &Queue{client: client, dbID: dbID}
}

// Publish mirrors a batch of entries, one page each. It stops at the first
// failure and reports how many pages were created before it.
func (q *Queue) Publish(ctx context.Context, entries []Entry) (int, error) {
	for i, e := range entries {
		if _, err := q.client.CreatePage(ctx, q.pageRequest(e)); err != nil {
			return i, eris.Wrapf(err, "notionq: publish entry %s/%s %d %s",
				e.Segment, e.EntityName, e.Period, e.Metric)
		}
	}
	return len(entries), nil
}

func (q *Queue) pageRequest(e Entry) *notionapi.PageCreateRequest {
	title := fmt.Sprintf("%s — %s %d", e.EntityName, e.Metric, e.Period)
	return &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(q.dbID),
		},
		Properties: notionapi.Properties{
			"Name": notionapi.TitleProperty{
				Title: []notionapi.RichText{{Text: &notionapi.Text{Content: title}}},
			},
			"Run": notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: e.RunID}}},
			},
			"Segment": notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: e.Segment}}},
			},
			"Metric": notionapi.SelectProperty{
				Select: notionapi.Option{Name: e.Metric},
			},
			"Period": notionapi.NumberProperty{
				Number: float64(e.Period),
			},
			"Existing": notionapi.NumberProperty{
				Number: e.ExistingValue,
			},
			"Incoming": notionapi.NumberProperty{
				Number: e.IncomingValue,
			},
			"Detected": notionapi.DateProperty{
				Date: &notionapi.DateObject{
					Start: (*notionapi.Date)(&e.DetectedAt),
				},
			},
		},
	}
}
