package messagestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"scamguard/internal/config"
	"scamguard/internal/domain/models"
	"scamguard/pkg/logger"
)

const defaultPageSize = 100

// Client reads outbound messages from the externally owned message store
// API. Read-only: the engine never writes messages back.
type Client struct {
	httpClient *http.Client
	cfg        config.MessageStoreConfig
	logger     *logger.Logger
}

// NewClient creates a message store client. A non-positive page size would
// keep the pagination loop from ever seeing a short page, so it is floored
// to the default here.
func NewClient(cfg config.MessageStoreConfig, log *logger.Logger) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     log.WithComponent("message-store"),
	}
}

// wire format of the store API
type messageDTO struct {
	ID           uuid.UUID `json:"id"`
	AccountID    uuid.UUID `json:"account_id"`
	Message      string    `json:"message"`
	HostNumber   string    `json:"host_number"`
	RemoteNumber string    `json:"remote_number"`
	InsertedAt   time.Time `json:"inserted_at"`
}

func (d messageDTO) toModel() models.Message {
	return models.Message{
		ID:         d.ID,
		AccountID:  d.AccountID,
		Body:       d.Message,
		FromNumber: d.HostNumber,
		ToNumber:   d.RemoteNumber,
		SentAt:     d.InsertedAt,
	}
}

// FetchUnscanned returns all outbound messages sent in [since, until),
// following pagination until a short page. Transient failures are retried
// with exponential backoff, capped at the configured attempt count.
func (c *Client) FetchUnscanned(ctx context.Context, since, until time.Time) ([]models.Message, error) {
	var all []models.Message
	page := 1

	for {
		batch, err := c.fetchPage(ctx, since, until, page)
		if err != nil {
			return nil, err
		}
		for _, dto := range batch {
			all = append(all, dto.toModel())
		}
		if len(batch) < c.cfg.PageSize {
			break
		}
		page++
	}

	c.logger.Info().
		Int("messages", len(all)).
		Time("since", since).
		Time("until", until).
		Msg("fetched messages from store")
	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, since, until time.Time, page int) ([]messageDTO, error) {
	var result []messageDTO

	operation := func() error {
		req, err := c.buildRequest(ctx, since, until, page)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("message store returned %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("message store returned %d: %s", resp.StatusCode, string(body)))
		}

		result = result[:0]
		if err := json.Unmarshal(body, &result); err != nil {
			return backoff.Permanent(fmt.Errorf("malformed message store response: %w", err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(backoff.WithInitialInterval(c.cfg.RetryBackoff)),
		uint64(c.cfg.MaxRetries),
	), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("failed to fetch messages page %d: %w", page, err)
	}
	return result, nil
}

func (c *Client) buildRequest(ctx context.Context, since, until time.Time, page int) (*http.Request, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(c.cfg.PageSize))
	params.Set("filter[type]", "outbound")
	params.Set("filter[start-inserted_at]", since.UTC().Format(time.RFC3339))
	params.Set("filter[end-inserted_at]", until.UTC().Format(time.RFC3339))
	params.Set("sort", "-inserted_at")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/smses?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
