package jellyfin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"smartlists/models"
)

const (
	pageSize = 500
	// itemFields are the optional BaseItemDto fields the rules need.
	itemFields = "Genres,Tags,Studios,People,MediaStreams,Path,Overview,DateCreated,PremiereDate,DateLastSaved,SortName,OfficialRating,CriticRating,ProductionYear"
)

// StatusError is a non-2xx response from the server.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jellyfin %s %s: %d %s", e.Method, e.Path, e.Code, e.Body)
}

// Client talks to a Jellyfin server with an API key. It implements the
// catalog, user-data and user-directory interfaces the refresh pipeline
// consumes.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	attempts   uint
	retryDelay time.Duration
	log        *slog.Logger
}

type Options struct {
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewClient(baseURL, apiKey string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		attempts:   uint(opts.MaxRetries) + 1,
		retryDelay: 250 * time.Millisecond,
		log:        logger.With("component", "jellyfin"),
	}
}

func retryable(err error) bool {
	if !retry.IsRecoverable(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500 || statusErr.Code == http.StatusTooManyRequests
	}
	// Transport failures.
	return true
}

// getJSON issues a GET and decodes the body into out, retrying transport
// failures and 5xx responses.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Accept", "application/json")
			req.Header.Set("X-Emby-Token", c.apiKey)

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("jellyfin request %s: %w", path, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return &StatusError{Method: http.MethodGet, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode %s: %w", path, err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			c.log.Debug("retrying jellyfin request", "path", path, "attempt", n+1, "error", err)
		}),
	)
}

// QueryItems pages through /Items for the query.
func (c *Client) QueryItems(ctx context.Context, q models.ItemQuery) ([]models.Item, error) {
	params := url.Values{}
	if len(q.Kinds) > 0 {
		kinds := make([]string, 0, len(q.Kinds))
		for _, k := range q.Kinds {
			kinds = append(kinds, string(k))
		}
		params.Set("IncludeItemTypes", strings.Join(kinds, ","))
	}
	if q.ParentID != "" {
		params.Set("ParentId", q.ParentID)
	}
	if q.UserID != "" {
		params.Set("UserId", q.UserID)
	}
	params.Set("Recursive", strconv.FormatBool(q.Recursive))
	params.Set("Fields", itemFields)
	params.Set("Limit", strconv.Itoa(pageSize))

	var items []models.Item
	for start := 0; ; start += pageSize {
		params.Set("StartIndex", strconv.Itoa(start))
		var page itemsResponse
		if err := c.getJSON(ctx, "/Items", params, &page); err != nil {
			return nil, err
		}
		for _, dto := range page.Items {
			items = append(items, toItem(dto))
		}
		if len(page.Items) < pageSize || len(items) >= page.TotalRecordCount {
			break
		}
	}
	return items, nil
}

// GetItemByID fetches one item with the rule fields populated.
func (c *Client) GetItemByID(ctx context.Context, id string) (models.Item, error) {
	params := url.Values{}
	params.Set("Ids", id)
	params.Set("Fields", itemFields)

	var page itemsResponse
	if err := c.getJSON(ctx, "/Items", params, &page); err != nil {
		return models.Item{}, err
	}
	if len(page.Items) == 0 {
		return models.Item{}, fmt.Errorf("item %s: %w", id, models.ErrItemNotFound)
	}
	return toItem(page.Items[0]), nil
}

// GetUserData reads the playback state of item for userID.
func (c *Client) GetUserData(ctx context.Context, userID string, item models.Item) (models.UserData, error) {
	var dto itemDTO
	path := "/Users/" + url.PathEscape(userID) + "/Items/" + url.PathEscape(item.ID)
	if err := c.getJSON(ctx, path, nil, &dto); err != nil {
		return models.UserData{}, err
	}
	return toUserData(dto.UserData), nil
}

// IsPlayed trusts the server's played flag, which already aggregates
// children for folders and series.
func (c *Client) IsPlayed(_ context.Context, _ string, _ models.Item, data models.UserData) bool {
	return data.Played
}

// GetUserByID resolves a user; an unknown id maps to models.ErrUserNotFound.
func (c *Client) GetUserByID(ctx context.Context, id string) (models.User, error) {
	var dto userDTO
	err := c.getJSON(ctx, "/Users/"+url.PathEscape(id), nil, &dto)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && (statusErr.Code == http.StatusNotFound || statusErr.Code == http.StatusBadRequest) {
		return models.User{}, fmt.Errorf("user %s: %w", id, models.ErrUserNotFound)
	}
	if err != nil {
		return models.User{}, err
	}
	return models.User{ID: dto.ID, Name: dto.Name}, nil
}

// Ping checks connectivity and credentials.
func (c *Client) Ping(ctx context.Context) error {
	var info struct {
		ServerName string `json:"ServerName"`
		Version    string `json:"Version"`
	}
	if err := c.getJSON(ctx, "/System/Info", nil, &info); err != nil {
		return err
	}
	c.log.Info("connected to jellyfin", "server", info.ServerName, "version", info.Version)
	return nil
}
