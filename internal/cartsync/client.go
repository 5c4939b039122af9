package cartsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"storefront/internal/domain/entity"
	"storefront/pkg/httpx"
	"storefront/pkg/logx"
	"storefront/pkg/middlewarex"
	"storefront/pkg/rest"
)

const defaultTimeout = 10 * time.Second

type tokenSource interface {
	Token(ctx context.Context) (string, error)
}

// APIError is a non-successful API response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cart api: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Permanent reports whether repeating the request cannot succeed.
func (e *APIError) Permanent() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}

	return e.StatusCode >= http.StatusBadRequest && e.StatusCode < http.StatusInternalServerError
}

func isPermanent(err error) bool {
	if errors.Is(err, errUnknownOperation) {
		return true
	}

	var apiErr *APIError

	return errors.As(err, &apiErr) && apiErr.Permanent()
}

// Client calls the server cart API on behalf of a logged-in user.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a Client for the API at baseURL. Requests carry the
// session token and CSRF header and are logged with secrets masked.
func NewClient(baseURL string, token tokenSource, opts ...httpx.Option) *Client {
	transport := httpx.NewLoggingRoundTripper(
		httpx.NewSessionRoundTripper(
			http.DefaultTransport,
			token,
			middlewarex.CSRFHeaderName,
			middlewarex.CSRFCookieName,
		),
		append([]httpx.Option{httpx.WithSensitiveDataMasker(logx.NewSensitiveDataMasker())}, opts...)...,
	)

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   defaultTimeout,
		},
	}
}

// Get fetches the server cart.
func (c *Client) Get(ctx context.Context) (entity.Cart, error) {
	var cart entity.Cart

	err := c.do(ctx, http.MethodGet, "/api/cart", nil, &cart)

	return cart, err
}

// Sync upserts the local lines in one request and returns the server cart.
func (c *Client) Sync(ctx context.Context, items []entity.CartItem) (entity.Cart, error) {
	request := rest.SyncCartRequest{Items: make([]rest.CartLine, len(items))}
	for i, item := range items {
		request.Items[i] = newCartLine(item)
	}

	var cart entity.Cart

	err := c.do(ctx, http.MethodPost, "/api/cart/sync", request, &cart)

	return cart, err
}

// UpdateQuantity sets the quantity of a line and returns the server cart.
func (c *Client) UpdateQuantity(ctx context.Context, variantID int64, quantity int) (entity.Cart, error) {
	var cart entity.Cart

	err := c.do(ctx, http.MethodPut, "/api/cart/"+strconv.FormatInt(variantID, 10),
		rest.UpdateQuantityRequest{Quantity: quantity}, &cart)

	return cart, err
}

// Remove deletes a line and returns the server cart.
func (c *Client) Remove(ctx context.Context, variantID int64) (entity.Cart, error) {
	var cart entity.Cart

	err := c.do(ctx, http.MethodDelete, "/api/cart/"+strconv.FormatInt(variantID, 10), nil, &cart)

	return cart, err
}

// Clear empties the server cart.
func (c *Client) Clear(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/cart", nil, nil)
}

type envelope struct {
	Success bool                `json:"success"`
	Data    jsoniter.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, endpoint string, request, dest any) error {
	body := io.Reader(http.NoBody)

	if request != nil {
		b, err := json.Marshal(request)
		if err != nil {
			return fmt.Errorf("json.Marshal: %w", err)
		}

		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("http.NewRequestWithContext: %w", err)
	}

	if request != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpClient.Do: %w", err)
	}

	defer resp.Body.Close()

	var env envelope
	if err = json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s response (%d): %w", method, endpoint, resp.StatusCode, err)
	}

	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}

		return apiErr
	}

	if dest != nil && len(env.Data) > 0 {
		if err = json.Unmarshal(env.Data, dest); err != nil {
			return fmt.Errorf("json.Unmarshal(data): %w", err)
		}
	}

	return nil
}

func newCartLine(item entity.CartItem) rest.CartLine {
	return rest.CartLine{
		VariantID: item.VariantID,
		Quantity:  item.Quantity,
		PriceType: item.PriceType.String(),
		ExtraInfo: item.ExtraInfo,
	}
}
