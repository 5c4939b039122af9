package tests

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals // skip

// Envelope mirrors the response body every API endpoint writes.
type Envelope struct {
	Success bool                `json:"success"`
	Data    jsoniter.RawMessage `json:"data"`
	Error   *APIError           `json:"error"`
}

type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	SupportID string `json:"supportId"`
}

// APIClient calls a test server and unwraps the response envelope.
type APIClient struct {
	t          testing.TB
	baseURL    string
	httpClient *http.Client
	headers    http.Header
}

func NewAPIClient(
	t testing.TB,
	baseURL string,
	httpClient *http.Client,
) APIClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return APIClient{
		t:          t,
		baseURL:    baseURL,
		httpClient: httpClient,
		headers:    http.Header{},
	}
}

// WithHeader returns a copy of the client sending the header on every call.
func (a APIClient) WithHeader(key, value string) APIClient {
	headers := a.headers.Clone()
	headers.Set(key, value)
	a.headers = headers

	return a
}

func (a APIClient) Get(ctx context.Context, endpoint string, dest any) (*http.Response, Envelope, error) {
	return a.httpRequest(ctx, http.MethodGet, endpoint, http.NoBody, dest)
}

func (a APIClient) Post(ctx context.Context, endpoint string, request, dest any) (*http.Response, Envelope, error) {
	body, err := encode(request)
	if err != nil {
		return nil, Envelope{}, err
	}

	return a.httpRequest(ctx, http.MethodPost, endpoint, body, dest)
}

// PostRaw sends the body as is; used for malformed payloads.
func (a APIClient) PostRaw(ctx context.Context, endpoint, raw string, dest any) (*http.Response, Envelope, error) {
	return a.httpRequest(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte(raw)), dest)
}

func (a APIClient) Put(ctx context.Context, endpoint string, request, dest any) (*http.Response, Envelope, error) {
	body, err := encode(request)
	if err != nil {
		return nil, Envelope{}, err
	}

	return a.httpRequest(ctx, http.MethodPut, endpoint, body, dest)
}

func (a APIClient) Delete(ctx context.Context, endpoint string, dest any) (*http.Response, Envelope, error) {
	return a.httpRequest(ctx, http.MethodDelete, endpoint, http.NoBody, dest)
}

func (a APIClient) httpRequest(
	ctx context.Context,
	httpMethod string,
	endpoint string,
	payload io.Reader,
	dest any,
) (*http.Response, Envelope, error) {
	req, err := http.NewRequestWithContext(ctx, httpMethod, a.baseURL+endpoint, payload)
	if err != nil {
		return nil, Envelope{}, fmt.Errorf("http.NewRequestWithContext: %w", err)
	}

	if payload != http.NoBody {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range a.headers {
		req.Header[k] = v
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, Envelope{}, fmt.Errorf("httpClient.Do: %w", err)
	}

	defer resp.Body.Close()

	envelope, err := parseResponse(resp, dest)
	if err != nil {
		return nil, Envelope{}, fmt.Errorf("parseResponse: %w", err)
	}

	a.t.Logf("%s %s -> %d success=%t", req.Method, req.URL.Path, resp.StatusCode, envelope.Success)

	return resp, envelope, nil
}

func encode(request any) (io.Reader, error) {
	b, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("json.Marshal: %w", err)
	}

	return bytes.NewReader(b), nil
}

func parseResponse(r *http.Response, dest any) (Envelope, error) {
	var envelope Envelope

	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil && !errors.Is(err, io.EOF) {
		return Envelope{}, fmt.Errorf("json.Decode(envelope): %w", err)
	}

	if envelope.Success && dest != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, dest); err != nil {
			return Envelope{}, fmt.Errorf("json.Unmarshal(data): %w", err)
		}
	}

	return envelope, nil
}
