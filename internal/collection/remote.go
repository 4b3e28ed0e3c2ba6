package collection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultRemoteTimeout = 8 * time.Second
	maxResponseBytes     = 8 << 20

	// CodeRecordNotFound is the error code the backend uses when the endpoint
	// exists but the addressed record does not.
	CodeRecordNotFound = "RECORD_NOT_FOUND"
)

// TokenSource supplies the bearer credential forwarded on every call. The
// adapter never refreshes it.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed credential.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// Remote talks to the collections REST surface:
//
//	GET    {base}/api/collections/{name}?k=v
//	POST   {base}/api/collections/{name}
//	PATCH  {base}/api/collections/{name}/{id}
//	DELETE {base}/api/collections/{name}/{id}
type Remote struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// RemoteOption configures a Remote backend.
type RemoteOption func(*Remote)

// WithHTTPClient replaces the default client (8s timeout).
func WithHTTPClient(client *http.Client) RemoteOption {
	return func(r *Remote) {
		if client != nil {
			r.httpClient = client
		}
	}
}

func WithTokenSource(tokens TokenSource) RemoteOption {
	return func(r *Remote) {
		r.tokens = tokens
	}
}

func NewRemote(baseURL string, opts ...RemoteOption) *Remote {
	r := &Remote{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultRemoteTimeout},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var errRecordNotFound = errors.New("collection: remote record not found")

func (r *Remote) Find(ctx context.Context, collection string, filter Filter) ([]Record, error) {
	want, err := Normalize(filter)
	if err != nil {
		return nil, fmt.Errorf("normalize filter: %w", err)
	}
	query := url.Values{}
	for key, value := range want {
		if scalar, ok := scalarString(value); ok {
			query.Set(key, scalar)
		}
	}
	endpoint := r.collectionURL(collection)
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	var records []Record
	if err := r.do(ctx, http.MethodGet, endpoint, nil, &records); err != nil {
		if errors.Is(err, errRecordNotFound) {
			return nil, fmt.Errorf("%w: list %s: endpoint reported missing record", ErrUnavailable, collection)
		}
		return nil, err
	}

	matched := make([]Record, 0, len(records))
	for _, record := range records {
		if Matches(record, want) {
			matched = append(matched, record)
		}
	}
	return matched, nil
}

func (r *Remote) FindOne(ctx context.Context, collection string, filter Filter) (Record, bool, error) {
	records, err := r.Find(ctx, collection, filter)
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return nil, false, nil
	}
	return records[0], true, nil
}

func (r *Remote) InsertOne(ctx context.Context, collection string, payload Record) (Record, error) {
	var created Record
	if err := r.do(ctx, http.MethodPost, r.collectionURL(collection), StripIdentity(payload), &created); err != nil {
		if errors.Is(err, errRecordNotFound) {
			return nil, fmt.Errorf("%w: create %s: endpoint reported missing record", ErrUnavailable, collection)
		}
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("%w: create %s: empty response", ErrUnavailable, collection)
	}
	// Without the stored id the record could never be found again.
	if created.ID() == "" {
		return nil, fmt.Errorf("%w: create %s: response carries no id", ErrUnavailable, collection)
	}
	return created, nil
}

func (r *Remote) UpdateOne(ctx context.Context, collection string, filter Filter, update Record) (bool, error) {
	existing, ok, err := r.FindOne(ctx, collection, filter)
	if err != nil || !ok {
		return false, err
	}
	var updated Record
	err = r.do(ctx, http.MethodPatch, r.recordURL(collection, existing.ID()), StripIdentity(update), &updated)
	if errors.Is(err, errRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Remote) DeleteOne(ctx context.Context, collection string, filter Filter) (bool, error) {
	existing, ok, err := r.FindOne(ctx, collection, filter)
	if err != nil || !ok {
		return false, err
	}
	var result struct {
		Deleted bool `json:"deleted"`
	}
	err = r.do(ctx, http.MethodDelete, r.recordURL(collection, existing.ID()), nil, &result)
	if errors.Is(err, errRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return result.Deleted, nil
}

func (r *Remote) collectionURL(collection string) string {
	return r.baseURL + "/api/collections/" + url.PathEscape(collection)
}

func (r *Remote) recordURL(collection, id string) string {
	return r.collectionURL(collection) + "/" + url.PathEscape(id)
}

// do performs one request and classifies the outcome. Transport failures,
// non-JSON bodies, 401, 5xx and endpoint-level 404s wrap ErrUnavailable; other
// 4xx responses with an error envelope become *RemoteError.
func (r *Remote) do(ctx context.Context, method, endpoint string, body any, target any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.tokens != nil {
		if token := strings.TrimSpace(r.tokens.Token()); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s %s: %v", ErrUnavailable, method, endpoint, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(raw, target); err != nil {
			return fmt.Errorf("%w: %s %s: response is not JSON: %v", ErrUnavailable, method, endpoint, err)
		}
		return nil
	}

	var envelope struct {
		Code    string `json:"code"`
		Error   string `json:"error"`
		Details any    `json:"details"`
	}
	parsed := json.Unmarshal(raw, &envelope) == nil && (envelope.Code != "" || envelope.Error != "")

	switch {
	case resp.StatusCode == http.StatusNotFound && parsed && envelope.Code == CodeRecordNotFound:
		return errRecordNotFound
	case !parsed,
		resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s: status %s", ErrUnavailable, method, endpoint, strconv.Itoa(resp.StatusCode))
	default:
		return &RemoteError{
			Status:  resp.StatusCode,
			Code:    envelope.Code,
			Message: envelope.Error,
			Details: envelope.Details,
		}
	}
}

func scalarString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}
