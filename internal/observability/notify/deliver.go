package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"
)

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 512

// PostJSONOptions configures PostJSON.
type PostJSONOptions struct {
	Client *http.Client
	URL    string
	Body   []byte
	// Name prefixes errors, e.g. "slack".
	Name string
	// Retries is the number of extra attempts after the first.
	Retries int
	Delay   time.Duration
}

// PostJSON posts a JSON body and retries transport errors and non-2xx responses with a
// linear backoff.
func PostJSON(ctx context.Context, opts PostJSONOptions) error {
	delay := opts.Delay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	attempts := uint(max(opts.Retries, 0)) + 1

	return retry.Do(
		func() error { return postOnce(ctx, opts) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return time.Duration(n+1) * delay
		}),
		retry.LastErrorOnly(true),
	)
}

func postOnce(ctx context.Context, opts PostJSONOptions) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.URL, bytes.NewReader(opts.Body))
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("create %s request: %w", opts.Name, err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := opts.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", opts.Name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorResponse(opts.Name, resp)
	}
	return drain(opts.Name, resp)
}

func drain(name string, resp *http.Response) error {
	_, err := io.Copy(io.Discard, resp.Body)
	closeErr := resp.Body.Close()
	if err != nil {
		return errors.Join(fmt.Errorf("drain %s response body: %w", name, err), closeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close response body: %w", closeErr)
	}
	return nil
}

func errorResponse(name string, resp *http.Response) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	closeErr := resp.Body.Close()
	if readErr != nil {
		return errors.Join(fmt.Errorf("read %s error response: %w", name, readErr), closeErr)
	}
	return fmt.Errorf("%s %s: %s", name, resp.Status, strings.TrimSpace(string(body)))
}

// Fallback returns fallback when value is blank.
func Fallback(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
