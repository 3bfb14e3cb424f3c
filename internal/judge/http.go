// Package judge talks to the Codeforces API and the LeetCode contest feed.
package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"

	logx "cpbot/pkg/logx"
)

var (
	// ErrNetwork wraps transport failures and non-2xx responses.
	ErrNetwork = errors.New("judge: network error")
	// ErrEmpty means the judge answered but returned nothing usable.
	ErrEmpty = errors.New("judge: empty result")
)

const maxBody = 32 << 20

// Options are shared by both clients.
type Options struct {
	BaseURL  string
	Timeout  time.Duration
	Attempts uint
	// RetryDelay is the base backoff between attempts.
	RetryDelay time.Duration
	Client     *http.Client
	Log        logx.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 8 * time.Second
	}
	if o.Attempts == 0 {
		o.Attempts = 2
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 500 * time.Millisecond
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: o.Timeout}
	}
	if o.Log.IsZero() {
		o.Log = logx.Nop()
	}
	return o
}

type statusError struct{ code int }

func (e statusError) Error() string { return fmt.Sprintf("HTTP %d", e.code) }

// getJSON fetches url and decodes the body into v, retrying transport errors
// and 5xx. 4xx and decode errors fail immediately.
func getJSON(ctx context.Context, o Options, url string, v any) error {
	var last error
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Accept", "application/json")
			req.Header.Set("User-Agent", "cpbot/1.0")

			start := time.Now()
			resp, err := o.Client.Do(req)
			if err != nil {
				last = fmt.Errorf("%w: %v", ErrNetwork, err)
				return last
			}
			defer func() { _ = resp.Body.Close() }()

			o.Log.Debug("http request completed",
				logx.String("url", url),
				logx.Int("status", resp.StatusCode),
				logx.Duration("took", time.Since(start)))

			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
				last = fmt.Errorf("%w: %v", ErrNetwork, statusError{resp.StatusCode})
				if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
					return retry.Unrecoverable(last)
				}
				return last
			}
			if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(v); err != nil {
				last = fmt.Errorf("decode %s: %w", url, err)
				return retry.Unrecoverable(last)
			}
			last = nil
			return nil
		},
		retry.Attempts(o.Attempts),
		retry.Delay(o.RetryDelay),
		retry.MaxDelay(5*time.Second),
		retry.MaxJitter(250*time.Millisecond),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			o.Log.Debug("retrying request", logx.String("url", url), logx.Int("attempt", int(n)+1), logx.Err(err))
		}),
	)
	if err == nil {
		return nil
	}
	if last != nil {
		return last
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, ctx.Err())
	}
	return err
}
