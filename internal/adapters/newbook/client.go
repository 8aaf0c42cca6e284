package newbook

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"booking_feed/internal/adapters/observability"
	"booking_feed/internal/domain"
)

// TimeLayout is the timestamp format the booking API expects for periods.
const TimeLayout = "2006-01-02 15:04:05"

const maxAttempts = 4

var (
	ErrUnauthorized = errors.New("newbook: unauthorized")
	ErrForbidden    = errors.New("newbook: forbidden")
	ErrRejected     = errors.New("newbook: request rejected")
)

type Client struct {
	base string
	hc   *http.Client
	key  string // used when a location has no api key of its own
	rl   *rate.Limiter
}

func New(base, defaultKey string, rps int) *Client {
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 20 * time.Second},
		key:  defaultKey,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}
}

type listRequest struct {
	Region     string `json:"region,omitempty"`
	APIKey     string `json:"api_key"`
	PeriodFrom string `json:"period_from"`
	PeriodTo   string `json:"period_to"`
	ListType   string `json:"list_type"`
}

type listResponse struct {
	Success flexBool         `json:"success"`
	Message string           `json:"message"`
	Data    []domain.Booking `json:"data"`
}

// flexBool accepts true, "true" and 1.
type flexBool bool

func (b *flexBool) UnmarshalJSON(p []byte) error {
	s := strings.Trim(strings.TrimSpace(string(p)), `"`)
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("success flag %q: %w", s, err)
	}
	*b = flexBool(v)
	return nil
}

// FetchBookings lists every booking created or modified within [from, to].
func (c *Client) FetchBookings(ctx context.Context, creds domain.Credentials, from, to time.Time) ([]domain.Booking, error) {
	key := creds.APIKey
	if key == "" {
		key = c.key
	}
	if key == "" {
		return nil, fmt.Errorf("newbook: no api key configured")
	}
	body := listRequest{
		Region:     creds.Region,
		APIKey:     key,
		PeriodFrom: from.UTC().Format(TimeLayout),
		PeriodTo:   to.UTC().Format(TimeLayout),
		ListType:   "all",
	}

	var out listResponse
	start := time.Now()
	status, err := c.post(ctx, c.base+"/bookings_list", creds, body, &out)
	observability.ObserveExternal("newbook", "bookings_list", status, time.Since(start))
	if err != nil {
		return nil, err
	}
	if !out.Success {
		msg := out.Message
		if msg == "" {
			msg = "no message"
		}
		return nil, fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	return out.Data, nil
}

// post sends a JSON body with client-side rate limiting and retries on 429
// and transient 5xx, honoring Retry-After when provided. The returned status
// is that of the last response, 0 when none arrived.
func (c *Client) post(ctx context.Context, url string, creds domain.Credentials, in, out any) (int, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return 0, err
	}
	if err := c.rl.Wait(ctx); err != nil {
		return 0, err
	}

	var (
		lastErr error
		status  int
	)
	for i := 0; i < maxAttempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return status, err
		}
		if creds.Username != "" {
			req.SetBasicAuth(creds.Username, creds.Password)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "booking-feed/1.0")

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return status, ctx.Err()
			}
			lastErr = err
			if i < maxAttempts-1 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return status, ctx.Err()
			}
			return status, lastErr
		}

		status = resp.StatusCode
		switch resp.StatusCode {
		case http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return status, fmt.Errorf("decode response: %w", err)
			}
			return status, nil

		case http.StatusUnauthorized:
			resp.Body.Close()
			return status, ErrUnauthorized

		case http.StatusForbidden:
			resp.Body.Close()
			return status, ErrForbidden

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < maxAttempts-1 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return status, ctx.Err()
			}
			return status, lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return status, fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}
	return status, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter reads Retry-After in seconds or HTTP-date form; 0 if absent.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff doubles from 200ms per attempt with up to 50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	return base + time.Duration(0.5*float64(b[0])/255.0*float64(base))
}
