package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dpetrovs/finsync/internal/common"
	"github.com/dpetrovs/finsync/internal/logging"
	"github.com/google/uuid"
)

// Caller is the contract higher layers depend on, so services and the
// subscriber can be tested against fakes.
type Caller interface {
	// Call executes one logical remote call with the standard timeout.
	Call(ctx context.Context, requestType string, payload any) (json.RawMessage, error)

	// CallLongPoll executes one long-poll round trip; its timeout exceeds
	// the server's blocking window.
	CallLongPoll(ctx context.Context, requestType string, payload any) (json.RawMessage, error)
}

// NetworkClock observes successful round trips. The meta store implements it
// to persist the "last successful network time" watermark.
type NetworkClock interface {
	TouchNetworkTime(t time.Time)
}

// SlowFunc is fired when a call has produced no response within a watchdog
// threshold. The elapsed argument is the threshold that was crossed.
type SlowFunc func(elapsed time.Duration)

// envelope is the wire form of one RPC request.
type envelope struct {
	RequestType string          `json:"request_type"`
	JSONData    json.RawMessage `json:"json_data"`
	SessionID   string          `json:"session_id"`
}

// Config holds connection settings for the HTTP client.
//
// Retries is the number of retries after the first attempt, so a call makes
// at most Retries+1 attempts. Zero-valued durations fall back to the
// defaults below.
type Config struct {
	BaseURL    string
	AuthPhrase string
	AuthID     string
	APIKey     string

	Retries      int
	Backoff      time.Duration
	Timeout      time.Duration
	PollTimeout  time.Duration
	SpinnerDelay time.Duration
	SlowDelay    time.Duration
}

const (
	DefaultRetries      = 3
	DefaultBackoff      = 1 * time.Second
	DefaultTimeout      = 60 * time.Second
	DefaultPollTimeout  = 130 * time.Second
	DefaultSpinnerDelay = 2 * time.Second
	DefaultSlowDelay    = 5 * time.Second
)

// Client is the HTTP implementation of Caller.
//
// The optional hooks (Clock, Slow, Foreground) may be set after construction
// and before first use; they are read-only afterwards.
type Client struct {
	cfg  Config
	http *http.Client
	log  logging.Logger

	// Clock, if set, is told about every successful response received while
	// the app is foregrounded.
	Clock NetworkClock

	// Slow, if set, is fired at the spinner and slow-network thresholds when
	// a call has not completed yet. UI concern only, never affects the call.
	Slow SlowFunc

	// Foreground reports whether the app is currently foregrounded. Nil
	// means always foregrounded.
	Foreground func() bool
}

func NewClient(cfg Config, log logging.Logger) *Client {
	if cfg.Retries <= 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.SpinnerDelay <= 0 {
		cfg.SpinnerDelay = DefaultSpinnerDelay
	}
	if cfg.SlowDelay <= 0 {
		cfg.SlowDelay = DefaultSlowDelay
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{},
		log:  log,
	}
}

func (c *Client) Call(ctx context.Context, requestType string, payload any) (json.RawMessage, error) {
	return c.call(ctx, requestType, payload, c.cfg.Timeout)
}

func (c *Client) CallLongPoll(ctx context.Context, requestType string, payload any) (json.RawMessage, error) {
	return c.call(ctx, requestType, payload, c.cfg.PollTimeout)
}

// call runs the retry loop around one logical remote call. All attempts
// share one session id for log correlation.
func (c *Client) call(ctx context.Context, requestType string, payload any, timeout time.Duration) (json.RawMessage, error) {
	if c.cfg.BaseURL == "" || c.cfg.APIKey == "" {
		return nil, common.ErrSession
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	sessionID := uuid.NewString()
	body, err := json.Marshal(envelope{RequestType: requestType, JSONData: data, SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	log := c.log.With("request_type", requestType, "session_id", sessionID)

	for attempt := 1; ; attempt++ {
		raw, err := c.once(ctx, body, timeout)
		if err == nil {
			if c.Clock != nil && (c.Foreground == nil || c.Foreground()) {
				c.Clock.TouchNetworkTime(time.Now())
			}
			return raw, nil
		}

		if errors.Is(err, common.ErrTaskCancelled) ||
			errors.Is(err, common.ErrAccessRevoked) ||
			errors.Is(err, common.ErrIncorrectCredentials) {
			return nil, err
		}
		var serverErr *ServerError
		if errors.As(err, &serverErr) {
			log.Warn(ctx, "server error", "status", serverErr.Status, "message", serverErr.Message)
			return nil, err
		}

		// Anything left is a network-level failure.
		if attempt > c.cfg.Retries {
			log.Warn(ctx, "retries exhausted", "attempts", attempt, "err", err)
			return nil, fmt.Errorf("%w: %s", common.ErrConnection, err)
		}
		log.Debug(ctx, "transient failure, retrying", "attempt", attempt, "err", err)
		if waitErr := waitWithContext(ctx, c.cfg.Backoff); waitErr != nil {
			return nil, fmt.Errorf("%w: %s", common.ErrTaskCancelled, waitErr)
		}
	}
}

// once performs a single HTTP attempt and classifies the outcome.
func (c *Client) once(ctx context.Context, body []byte, timeout time.Duration) (json.RawMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.BaseURL+"/rpc", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(common.AuthPhraseHeaderName, c.cfg.AuthPhrase)
	req.Header.Set(common.AuthIDHeaderName, c.cfg.AuthID)
	req.Header.Set(common.APIKeyHeaderName, c.cfg.APIKey)

	if c.Slow != nil {
		spinner := time.AfterFunc(c.cfg.SpinnerDelay, func() { c.Slow(c.cfg.SpinnerDelay) })
		defer spinner.Stop()
		slow := time.AfterFunc(c.cfg.SlowDelay, func() { c.Slow(c.cfg.SlowDelay) })
		defer slow.Stop()
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// The caller cancelled; a per-attempt timeout is a transient
			// network failure instead.
			return nil, fmt.Errorf("%w: %s", common.ErrTaskCancelled, ctx.Err())
		}
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s", common.ErrTaskCancelled, ctx.Err())
		}
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, common.ErrAccessRevoked
	case resp.StatusCode == http.StatusForbidden:
		return nil, common.ErrIncorrectCredentials
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		if len(raw) == 0 || !json.Valid(raw) {
			return nil, &ServerError{Status: resp.StatusCode, Message: firstLine(raw)}
		}
		return json.RawMessage(raw), nil
	default:
		return nil, &ServerError{Status: resp.StatusCode, Message: firstLine(raw)}
	}
}

// Decode unmarshals raw into T. A failure is reported as a *ServerError:
// an undecodable body is a first-class server failure, not a crash, and is
// never retried.
func Decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, &ServerError{Message: firstLine(raw)}
	}
	return v, nil
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
