package sync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dpetrovs/finsync/internal/client/transport"
	"github.com/dpetrovs/finsync/internal/common"
	"github.com/dpetrovs/finsync/internal/logging"
)

// FetchChangesRequestType is the RPC request type of one long-poll round.
const FetchChangesRequestType = "fetch_changes"

// DefaultPollBackoff is the fixed delay between retries after a transient
// long-poll failure.
const DefaultPollBackoff = 5 * time.Second

// State is the subscriber's loop phase, exposed for the UI collaborator.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateWaiting
	StateApplying
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateWaiting:
		return "waiting"
	case StateApplying:
		return "applying"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DeviceInfo identifies this device inside the long-poll request so the
// server can skip echoing our own changes back.
type DeviceInfo struct {
	ID   string `json:"device_id"`
	Name string `json:"device_name"`
}

type pollRequest struct {
	LastReturnTime int64  `json:"last_return_time"`
	DeviceID       string `json:"device_id"`
	DeviceName     string `json:"device_name"`
}

// Subscriber runs the persistent background loop that fetches server deltas
// since the stored watermark and feeds them to the Reconciler.
//
// Exactly one loop runs per subscriber: Start cancels a previous run and
// waits for it to exit before launching a new one.
type Subscriber struct {
	rpc     transport.Caller
	rec     *Reconciler
	marks   WatermarkStore
	device  DeviceInfo
	backoff time.Duration
	log     logging.Logger

	// OnResubscribeFailed, if set, is called once when the loop stops
	// because of an authentication failure. The session collaborator is
	// expected to force a re-login.
	OnResubscribeFailed func(err error)

	state atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSubscriber(rpc transport.Caller, rec *Reconciler, marks WatermarkStore, device DeviceInfo, log logging.Logger) *Subscriber {
	return &Subscriber{
		rpc:     rpc,
		rec:     rec,
		marks:   marks,
		device:  device,
		backoff: DefaultPollBackoff,
		log:     log,
	}
}

// State returns the current loop phase.
func (s *Subscriber) State() State {
	return State(s.state.Load())
}

func (s *Subscriber) setState(st State) {
	s.state.Store(int32(st))
}

// Start launches the long-poll loop. Any already-running loop is cancelled
// and awaited first, so two instances never run concurrently. The loop stops
// when ctx is cancelled, when Stop is called, or on authentication failure.
func (s *Subscriber) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go s.run(runCtx, done)
}

// Stop cancels the in-flight wait immediately and blocks until the loop has
// exited. Safe to call when no loop is running.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Subscriber) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

func (s *Subscriber) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.setState(StateIdle)

	for {
		if ctx.Err() != nil {
			return
		}
		s.setState(StateConnecting)

		watermark, err := s.marks.Watermark(ctx)
		if err != nil {
			s.log.Error(ctx, "reading watermark failed, starting from zero", "err", err)
			watermark = 0
		}

		payload := pollRequest{
			LastReturnTime: watermark,
			DeviceID:       s.device.ID,
			DeviceName:     s.device.Name,
		}

		s.setState(StateWaiting)
		raw, err := s.rpc.CallLongPoll(ctx, FetchChangesRequestType, payload)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, common.ErrTaskCancelled) {
				return
			}
			if errors.Is(err, common.ErrAccessRevoked) || errors.Is(err, common.ErrIncorrectCredentials) {
				s.log.Error(ctx, "resubscribe failed, stopping", "err", err)
				if s.OnResubscribeFailed != nil {
					s.OnResubscribeFailed(err)
				}
				return
			}
			s.setState(StateFailed)
			s.log.Warn(ctx, "long poll failed, backing off", "backoff", s.backoff, "err", err)
			if waitErr := waitWithContext(ctx, s.backoff); waitErr != nil {
				return
			}
			continue
		}

		batch, err := ParseBatch(raw)
		if err != nil {
			// A decode failure is terminal for this round trip; back off so
			// a persistently broken feed does not spin the loop.
			s.setState(StateFailed)
			s.log.Warn(ctx, "undecodable poll response dropped", "err", err)
			if waitErr := waitWithContext(ctx, s.backoff); waitErr != nil {
				return
			}
			continue
		}

		s.setState(StateApplying)
		if err := s.rec.ApplyBatch(ctx, batch); err != nil {
			s.log.Error(ctx, "applying poll batch failed", "err", err)
		} else {
			s.log.Debug(ctx, "poll batch applied", "return_time", batch.ReturnTime, "collections", len(batch.Sets))
		}
	}
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
