package service

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/shuleplus/backend/internal/domain"
	"github.com/shuleplus/backend/pkg/payment"
)

// PollState is a confirmation poll session state.
type PollState string

const (
	PollIdle       PollState = "idle"
	PollInitiating PollState = "initiating"
	PollAwaiting   PollState = "awaiting_confirmation"
	PollConfirmed  PollState = "confirmed"
	PollTimedOut   PollState = "timed_out"
	PollFailed     PollState = "failed"
	PollCancelled  PollState = "cancelled"
)

// Terminal reports whether no automatic transition leaves this state.
func (s PollState) Terminal() bool {
	switch s {
	case PollConfirmed, PollTimedOut, PollFailed, PollCancelled:
		return true
	}
	return false
}

// PollEvent is the (state, message) tuple emitted to subscribers for UI
// binding. It is the poller's only coupling to presentation.
type PollEvent struct {
	OrderID string    `json:"orderId"`
	State   PollState `json:"state"`
	Message string    `json:"message"`
	Attempt int       `json:"attempt"`
}

// PollSnapshot is a point-in-time view of a session.
type PollSnapshot struct {
	OrderID     string    `json:"orderId"`
	State       PollState `json:"state"`
	Message     string    `json:"message"`
	Attempt     int       `json:"attempt"`
	MaxAttempts int       `json:"maxAttempts"`
	InFlight    bool      `json:"inFlight"`
}

// PollConfig bounds a confirmation poll session. Retention is how long a
// Confirmed or Cancelled session stays queryable before it is removed;
// TimedOut and Failed sessions are kept so Retry can revive them.
type PollConfig struct {
	MaxAttempts  int
	Interval     time.Duration
	InitialDelay time.Duration
	Retention    time.Duration
}

// DefaultPollConfig is the production setting: 150 checks, 2s apart, a hard
// ceiling of five minutes per session.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		MaxAttempts:  150,
		Interval:     2 * time.Second,
		InitialDelay: time.Second,
		Retention:    30 * time.Second,
	}
}

// ConfirmationSink receives confirmed payments. Implemented by
// SubscriptionService.
type ConfirmationSink interface {
	ApplyConfirmation(ctx context.Context, orderID, userID, planID string, segment domain.Segment, res *payment.StatusResponse) *domain.SubscriptionRecord
}

// successPredicate names one of the gateway's success shapes. The gateway's
// responses are inconsistent across transaction modes, so completion is
// detected by an ordered, first-match-wins list. All known shapes are
// preserved here; do not add new ones without product confirmation.
type successPredicate struct {
	name  string
	match func(r *payment.StatusResponse) bool
}

var successPredicates = []successPredicate{
	{"paid-active", func(r *payment.StatusResponse) bool {
		return r.PaymentStatus == domain.PaymentPaid && r.Status == domain.SubscriptionActive
	}},
	{"completed-success", func(r *payment.StatusResponse) bool {
		return r.Status == "completed" && boolVal(r.Success)
	}},
	{"demo-success", func(r *payment.StatusResponse) bool {
		return boolVal(r.Demo) && boolVal(r.Success)
	}},
	{"webhook-completed", func(r *payment.StatusResponse) bool {
		return r.ZenoPayStatus == "COMPLETED"
	}},
	{"success-completed", func(r *payment.StatusResponse) bool {
		return boolVal(r.Success) && r.Status == "completed"
	}},
}

// matchSuccess evaluates the predicate list in order.
func matchSuccess(r *payment.StatusResponse) (string, bool) {
	if r == nil {
		return "", false
	}
	for _, p := range successPredicates {
		if p.match(r) {
			return p.name, true
		}
	}
	return "", false
}

func boolVal(b *bool) bool {
	return b != nil && *b
}

// PollSession is one confirmation attempt for one order. All state mutation
// happens under mu; the session's run loop is the only goroutine dispatching
// gateway calls, and at most one call is outstanding at any instant.
type PollSession struct {
	orderID string
	userID  string
	planID  string
	segment domain.Segment

	mu          sync.Mutex
	state       PollState
	message     string
	attempt     int
	inFlight    bool
	generation  int
	lastChecked time.Time

	resumeCh chan struct{}
	retryCh  chan struct{}
	cancelCh chan struct{}
}

func (s *PollSession) setState(state PollState, message string) {
	s.mu.Lock()
	s.state = state
	s.message = message
	s.mu.Unlock()
}

// Poller owns confirmation poll sessions: it creates them on payment
// initiation, drives their checks against the gateway, and on success writes
// the result through the confirmation sink. Sessions run on the context given
// at construction, not on the initiating request's context: HTTP request
// contexts are cancelled as soon as the handler returns, long before the
// gateway confirms.
type Poller struct {
	ctx     context.Context
	gateway payment.Gateway
	sink    ConfirmationSink
	cfg     PollConfig

	mu       sync.Mutex
	sessions map[string]*PollSession
	subs     []func(PollEvent)
}

// NewPoller creates a Poller whose sessions live until ctx is cancelled.
func NewPoller(ctx context.Context, gateway payment.Gateway, sink ConfirmationSink, cfg PollConfig) *Poller {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultPollConfig()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * time.Second
	}
	return &Poller{
		ctx:      ctx,
		gateway:  gateway,
		sink:     sink,
		cfg:      cfg,
		sessions: make(map[string]*PollSession),
	}
}

// Subscribe registers a listener for every session's state events.
func (p *Poller) Subscribe(fn func(PollEvent)) {
	p.mu.Lock()
	p.subs = append(p.subs, fn)
	p.mu.Unlock()
}

func (p *Poller) emit(s *PollSession, state PollState, message string) {
	s.mu.Lock()
	attempt := s.attempt
	s.mu.Unlock()

	ev := PollEvent{OrderID: s.orderID, State: state, Message: message, Attempt: attempt}
	p.mu.Lock()
	subs := make([]func(PollEvent), len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// Start creates and starts a session for an order. Starting an order that
// already has a session returns the existing one.
func (p *Poller) Start(orderID, userID, planID string, segment domain.Segment) *PollSession {
	p.mu.Lock()
	if s, ok := p.sessions[orderID]; ok {
		p.mu.Unlock()
		return s
	}
	s := &PollSession{
		orderID:  orderID,
		userID:   userID,
		planID:   planID,
		segment:  segment,
		state:    PollIdle,
		resumeCh: make(chan struct{}, 1),
		retryCh:  make(chan struct{}, 1),
		cancelCh: make(chan struct{}),
	}
	p.sessions[orderID] = s
	p.mu.Unlock()

	p.emit(s, PollIdle, "")
	s.setState(PollInitiating, "starting payment confirmation")
	p.emit(s, PollInitiating, "starting payment confirmation")
	s.setState(PollAwaiting, "waiting for payment confirmation")
	p.emit(s, PollAwaiting, "waiting for payment confirmation")

	go p.run(s)
	return s
}

// Snapshot returns a point-in-time view of a session.
func (p *Poller) Snapshot(orderID string) (PollSnapshot, bool) {
	p.mu.Lock()
	s, ok := p.sessions[orderID]
	p.mu.Unlock()
	if !ok {
		return PollSnapshot{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return PollSnapshot{
		OrderID:     s.orderID,
		State:       s.state,
		Message:     s.message,
		Attempt:     s.attempt,
		MaxAttempts: p.cfg.MaxAttempts,
		InFlight:    s.inFlight,
	}, true
}

// Resume triggers an immediate out-of-band check, used when the client
// becomes visible again. Skipped when a check is already in flight or the
// session is terminal; never resets the attempt count.
func (p *Poller) Resume(orderID string) error {
	p.mu.Lock()
	s, ok := p.sessions[orderID]
	p.mu.Unlock()
	if !ok {
		return domain.ErrNotFound("no confirmation in progress for this order")
	}

	s.mu.Lock()
	skip := s.inFlight || s.state.Terminal()
	s.mu.Unlock()
	if skip {
		return nil
	}

	select {
	case s.resumeCh <- struct{}{}:
	default:
	}
	return nil
}

// Cancel stops a session. Cooperative: an in-flight gateway call cannot be
// aborted, but its response is discarded via the generation token and never
// applied to the store.
func (p *Poller) Cancel(orderID string) error {
	p.mu.Lock()
	s, ok := p.sessions[orderID]
	p.mu.Unlock()
	if !ok {
		return domain.ErrNotFound("no confirmation in progress for this order")
	}

	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return nil
	}
	s.generation++
	s.state = PollCancelled
	s.message = "payment confirmation cancelled"
	s.mu.Unlock()

	close(s.cancelCh)
	p.emit(s, PollCancelled, "payment confirmation cancelled")
	return nil
}

// Retry re-enters AwaitingConfirmation with reset counters. Valid only from
// TimedOut or Failed.
func (p *Poller) Retry(orderID string) error {
	p.mu.Lock()
	s, ok := p.sessions[orderID]
	p.mu.Unlock()
	if !ok {
		return domain.ErrNotFound("no confirmation in progress for this order")
	}

	s.mu.Lock()
	if s.state != PollTimedOut && s.state != PollFailed {
		state := s.state
		s.mu.Unlock()
		return domain.ErrBadRequest("retry is only available after a timeout or failure, current state: " + string(state))
	}
	s.generation++
	s.attempt = 0
	s.state = PollAwaiting
	s.message = "waiting for payment confirmation"
	s.mu.Unlock()

	p.emit(s, PollAwaiting, "waiting for payment confirmation")
	select {
	case s.retryCh <- struct{}{}:
	default:
	}
	return nil
}

// run is the session's event loop. Gateway calls execute inside the loop,
// so there is exactly one outstanding check per session.
func (p *Poller) run(s *PollSession) {
	timer := time.NewTimer(p.cfg.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-s.cancelCh:
			p.scheduleRemove(s.orderID)
			return
		case <-timer.C:
		case <-s.resumeCh:
		case <-s.retryCh:
		}

		s.mu.Lock()
		state := s.state
		s.mu.Unlock()
		if state == PollConfirmed || state == PollCancelled {
			p.scheduleRemove(s.orderID)
			return
		}
		if state.Terminal() {
			// TimedOut or Failed: park until an explicit retry or cancel.
			continue
		}

		if p.check(s) {
			s.mu.Lock()
			state = s.state
			s.mu.Unlock()
			if state == PollConfirmed || state == PollCancelled {
				p.scheduleRemove(s.orderID)
				return
			}
			continue
		}
		timer.Reset(p.cfg.Interval)
	}
}

// scheduleRemove drops a finished session after the retention window, so the
// client's final status poll still gets an answer while the sessions map
// stays bounded in a long-running server.
func (p *Poller) scheduleRemove(orderID string) {
	time.AfterFunc(p.cfg.Retention, func() {
		p.mu.Lock()
		delete(p.sessions, orderID)
		p.mu.Unlock()
	})
}

// check performs one guarded status query. Returns true when the session
// reached a terminal state.
func (p *Poller) check(s *PollSession) bool {
	s.mu.Lock()
	if s.state != PollAwaiting {
		s.mu.Unlock()
		return true
	}
	s.inFlight = true
	s.attempt++
	attempt := s.attempt
	gen := s.generation
	s.mu.Unlock()

	res, err := p.gateway.Status(p.ctx, s.orderID)

	s.mu.Lock()
	s.inFlight = false
	s.lastChecked = time.Now()
	stale := gen != s.generation || s.state != PollAwaiting
	s.mu.Unlock()

	// Drop resume pokes that arrived while this check was in flight; the
	// poke asked for a check and one just happened.
	select {
	case <-s.resumeCh:
	default:
	}

	if stale {
		// Cancelled or retried mid-flight: discard the response entirely.
		return true
	}

	if err != nil {
		if apiErr, ok := payment.AsAPIError(err); ok {
			switch apiErr.StatusCode {
			case http.StatusUnauthorized:
				p.fail(s, gen, "session expired, please sign in and try again")
				return true
			case http.StatusNotFound:
				p.fail(s, gen, "payment service unavailable, please try again later")
				return true
			}
		}
		log.Printf("[Poller] Check %d for order %s failed: %v", attempt, s.orderID, err)
	} else if name, ok := matchSuccess(res); ok {
		if p.confirm(s, gen) {
			log.Printf("[Poller] Order %s confirmed on attempt %d (%s)", s.orderID, attempt, name)
			p.sink.ApplyConfirmation(p.ctx, s.orderID, s.userID, s.planID, s.segment, res)
			p.emit(s, PollConfirmed, "payment confirmed")
		}
		return true
	}

	if attempt >= p.cfg.MaxAttempts {
		s.mu.Lock()
		if gen == s.generation && s.state == PollAwaiting {
			s.state = PollTimedOut
			s.message = "payment is still processing, try again"
			s.mu.Unlock()
			p.emit(s, PollTimedOut, "payment is still processing, try again")
		} else {
			s.mu.Unlock()
		}
		return true
	}
	return false
}

// confirm flips the session to Confirmed iff it is still current. The state
// change happens before the sink write, so a cancel arriving afterwards is a
// no-op rather than a race.
func (p *Poller) confirm(s *PollSession, gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.state != PollAwaiting {
		return false
	}
	s.state = PollConfirmed
	s.message = "payment confirmed"
	return true
}

func (p *Poller) fail(s *PollSession, gen int, message string) {
	s.mu.Lock()
	if gen != s.generation || s.state != PollAwaiting {
		s.mu.Unlock()
		return
	}
	s.state = PollFailed
	s.message = message
	s.mu.Unlock()
	p.emit(s, PollFailed, message)
}

// Deliver feeds an externally received status payload (the gateway webhook)
// into a running session, subject to the same staleness and terminal-state
// rules as a polled response. Returns false when no session is tracking the
// order.
func (p *Poller) Deliver(ctx context.Context, orderID string, res *payment.StatusResponse) bool {
	p.mu.Lock()
	s, ok := p.sessions[orderID]
	p.mu.Unlock()
	if !ok {
		return false
	}

	if _, match := matchSuccess(res); !match {
		return true
	}

	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()
	if p.confirm(s, gen) {
		log.Printf("[Poller] Order %s confirmed via webhook", orderID)
		p.sink.ApplyConfirmation(ctx, s.orderID, s.userID, s.planID, s.segment, res)
		p.emit(s, PollConfirmed, "payment confirmed")
	}
	return true
}
