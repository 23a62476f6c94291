// Package purchase owns the single active number purchase: it buys a number,
// polls for the incoming SMS and ends the session on code, cancel or timeout.
package purchase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"otp-agent/internal/backend"
	"otp-agent/internal/config"
	"otp-agent/internal/model"
	"otp-agent/internal/scheduler"
	"otp-agent/internal/util"
)

// Backend is the subset of the backend client the controller needs.
type Backend interface {
	Buy(ctx context.Context, serviceID, countryID string) (model.Purchase, error)
	GetSMS(ctx context.Context, requestID string) (model.SMSCheck, error)
	Cancel(ctx context.Context, requestID string) error
}

// Observer receives every session status change, in order. Calls are made
// without the controller lock held and should return quickly.
type Observer interface {
	OnSessionEvent(ev model.SessionEvent)
}

type ObserverFunc func(ev model.SessionEvent)

func (f ObserverFunc) OnSessionEvent(ev model.SessionEvent) { f(ev) }

type Config struct {
	PollInterval   time.Duration
	Timeout        time.Duration
	RequestTimeout time.Duration
}

func NewConfig(poll config.PollConfig, be config.BackendConfig) Config {
	return Config{
		PollInterval:   poll.Interval,
		Timeout:        poll.Timeout,
		RequestTimeout: be.RequestTimeout,
	}
}

const (
	noteUser       = "cancelled by user"
	noteSuperseded = "superseded by new purchase"
	noteShutdown   = "agent shutting down"
)

type session struct {
	data     model.Session
	handles  []scheduler.Handle
	inFlight bool
}

type Controller struct {
	backend   Backend
	sched     scheduler.Scheduler
	cfg       Config
	logger    *zap.Logger
	observers []Observer

	purchaseMu sync.Mutex

	mu       sync.Mutex
	current  *session
	outbox   []model.SessionEvent
	draining bool
}

func NewController(be Backend, sched scheduler.Scheduler, cfg Config, logger *zap.Logger, observers ...Observer) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	return &Controller{
		backend:   be,
		sched:     sched,
		cfg:       cfg,
		logger:    logger,
		observers: observers,
	}
}

// Purchase buys a number for the service in the country and starts polling
// for its SMS. Any live session is ended first.
func (c *Controller) Purchase(ctx context.Context, serviceID, countryID string) (model.Session, error) {
	serviceID = strings.TrimSpace(serviceID)
	countryID = strings.TrimSpace(countryID)
	if err := Validate(serviceID, countryID); err != nil {
		return model.Session{}, err
	}

	c.purchaseMu.Lock()
	defer c.purchaseMu.Unlock()

	s := &session{data: model.Session{
		ID:        uuid.NewString(),
		ServiceID: serviceID,
		CountryID: countryID,
		Status:    model.SessionPending,
		CreatedAt: c.sched.Now(),
	}}

	c.mu.Lock()
	var events []model.SessionEvent
	prev := c.current
	if prev != nil && !prev.data.Status.Terminal() {
		if ev, ok := c.finishLocked(prev, model.SessionCancelled, noteSuperseded); ok {
			events = append(events, ev)
		}
	}
	c.current = s
	c.unlockAndPublish(events...)

	bought, err := c.backend.Buy(ctx, serviceID, countryID)
	if err != nil {
		c.mu.Lock()
		if c.current == s {
			c.current = prev
		}
		c.mu.Unlock()
		c.logger.Warn("number purchase failed",
			zap.String("service_id", serviceID),
			zap.String("country_id", countryID),
			zap.String("reason", backend.Message(err)),
		)
		return model.Session{}, fmt.Errorf("buy number: %w", err)
	}

	c.mu.Lock()
	if c.current != s || !c.transitionLocked(s, model.SessionWaiting) {
		c.mu.Unlock()
		c.releaseOrphan(bought.RequestID.String())
		return model.Session{}, ErrSessionFinished
	}
	now := c.sched.Now()
	s.data.RequestID = bought.RequestID
	s.data.PhoneNumber = bought.PhoneNumber
	s.data.CreatedAt = now
	s.data.ExpiresAt = now.Add(c.cfg.Timeout)
	s.handles = []scheduler.Handle{
		c.sched.After(c.cfg.Timeout, func() { c.expire(s) }),
		c.sched.Every(c.cfg.PollInterval, func() { c.pollTick(s) }),
		c.sched.After(0, func() { c.pollTick(s) }),
	}
	snapshot := s.data.Clone()
	c.logger.Info("number purchased",
		zap.String("request_id", bought.RequestID.String()),
		zap.String("phone_number", bought.PhoneNumber),
		zap.String("service_id", serviceID),
		zap.String("country_id", countryID),
	)
	c.unlockAndPublish(c.eventLocked(s))

	return snapshot, nil
}

// Cancel ends the session for requestID. The session is cancelled locally
// even when the backend call fails; that failure is returned wrapped in
// ErrCancelNotConfirmed.
func (c *Controller) Cancel(ctx context.Context, requestID string) (model.Session, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return model.Session{}, &ValidationError{Field: "request_id", Message: "request id is required"}
	}
	return c.cancel(ctx, requestID, noteUser)
}

func (c *Controller) cancel(ctx context.Context, requestID, note string) (model.Session, error) {
	c.mu.Lock()
	s := c.current
	if s == nil || s.data.RequestID.String() != requestID {
		c.mu.Unlock()
		return model.Session{}, ErrNoActiveSession
	}
	if s.data.Status.Terminal() {
		snapshot := s.data.Clone()
		c.mu.Unlock()
		return snapshot, ErrSessionFinished
	}
	ev, ok := c.finishLocked(s, model.SessionCancelled, note)
	snapshot := s.data.Clone()
	if !ok {
		c.mu.Unlock()
		return snapshot, ErrSessionFinished
	}
	c.unlockAndPublish(ev)

	if err := c.backend.Cancel(ctx, requestID); err != nil {
		c.logger.Warn("backend did not confirm cancel",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return snapshot, fmt.Errorf("%w: %w", ErrCancelNotConfirmed, err)
	}

	c.logger.Info("number cancelled", zap.String("request_id", requestID))
	return snapshot, nil
}

// Current returns the live session, or the last one that finished.
func (c *Controller) Current() (model.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return model.Session{}, false
	}
	return c.current.data.Clone(), true
}

// Shutdown cancels a waiting session so the number is released.
func (c *Controller) Shutdown(ctx context.Context) {
	c.mu.Lock()
	s := c.current
	if s == nil || s.data.Status != model.SessionWaiting {
		c.mu.Unlock()
		return
	}
	requestID := s.data.RequestID.String()
	c.mu.Unlock()

	if _, err := c.cancel(ctx, requestID, noteShutdown); err != nil {
		c.logger.Warn("failed to release number on shutdown", zap.Error(err))
	}
}

func (c *Controller) pollTick(s *session) {
	c.mu.Lock()
	if !c.isLiveLocked(s) || s.inFlight {
		c.mu.Unlock()
		return
	}
	s.inFlight = true
	requestID := s.data.RequestID.String()
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	check, err := c.backend.GetSMS(ctx, requestID)
	cancel()

	c.mu.Lock()
	s.inFlight = false
	if !c.isLiveLocked(s) {
		c.mu.Unlock()
		c.logger.Debug("ignoring sms check for finished session", zap.String("request_id", requestID))
		return
	}

	now := c.sched.Now()
	s.data.LastCheckedAt = &now
	s.data.Checks++

	if err != nil {
		checks := s.data.Checks
		c.mu.Unlock()
		c.logger.Warn("sms check failed, will retry",
			zap.String("request_id", requestID),
			zap.Int("checks", checks),
			zap.Bool("transient", backend.IsTransient(err)),
			zap.Error(err),
		)
		return
	}
	if !check.Received {
		c.mu.Unlock()
		return
	}

	code := check.Code
	s.data.OTPCode = &code
	s.data.SMSText = check.Text
	s.data.Sender = check.Sender
	ev, ok := c.finishLocked(s, model.SessionReceived, "")
	if !ok {
		c.mu.Unlock()
		return
	}
	c.logger.Info("sms received",
		zap.String("request_id", requestID),
		zap.Int("checks", s.data.Checks),
	)
	c.unlockAndPublish(ev)
}

func (c *Controller) expire(s *session) {
	c.mu.Lock()
	if !c.isLiveLocked(s) {
		c.mu.Unlock()
		return
	}
	ev, ok := c.finishLocked(s, model.SessionTimedOut, "")
	if !ok {
		c.mu.Unlock()
		return
	}
	c.logger.Info("purchase timed out",
		zap.String("request_id", s.data.RequestID.String()),
		zap.Duration("timeout", c.cfg.Timeout),
	)
	c.unlockAndPublish(ev)
}

func (c *Controller) isLiveLocked(s *session) bool {
	return c.current == s && s.data.Status == model.SessionWaiting
}

// transitionLocked moves s to status if the state machine allows it. An
// illegal move is logged and leaves s untouched.
func (c *Controller) transitionLocked(s *session, status model.SessionStatus) bool {
	if !model.CanTransition(s.data.Status, status) {
		c.logger.Error("refusing illegal session transition",
			zap.String("session_id", s.data.ID),
			zap.String("from", string(s.data.Status)),
			zap.String("to", string(status)),
		)
		return false
	}
	s.data.Status = status
	return true
}

// finishLocked moves s to a terminal status and stops its timers.
func (c *Controller) finishLocked(s *session, status model.SessionStatus, note string) (model.SessionEvent, bool) {
	if !c.transitionLocked(s, status) {
		return model.SessionEvent{}, false
	}
	for _, h := range s.handles {
		h.Stop()
	}
	s.handles = nil

	now := c.sched.Now()
	s.data.FinishedAt = &now
	if note != "" {
		s.data.Note = note
	}
	return c.eventLocked(s), true
}

// releaseOrphan cancels a number that was bought for a session that can no
// longer use it.
func (c *Controller) releaseOrphan(requestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()
	if err := c.backend.Cancel(ctx, requestID); err != nil {
		c.logger.Warn("failed to release orphaned number", zap.String("request_id", requestID), zap.Error(err))
	}
}

func (c *Controller) eventLocked(s *session) model.SessionEvent {
	typ, _ := model.EventFor(s.data.Status)
	return model.SessionEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		Session:    s.data.Clone(),
		OccurredAt: c.sched.Now(),
	}
}

// unlockAndPublish queues events and releases c.mu. Whichever goroutine
// finds the outbox idle delivers everything queued, in commit order, without
// holding c.mu.
func (c *Controller) unlockAndPublish(events ...model.SessionEvent) {
	if len(c.observers) == 0 {
		c.mu.Unlock()
		return
	}
	c.outbox = append(c.outbox, events...)
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.outbox) > 0 {
		batch := c.outbox
		c.outbox = nil
		c.mu.Unlock()
		for _, ev := range batch {
			for _, o := range c.observers {
				o.OnSessionEvent(ev)
			}
		}
		c.mu.Lock()
	}
	c.draining = false
	c.mu.Unlock()
}

// Validate checks a purchase request without contacting the backend.
func Validate(serviceID, countryID string) error {
	if err := validateID("service_id", strings.TrimSpace(serviceID), "please select a service"); err != nil {
		return err
	}
	return validateID("country_id", strings.TrimSpace(countryID), "please select a country")
}

func validateID(field, value, missing string) error {
	if value == "" {
		return &ValidationError{Field: field, Message: missing}
	}
	if !util.IsIdentifier(value) {
		return &ValidationError{Field: field, Message: "invalid identifier"}
	}
	return nil
}
