package reconnect

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wydcore/wyd-server/internal/corerr"
)

// State is a reconnection cycle's position in the reconnect state
// machine.
type State int

const (
	StateInactive State = iota
	StateWaiting
	StateAttempting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateWaiting:
		return "waiting"
	case StateAttempting:
		return "attempting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// AttemptFunc performs one reconnect attempt. The controller calls it
// from its own worker goroutine and treats a non-nil error as failure.
type AttemptFunc func(ctx context.Context, attempt int) error

// AttemptCallback fires just before an attempt is made, carrying the
// delay that was waited before it.
type AttemptCallback func(attempt int, delay time.Duration)

// ResultCallback fires exactly once per cycle, on Succeeded or Failed.
type ResultCallback func(success bool, attempts int)

// QualityCallback fires on every monitoring sample.
type QualityCallback func(quality float64)

// Config is the reconnection controller's enumerated configuration
// block.
type Config struct {
	Enabled              bool
	MaxAttempts          int
	InitialDelay         time.Duration
	BackoffMultiplier    float64
	MaxDelay             time.Duration
	UseRandomization     bool
	RandomizationFactor  float64
	KeepAlive            bool
	KeepAliveInterval    time.Duration
	PingTimeout          time.Duration
	IntelligentReconnect bool
}

// DefaultConfig returns the controller's documented defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		MaxAttempts:          10,
		InitialDelay:         500 * time.Millisecond,
		BackoffMultiplier:    1.5,
		MaxDelay:             30 * time.Second,
		UseRandomization:     true,
		RandomizationFactor:  0.2,
		KeepAlive:            true,
		KeepAliveInterval:    30 * time.Second,
		PingTimeout:          5 * time.Second,
		IntelligentReconnect: true,
	}
}

// delay implements the controller's backoff formula:
// delay(n) = min(initialDelay * backoffMultiplier^n, maxDelay), optionally
// scaled by a uniform factor in [1-jitter, 1+jitter].
func (c Config) delay(attempt int, rnd *rand.Rand) time.Duration {
	raw := float64(c.InitialDelay) * pow(c.BackoffMultiplier, attempt)
	if max := float64(c.MaxDelay); c.MaxDelay > 0 && raw > max {
		raw = max
	}
	if c.UseRandomization && c.RandomizationFactor > 0 {
		lo := 1 - c.RandomizationFactor
		span := 2 * c.RandomizationFactor
		factor := lo + rnd.Float64()*span
		raw *= factor
	}
	return time.Duration(raw)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

type callbackRegistry struct {
	mu        sync.Mutex
	nextID    uint64
	attempts  map[string]AttemptCallback
	results   map[string]ResultCallback
	qualities map[string]QualityCallback
}

func newCallbackRegistry() *callbackRegistry {
	return &callbackRegistry{
		attempts:  make(map[string]AttemptCallback),
		results:   make(map[string]ResultCallback),
		qualities: make(map[string]QualityCallback),
	}
}

func (r *callbackRegistry) id(prefix string) string {
	r.nextID++
	return fmt.Sprintf("%s-%d", prefix, r.nextID)
}

// Controller drives a single client's reconnection cycle: it owns the
// state machine, the backoff schedule, and the monitoring loop that
// samples connection quality.
type Controller struct {
	cfg Config
	rnd *rand.Rand

	mu              sync.Mutex
	state           State
	attempt         int
	nextAttemptTime time.Time
	attemptFn       AttemptFunc
	session         *Session
	quality         *QualityMetrics

	callbacks *callbackRegistry

	monitorStopCh   chan struct{}
	monitorRunning  atomic.Bool
	reconnectCancel context.CancelFunc
	reconnectWG     sync.WaitGroup
}

// New creates a Controller in State Inactive.
func New(cfg Config) *Controller {
	return &Controller{
		cfg:       cfg,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		state:     StateInactive,
		quality:   NewQualityMetrics(),
		callbacks: newCallbackRegistry(),
	}
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RegisterAttemptCallback, RegisterResultCallback, RegisterQualityCallback
// each return a stable id usable with Unregister.
func (c *Controller) RegisterAttemptCallback(cb AttemptCallback) string {
	c.callbacks.mu.Lock()
	defer c.callbacks.mu.Unlock()
	id := c.callbacks.id("attempt")
	c.callbacks.attempts[id] = cb
	return id
}

func (c *Controller) RegisterResultCallback(cb ResultCallback) string {
	c.callbacks.mu.Lock()
	defer c.callbacks.mu.Unlock()
	id := c.callbacks.id("result")
	c.callbacks.results[id] = cb
	return id
}

func (c *Controller) RegisterQualityCallback(cb QualityCallback) string {
	c.callbacks.mu.Lock()
	defer c.callbacks.mu.Unlock()
	id := c.callbacks.id("quality")
	c.callbacks.qualities[id] = cb
	return id
}

// Unregister removes any callback registered under id, whichever kind it
// was. Returns true if something was removed.
func (c *Controller) Unregister(id string) bool {
	c.callbacks.mu.Lock()
	defer c.callbacks.mu.Unlock()

	if _, ok := c.callbacks.attempts[id]; ok {
		delete(c.callbacks.attempts, id)
		return true
	}
	if _, ok := c.callbacks.results[id]; ok {
		delete(c.callbacks.results, id)
		return true
	}
	if _, ok := c.callbacks.qualities[id]; ok {
		delete(c.callbacks.qualities, id)
		return true
	}
	return false
}

func (c *Controller) invokeAttempt(attempt int, delay time.Duration) {
	c.callbacks.mu.Lock()
	cbs := make([]AttemptCallback, 0, len(c.callbacks.attempts))
	for _, cb := range c.callbacks.attempts {
		cbs = append(cbs, cb)
	}
	c.callbacks.mu.Unlock()

	for _, cb := range cbs {
		c.safeCall(func() { cb(attempt, delay) })
	}
}

func (c *Controller) invokeResult(success bool, attempts int) {
	c.callbacks.mu.Lock()
	cbs := make([]ResultCallback, 0, len(c.callbacks.results))
	for _, cb := range c.callbacks.results {
		cbs = append(cbs, cb)
	}
	c.callbacks.mu.Unlock()

	for _, cb := range cbs {
		c.safeCall(func() { cb(success, attempts) })
	}
}

func (c *Controller) invokeQuality(q float64) {
	c.callbacks.mu.Lock()
	cbs := make([]QualityCallback, 0, len(c.callbacks.qualities))
	for _, cb := range c.callbacks.qualities {
		cbs = append(cbs, cb)
	}
	c.callbacks.mu.Unlock()

	for _, cb := range cbs {
		c.safeCall(func() { cb(q) })
	}
}

func (c *Controller) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("reconnect: callback panicked", "panic", r)
		}
	}()
	fn()
}

// StartReconnection begins (or restarts) a reconnect cycle: Inactive ->
// Waiting, then the worker drives Waiting -> Attempting -> {Succeeded,
// Waiting, Failed} until the cycle resolves or is canceled.
func (c *Controller) StartReconnection(attemptFn AttemptFunc) error {
	c.mu.Lock()
	if c.state == StateAttempting || c.state == StateWaiting {
		c.mu.Unlock()
		return corerr.New(corerr.CodeState, "reconnect: cycle already active")
	}
	c.attempt = 0
	c.attemptFn = attemptFn
	c.state = StateWaiting
	c.nextAttemptTime = time.Now().Add(c.cfg.delay(0, c.rnd))
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	c.reconnectCancel = cancel
	c.reconnectWG.Add(1)
	go c.runReconnectLoop(ctx)
	return nil
}

// CancelReconnection transitions any active cycle back to Inactive.
func (c *Controller) CancelReconnection() {
	c.mu.Lock()
	c.state = StateInactive
	c.mu.Unlock()

	if c.reconnectCancel != nil {
		c.reconnectCancel()
		c.reconnectWG.Wait()
	}
}

func (c *Controller) runReconnectLoop(ctx context.Context) {
	defer c.reconnectWG.Done()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if c.tryAttempt(ctx, now) {
				return
			}
		}
	}
}

// tryAttempt checks whether a Waiting cycle is due, runs one attempt if
// so, and applies the resulting transition. It returns true once the
// cycle reaches a terminal state (Succeeded, Failed, or was canceled to
// Inactive).
func (c *Controller) tryAttempt(ctx context.Context, now time.Time) bool {
	c.mu.Lock()
	if c.state == StateInactive {
		c.mu.Unlock()
		return true
	}
	if c.state != StateWaiting || now.Before(c.nextAttemptTime) {
		c.mu.Unlock()
		return false
	}

	c.state = StateAttempting
	c.attempt++
	attempt := c.attempt
	delay := c.cfg.delay(attempt-1, c.rnd)
	fn := c.attemptFn
	c.mu.Unlock()

	c.invokeAttempt(attempt, delay)

	err := fn(ctx, attempt)

	c.mu.Lock()
	if c.state == StateInactive {
		c.mu.Unlock()
		return true
	}

	if err == nil {
		c.state = StateSucceeded
		c.mu.Unlock()
		c.quality.RecordSuccess()
		c.invokeResult(true, attempt)
		return true
	}

	c.quality.RecordFailure()
	if attempt >= c.cfg.MaxAttempts {
		c.state = StateFailed
		c.mu.Unlock()
		c.invokeResult(false, attempt)
		return true
	}

	c.state = StateWaiting
	c.nextAttemptTime = time.Now().Add(c.cfg.delay(attempt, c.rnd))
	c.mu.Unlock()
	return false
}

// ReportConnectionFailure records a monitoring-level failure and, when
// intelligent reconnect is enabled and the controller is Inactive,
// restarts a cycle with the AttemptFunc of the most recent
// StartReconnection. Before any StartReconnection call there is no
// AttemptFunc, and no cycle is started.
func (c *Controller) ReportConnectionFailure(errorCode corerr.Code, message string) {
	c.quality.RecordFailure()
	slog.Warn("reconnect: connection failure reported", "code", errorCode, "message", message)

	if !c.cfg.IntelligentReconnect {
		return
	}
	c.mu.Lock()
	inactive := c.state == StateInactive
	fn := c.attemptFn
	c.mu.Unlock()
	if inactive && fn != nil {
		_ = c.StartReconnection(fn)
	}
}

// ReportReconnectSuccess resets the consecutive-failure counter without
// otherwise touching the state machine.
func (c *Controller) ReportReconnectSuccess() {
	c.quality.RecordSuccess()
}

// StartMonitoring begins periodic quality sampling, invoking quality
// callbacks on the given interval until StopMonitoring is called.
func (c *Controller) StartMonitoring(interval time.Duration) {
	if !c.monitorRunning.CompareAndSwap(false, true) {
		return
	}
	c.monitorStopCh = make(chan struct{})
	go c.monitorLoop(interval, c.monitorStopCh)
}

func (c *Controller) monitorLoop(interval time.Duration, stopCh chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			c.invokeQuality(c.quality.EstimateConnectionQuality())
		}
	}
}

// StopMonitoring halts the monitoring loop started by StartMonitoring.
func (c *Controller) StopMonitoring() {
	if !c.monitorRunning.CompareAndSwap(true, false) {
		return
	}
	close(c.monitorStopCh)
}

// Quality exposes the controller's rolling quality tracker, e.g. for
// feeding RecordLatency from an I/O collaborator.
func (c *Controller) Quality() *QualityMetrics {
	return c.quality
}

// Session returns the controller's currently bound session, if any.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// BindSession attaches s as the controller's active session.
func (c *Controller) BindSession(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}
