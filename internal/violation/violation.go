// Package violation implements the core's violation sink: it receives
// structured anti-cheat reports from other components, dispatches
// configured response actions, deduplicates repeats, and keeps a
// bounded log for monitoring.
package violation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/wydcore/wyd-server/internal/skillengine"
)

// Action is a configured response to a violation report.
type Action string

const (
	ActionLog          Action = "log"
	ActionWarn         Action = "warn"
	ActionThrottle     Action = "throttle"
	ActionDisconnect   Action = "disconnect"
	ActionBanTemporary Action = "ban_temporary"
	ActionBanPermanent Action = "ban_permanent"
	ActionSilentFail   Action = "silent_fail"
	ActionResetState   Action = "reset_state"
	ActionChallenge    Action = "challenge"
	ActionIsolate      Action = "isolate"
	ActionCustom       Action = "custom"
)

// Report is a structured violation report from any component.
type Report struct {
	Type     string
	Severity string
	Method   string
	ClientID string
	Context  map[string]any
}

// SkillEngineSink adapts a *Sink to skillengine.ViolationSink. The two
// packages declare structurally identical report types rather than
// sharing one, so skillengine has no import-time dependency on this
// package; this is the one place the fields get copied across.
type SkillEngineSink struct {
	Sink *Sink
}

func (a SkillEngineSink) Report(r skillengine.ViolationReport) {
	a.Sink.Report(Report{
		Type:     r.Type,
		Severity: r.Severity,
		Method:   r.Method,
		ClientID: r.ClientID,
		Context:  r.Context,
	})
}

// ActionFunc is invoked when a report (after dedup) resolves to a
// configured action.
type ActionFunc func(action Action, r Report)

// Config maps violation types to the actions they trigger, and
// controls dedup/log sizing.
type Config struct {
	// Actions maps a report Type to the ordered actions to take. A type
	// with no entry falls back to DefaultActions.
	Actions map[string][]Action
	// DefaultActions is used for report types with no specific mapping.
	DefaultActions []Action
	// DedupWindow suppresses identical (Type, ClientID, Method) reports
	// seen again within this window.
	DedupWindow time.Duration
	// LogSize bounds the ring buffer of recent reports kept for
	// monitoring.
	LogSize int
}

// DefaultConfig returns a conservative baseline: log and warn on every
// report that dedup lets through, and suppress repeats of the same
// (Type, ClientID, Method) for one second.
func DefaultConfig() Config {
	return Config{
		DefaultActions: []Action{ActionLog, ActionWarn},
		DedupWindow:    time.Second,
		LogSize:        256,
	}
}

type dedupEntry struct {
	expiresAt time.Time
}

// Sink dispatches configured actions for incoming reports, with dedup
// (a mutex-guarded map of per-key expiry times) and a bounded
// recent-events log.
type Sink struct {
	cfg Config

	dedupMu sync.Mutex
	dedup   map[string]dedupEntry

	logMu sync.Mutex
	log   []Entry
	head  int
	count int

	onAction ActionFunc
}

// Entry is one logged report with its resolution.
type Entry struct {
	Report  Report
	Actions []Action
	At      time.Time
}

// New creates a Sink. onAction is invoked (possibly several times, once
// per configured action) whenever a report is not suppressed by dedup;
// it may be nil if the embedder only wants the log (RecentEvents).
func New(cfg Config, onAction ActionFunc) *Sink {
	if cfg.LogSize <= 0 {
		cfg.LogSize = 256
	}
	return &Sink{
		cfg:      cfg,
		dedup:    make(map[string]dedupEntry),
		log:      make([]Entry, cfg.LogSize),
		onAction: onAction,
	}
}

func dedupKey(r Report) string {
	return r.Type + "|" + r.ClientID + "|" + r.Method
}

// Report handles one violation report: it checks dedup, resolves the
// configured actions, dispatches them, and appends to the bounded log.
func (s *Sink) Report(r Report) {
	s.ReportAt(r, time.Now())
}

// ReportAt is Report with an explicit clock, for deterministic tests.
func (s *Sink) ReportAt(r Report, now time.Time) {
	if s.suppressed(r, now) {
		return
	}

	actions := s.cfg.Actions[r.Type]
	if len(actions) == 0 {
		actions = s.cfg.DefaultActions
	}
	if len(actions) == 0 {
		actions = []Action{ActionLog}
	}

	for _, a := range actions {
		s.dispatch(a, r)
	}
	s.appendLog(r, actions, now)
}

func (s *Sink) suppressed(r Report, now time.Time) bool {
	if s.cfg.DedupWindow <= 0 {
		return false
	}
	key := dedupKey(r)

	s.dedupMu.Lock()
	defer s.dedupMu.Unlock()

	if entry, ok := s.dedup[key]; ok && now.Before(entry.expiresAt) {
		return true
	}
	s.dedup[key] = dedupEntry{expiresAt: now.Add(s.cfg.DedupWindow)}
	return false
}

func (s *Sink) dispatch(a Action, r Report) {
	switch a {
	case ActionLog:
		slog.Info("violation report", "type", r.Type, "severity", r.Severity, "method", r.Method, "client", r.ClientID)
	case ActionWarn:
		slog.Warn("violation response: warn", "type", r.Type, "client", r.ClientID)
	case ActionDisconnect, ActionBanTemporary, ActionBanPermanent:
		slog.Error("violation response: severe action", "action", a, "type", r.Type, "client", r.ClientID)
	default:
		slog.Debug("violation response", "action", a, "type", r.Type, "client", r.ClientID)
	}

	if s.onAction != nil {
		s.safeDispatch(a, r)
	}
}

func (s *Sink) safeDispatch(a Action, r Report) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("violation: action callback panicked", "panic", rec)
		}
	}()
	s.onAction(a, r)
}

func (s *Sink) appendLog(r Report, actions []Action, now time.Time) {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	s.log[s.head] = Entry{Report: r, Actions: append([]Action(nil), actions...), At: now}
	s.head = (s.head + 1) % len(s.log)
	if s.count < len(s.log) {
		s.count++
	}
}

// RecentEvents returns the log's entries in chronological order, oldest
// first, for monitoring.
func (s *Sink) RecentEvents() []Entry {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	out := make([]Entry, 0, s.count)
	start := (s.head - s.count + len(s.log)) % len(s.log)
	for i := 0; i < s.count; i++ {
		out = append(out, s.log[(start+i)%len(s.log)])
	}
	return out
}
