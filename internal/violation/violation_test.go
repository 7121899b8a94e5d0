package violation

import (
	"testing"
	"time"
)

func TestReportDispatchesConfiguredActions(t *testing.T) {
	var got []Action
	sink := New(Config{
		Actions:     map[string][]Action{"RapidExecution": {ActionThrottle, ActionLog}},
		DedupWindow: time.Second,
		LogSize:     8,
	}, func(a Action, r Report) { got = append(got, a) })

	sink.Report(Report{Type: "RapidExecution", ClientID: "c1", Method: "execute"})

	if len(got) != 2 || got[0] != ActionThrottle || got[1] != ActionLog {
		t.Fatalf("expected [Throttle Log], got %v", got)
	}
}

func TestReportFallsBackToDefaultActions(t *testing.T) {
	var got []Action
	sink := New(Config{
		DefaultActions: []Action{ActionWarn},
		DedupWindow:    time.Second,
		LogSize:        8,
	}, func(a Action, r Report) { got = append(got, a) })

	sink.Report(Report{Type: "Unknown", ClientID: "c1", Method: "m"})
	if len(got) != 1 || got[0] != ActionWarn {
		t.Fatalf("expected [Warn], got %v", got)
	}
}

func TestDedupSuppressesRepeatsWithinWindow(t *testing.T) {
	var calls int
	sink := New(Config{
		DefaultActions: []Action{ActionLog},
		DedupWindow:    100 * time.Millisecond,
		LogSize:        8,
	}, func(a Action, r Report) { calls++ })

	t0 := time.Unix(1000, 0)
	r := Report{Type: "TimingAnomaly", ClientID: "c2", Method: "execute"}
	sink.ReportAt(r, t0)
	sink.ReportAt(r, t0.Add(50*time.Millisecond))
	if calls != 1 {
		t.Fatalf("expected second report to be suppressed, got %d calls", calls)
	}

	sink.ReportAt(r, t0.Add(150*time.Millisecond))
	if calls != 2 {
		t.Fatalf("expected report after dedup window to dispatch, got %d calls", calls)
	}
}

func TestRecentEventsIsBoundedAndOrdered(t *testing.T) {
	sink := New(Config{DefaultActions: []Action{ActionLog}, LogSize: 3}, nil)

	t0 := time.Unix(2000, 0)
	for i := 0; i < 5; i++ {
		sink.ReportAt(Report{Type: "X", ClientID: "c3", Method: "m"}, t0.Add(time.Duration(i)*time.Second))
		// Distinct dedup keys aren't needed here since DedupWindow is 0.
	}

	events := sink.RecentEvents()
	if len(events) != 3 {
		t.Fatalf("expected log bounded to 3 entries, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if !events[i].At.After(events[i-1].At) {
			t.Fatalf("expected chronological order, got %v then %v", events[i-1].At, events[i].At)
		}
	}
}

func TestDistinctClientsAreNotDeduped(t *testing.T) {
	var calls int
	sink := New(Config{
		DefaultActions: []Action{ActionLog},
		DedupWindow:    time.Minute,
		LogSize:        8,
	}, func(a Action, r Report) { calls++ })

	t0 := time.Unix(3000, 0)
	sink.ReportAt(Report{Type: "X", ClientID: "c-a", Method: "m"}, t0)
	sink.ReportAt(Report{Type: "X", ClientID: "c-b", Method: "m"}, t0)
	if calls != 2 {
		t.Fatalf("expected both distinct clients to dispatch, got %d", calls)
	}
}
