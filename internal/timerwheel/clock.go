package timerwheel

import (
	"sync"
	"time"
)

// GameClock tracks two parallel clocks: real time (plain monotonic wall
// time) and game time, which runs at realTime*timeScale
// and can be paused independently of the real clock. Timers themselves
// are always scheduled against real time; GameClock exists for
// gameplay systems that want a pausable, speed-adjustable notion of
// time layered on top.
type GameClock struct {
	mu sync.Mutex

	timeScale float64

	paused     bool
	accumGame  time.Duration // game time banked before the current running segment
	lastResume time.Time     // real wall time the current running segment started
}

// NewGameClock builds a running GameClock at the given time scale.
// A non-positive scale is treated as 1.0.
func NewGameClock(timeScale float64) *GameClock {
	if timeScale <= 0 {
		timeScale = 1.0
	}
	return &GameClock{timeScale: timeScale, lastResume: time.Now()}
}

// RealNow returns the current real wall-clock time.
func (c *GameClock) RealNow() time.Time { return time.Now() }

// GameNow returns the current game-time duration since the clock was
// created, accounting for pauses and the configured scale.
func (c *GameClock) GameNow() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gameNowLocked()
}

func (c *GameClock) gameNowLocked() time.Duration {
	if c.paused {
		return c.accumGame
	}
	elapsed := time.Since(c.lastResume)
	return c.accumGame + time.Duration(float64(elapsed)*c.timeScale)
}

// Pause freezes game time. A no-op if already paused.
func (c *GameClock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.accumGame = c.gameNowLocked()
	c.paused = true
}

// Resume unfreezes game time, continuing forward from where it paused.
// A no-op if not currently paused.
func (c *GameClock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	c.lastResume = time.Now()
}

// IsPaused reports whether game time is currently frozen.
func (c *GameClock) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// SetTimeScale changes how fast game time accrues relative to real
// time, banking elapsed game time at the old scale first so the change
// takes effect only going forward.
func (c *GameClock) SetTimeScale(scale float64) {
	if scale <= 0 {
		scale = 1.0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accumGame = c.gameNowLocked()
	c.lastResume = time.Now()
	c.timeScale = scale
}

// TimeScale returns the current scale factor.
func (c *GameClock) TimeScale() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeScale
}
