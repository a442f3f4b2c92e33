package engine

import (
	"errors"
	"testing"
	"time"
)

func TestClockPausedYieldsNothing(t *testing.T) {
	c := NewClock(10, 5, 0)
	c.Pause()
	for _, d := range []time.Duration{time.Millisecond, time.Second, time.Hour} {
		if n := c.Advance(d); n != 0 {
			t.Errorf("paused Advance(%v) = %d", d, n)
		}
	}
	if c.Debt() != 0 {
		t.Errorf("paused clock accrued debt %d", c.Debt())
	}

	if err := c.SetScale(0); err != nil {
		t.Fatal(err)
	}
	c.Resume()
	if n := c.Advance(time.Hour); n != 0 {
		t.Errorf("scale 0 Advance = %d", n)
	}
	if !c.Paused() {
		t.Error("scale 0 should report paused")
	}
}

func TestClockScaleTenOverOneSecond(t *testing.T) {
	c := NewClock(10, 1, 0)
	if err := c.SetScale(10); err != nil {
		t.Fatal(err)
	}
	if n := c.Advance(time.Second); n != 100 {
		t.Errorf("Advance(1s) at 10x = %d, want 100", n)
	}
}

func TestClockCarriesFraction(t *testing.T) {
	tests := []struct {
		name   string
		scale  int
		frame  time.Duration
		frames int
		want   int
	}{
		{"10ms frames at 7x", 7, 10 * time.Millisecond, 1000, 700},
		{"odd frames at 1x", 1, 33 * time.Millisecond, 300, 99},
		{"tiny frames at 100x", 100, 3 * time.Microsecond, 100000, 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClock(10, tt.scale, 0)
			total := 0
			for i := 0; i < tt.frames; i++ {
				total += c.Advance(tt.frame)
			}
			if total != tt.want {
				t.Errorf("total ticks = %d, want %d (debt %d)", total, tt.want, c.Debt())
			}
		})
	}
}

func TestClockFrameCapDefersTicks(t *testing.T) {
	c := NewClock(10, 10, 30)
	if n := c.Advance(time.Second); n != 30 {
		t.Fatalf("first frame = %d, want cap 30", n)
	}
	total := 30
	for i := 0; i < 3; i++ {
		total += c.Advance(time.Nanosecond)
	}
	if total != 100 {
		t.Errorf("deferred ticks not paid out: total %d, want 100", total)
	}
}

func TestClockSetScaleValidates(t *testing.T) {
	tests := []struct {
		scale int
		ok    bool
	}{
		{-1, false}, {0, true}, {1, true}, {75, true}, {100, true}, {101, false},
	}
	for _, tt := range tests {
		c := NewClock(10, 1, 0)
		err := c.SetScale(tt.scale)
		if tt.ok && err != nil {
			t.Errorf("SetScale(%d) = %v", tt.scale, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidScale) {
			t.Errorf("SetScale(%d) = %v, want ErrInvalidScale", tt.scale, err)
		}
	}
}

func TestClockPresetResumes(t *testing.T) {
	c := NewClock(10, 1, 0)
	c.Pause()
	if err := c.SetScale(SpeedPresets[2]); err != nil {
		t.Fatal(err)
	}
	if c.Paused() {
		t.Error("speed preset should resume a paused clock")
	}
}

func TestClockStateRoundTrip(t *testing.T) {
	c := NewClock(10, 3, 0)
	c.Advance(123 * time.Millisecond)
	r := NewClock(10, 1, 0)
	r.Restore(c.State())
	for i := 0; i < 20; i++ {
		if a, b := c.Advance(17*time.Millisecond), r.Advance(17*time.Millisecond); a != b {
			t.Fatalf("frame %d: %d != %d", i, a, b)
		}
	}
}
