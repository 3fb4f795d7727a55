package output

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestProgressBarNonTTYEmitsOnlyCompletion(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(4, "Installing updates")
	p.SetWriter(buf)

	p.Increment()
	p.Increment()
	if buf.Len() != 0 {
		t.Errorf("non-TTY bar wrote before completion: %q", buf.String())
	}

	p.SetCurrent(4)
	output := buf.String()
	if !strings.Contains(output, "100%") {
		t.Errorf("completed bar should show 100%%, got: %q", output)
	}
	if !strings.Contains(output, "Installing updates") {
		t.Errorf("bar should carry its description, got: %q", output)
	}
	if strings.Count(output, "\n") != 1 {
		t.Errorf("non-TTY bar should emit exactly one line, got: %q", output)
	}
}

func TestProgressBarFinishAvoidsDuplicateLine(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(2, "Working")
	p.SetWriter(buf)

	p.SetCurrent(2)
	p.Finish()

	if got := strings.Count(buf.String(), "100%"); got != 1 {
		t.Errorf("Finish after completion emitted %d lines, want 1", got)
	}
}

func TestProgressBarClampsOverflow(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(3, "Working")
	p.SetWriter(buf)

	p.SetCurrent(10)
	if !strings.Contains(buf.String(), "100%") {
		t.Errorf("overflowed bar should clamp to 100%%, got: %q", buf.String())
	}
}

func TestProgressBarObserveDropsETAOnCompletion(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(2, "Working")
	p.SetWriter(buf)

	p.Observe(1, 2, 30*time.Second)
	p.Observe(2, 2, 0)

	output := buf.String()
	if strings.Contains(output, "left") {
		t.Errorf("completed bar still shows an ETA: %q", output)
	}
}

func TestProgressBarObserveAdoptsReportedTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	// Sized for 5 decisions, but pre-processing approved only 2.
	p := NewProgress(5, "Installing updates")
	p.SetWriter(buf)

	p.Observe(1, 2, 0)
	p.Observe(2, 2, 0)

	if !strings.Contains(buf.String(), "100%") {
		t.Errorf("bar did not resize to the reported total: %q", buf.String())
	}

	// A zero total keeps the last known one.
	p.Observe(2, 0, 0)
	p.Finish()
}

func TestProgressBarZeroTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(0, "Nothing to do")
	p.SetWriter(buf)

	// Must not panic or divide by zero.
	p.Increment()
	p.Finish()
}

func TestSpinnerNonTTYPrintsOnce(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSpinner("Querying repositories")
	s.SetWriter(buf)

	s.Start()
	s.Stop()

	output := buf.String()
	if output != "Querying repositories...\n" {
		t.Errorf("non-TTY spinner output = %q", output)
	}
}

func TestSpinnerStopWithMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSpinner("Querying repositories")
	s.SetWriter(buf)

	s.Start()
	s.StopWithMessage("3 updates available")

	if !strings.Contains(buf.String(), "3 updates available") {
		t.Errorf("final message missing from output: %q", buf.String())
	}
}

func TestSpinnerDoubleStopIsSafe(t *testing.T) {
	s := NewSpinner("Working")
	s.SetWriter(&bytes.Buffer{})

	s.Start()
	s.Stop()
	s.Stop()
}

func TestSpinnerTimingFormat(t *testing.T) {
	s := NewSpinner("Querying").WithTimeout(30 * time.Second)
	s.mu.Lock()
	s.startTime = time.Now()
	msg := s.formatMessage()
	s.mu.Unlock()

	if !strings.Contains(msg, "remaining") {
		t.Errorf("timed spinner message = %q, want remaining-time format", msg)
	}
}
