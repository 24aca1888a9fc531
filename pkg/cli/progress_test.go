package cli

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeClock advances by step on every reading.
func fakeClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}

func TestSimpleProgress(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf).(*SimpleProgress)
	progress.Label = "Datasets"
	progress.Unit = "countries"
	progress.now = fakeClock(10 * time.Second)

	progress.Start(4)
	progress.Update(1)
	progress.Finish()

	lines := strings.Split(buf.String(), "\r")
	// Start, Update and Finish each redraw the line.
	if len(lines) != 4 {
		t.Fatalf("got %d redraws, want 3: %q", len(lines)-1, buf.String())
	}
	if got := lines[1]; !strings.HasPrefix(got, "Datasets: [░") || !strings.HasSuffix(got, "0/4 countries") {
		t.Errorf("start line = %q", got)
	}
	// One item in 10s leaves three, about 30s.
	if got := lines[2]; !strings.HasSuffix(got, "1/4 countries (eta 30s)") {
		t.Errorf("update line = %q", got)
	}
	if got := lines[3]; !strings.HasSuffix(got, "4/4 countries\n") || strings.Contains(got, "░") {
		t.Errorf("finish line = %q", got)
	}
}

func TestSimpleProgressClampsOverrun(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)
	progress.Start(2)
	progress.Update(5)

	if !strings.HasSuffix(buf.String(), "2/2 items") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestSimpleProgressZeroTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)

	progress.Start(0)
	progress.Update(0)
	progress.Finish()

	if buf.String() != "\n" {
		t.Errorf("output = %q, want a bare newline", buf.String())
	}
}

func TestSimpleProgressError(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)

	progress.Start(100)
	progress.Error(errors.New("dataset checksum mismatch"))

	if !strings.Contains(buf.String(), "✗ Error: dataset checksum mismatch") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestSimpleProgressConcurrent(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)
	progress.Start(1000)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Go(func() {
			for j := range 100 {
				progress.Update(int64(i*100 + j))
			}
		})
	}
	wg.Wait()
	progress.Finish()

	if !strings.HasSuffix(buf.String(), "1000/1000 items\n") {
		t.Errorf("final line missing: %q", buf.String()[max(0, buf.Len()-80):])
	}
}

func TestNewProgressReporterNilWriter(t *testing.T) {
	if NewProgressReporter(nil) == nil {
		t.Error("NewProgressReporter(nil) should not return nil")
	}
}
