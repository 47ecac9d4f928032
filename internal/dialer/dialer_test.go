package dialer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/antoniostano/viola/internal/contacts"
)

type fakePlacer struct {
	calls  []string
	failOn map[string]error
}

func (p *fakePlacer) PlaceCall(_ context.Context, c contacts.Contact) (string, error) {
	p.calls = append(p.calls, c.Number)
	if err, ok := p.failOn[c.Number]; ok {
		return "", err
	}
	return fmt.Sprintf("CA-%d", len(p.calls)), nil
}

// recordWaits swaps the pacing wait for a recorder so tests stay fast.
func recordWaits(d *Dialer) *[]time.Duration {
	var waits []time.Duration
	d.wait = func(_ context.Context, dur time.Duration) bool {
		waits = append(waits, dur)
		return true
	}
	return &waits
}

func testContacts(numbers ...string) []contacts.Contact {
	list := make([]contacts.Contact, 0, len(numbers))
	for _, n := range numbers {
		list = append(list, contacts.Contact{Number: n})
	}
	return list
}

func TestIntervalClampsToFloor(t *testing.T) {
	cases := []struct {
		rate float64
		want time.Duration
	}{
		{6, 10 * time.Second},
		{12, 5 * time.Second},  // 60000/12 == floor
		{120, 5 * time.Second}, // clamped
		{1, time.Minute},
	}
	for _, tc := range cases {
		d, err := New(&fakePlacer{}, Config{RatePerMinute: tc.rate})
		if err != nil {
			t.Fatalf("New(rate=%v) error = %v", tc.rate, err)
		}
		if got := d.Interval(); got != tc.want {
			t.Errorf("Interval(rate=%v) = %v, want %v", tc.rate, got, tc.want)
		}
	}
}

func TestRunPacesBetweenPlacements(t *testing.T) {
	placer := &fakePlacer{}
	d, err := New(placer, Config{RatePerMinute: 12})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	waits := recordWaits(d)

	jobs, err := d.Run(context.Background(), testContacts("+71", "+72", "+73"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("jobs = %d, want 3", len(jobs))
	}
	// 3 contacts, 2 enforced intervals, 5s each regardless of placement speed.
	if len(*waits) != 2 {
		t.Fatalf("waits = %d, want 2", len(*waits))
	}
	var total time.Duration
	for _, w := range *waits {
		if w != 5*time.Second {
			t.Fatalf("wait = %v, want 5s", w)
		}
		total += w
	}
	if total < 10*time.Second {
		t.Fatalf("enforced delay = %v, want >= 10s", total)
	}
}

func TestRunIsolatesPerContactFailures(t *testing.T) {
	placer := &fakePlacer{failOn: map[string]error{"+72": errors.New("carrier rejected")}}
	d, err := New(placer, Config{RatePerMinute: 60})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	recordWaits(d)

	jobs, err := d.Run(context.Background(), testContacts("+71", "+72", "+73"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("jobs = %d, want 3", len(jobs))
	}
	if jobs[0].Result != ResultPlaced || jobs[2].Result != ResultPlaced {
		t.Fatalf("surrounding jobs should be placed: %+v", jobs)
	}
	if jobs[1].Result != ResultFailed || jobs[1].Reason != "carrier rejected" {
		t.Fatalf("middle job should be failed with reason: %+v", jobs[1])
	}
	s := Summarize(jobs)
	if s.Placed != 2 || s.Failed != 1 || s.Total != 3 {
		t.Fatalf("summary = %+v", s)
	}
}

func TestRunSkipsUnusableWithoutPacingSlot(t *testing.T) {
	placer := &fakePlacer{}
	d, err := New(placer, Config{RatePerMinute: 12})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	waits := recordWaits(d)

	list := []contacts.Contact{
		{Number: "+71"},
		{Name: "no number"},
		{Number: "+72"},
	}
	jobs, err := d.Run(context.Background(), list)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2 (skips are not jobs)", len(jobs))
	}
	if jobs[0].AttemptIndex != 1 || jobs[1].AttemptIndex != 2 {
		t.Fatalf("attempt indexes count processed contacts only: %+v", jobs)
	}
	if len(*waits) != 1 {
		t.Fatalf("waits = %d, want 1: skipped contacts must not consume a slot", len(*waits))
	}
}

func TestRunEmptyAfterFilterIsFatal(t *testing.T) {
	d, err := New(&fakePlacer{}, Config{RatePerMinute: 12})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := d.Run(context.Background(), []contacts.Contact{{Name: "x"}}); !errors.Is(err, ErrNoContacts) {
		t.Fatalf("Run error = %v, want ErrNoContacts", err)
	}
}

func TestRunStopsPlacingAfterCancel(t *testing.T) {
	placer := &fakePlacer{}
	d, err := New(placer, Config{RatePerMinute: 60})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.wait = func(ctx context.Context, _ time.Duration) bool {
		cancel()
		return ctx.Err() == nil
	}

	jobs, err := d.Run(ctx, testContacts("+71", "+72", "+73"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// First placement completes, cancellation lands during the pacing wait,
	// and no further contact is attempted.
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
	if len(placer.calls) != 1 {
		t.Fatalf("placements = %d, want 1", len(placer.calls))
	}
	if jobs[0].Result != ResultPlaced {
		t.Fatalf("in-flight attempt must complete normally: %+v", jobs[0])
	}
}

func TestNewRejectsNonPositiveRate(t *testing.T) {
	if _, err := New(&fakePlacer{}, Config{RatePerMinute: 0}); err == nil {
		t.Fatalf("expected error for zero rate")
	}
}
