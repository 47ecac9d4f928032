package dialer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/viola/internal/contacts"
	"github.com/antoniostano/viola/internal/events"
	"github.com/antoniostano/viola/internal/observability"
)

type Result string

const (
	ResultPlaced Result = "placed"
	ResultFailed Result = "failed"
)

// DialJob is the terminal outcome record for one placement attempt. There is
// no retry; a failed job stays failed.
type DialJob struct {
	ID           string           `json:"id"`
	Contact      contacts.Contact `json:"contact"`
	AttemptIndex int              `json:"attempt_index"`
	Result       Result           `json:"result"`
	CallID       string           `json:"call_id,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	PlacedAt     time.Time        `json:"placed_at"`
}

// Placer submits one outbound call to the telephony provider and returns its
// external call identifier.
type Placer interface {
	PlaceCall(ctx context.Context, contact contacts.Contact) (string, error)
}

var ErrNoContacts = errors.New("no usable contacts in list")

// MinInterval is the hard platform floor between placements. A requested
// rate above the cap is clamped, not rejected.
const MinInterval = 5 * time.Second

// Dialer paces outbound call placement against the provider quota. It is a
// rate governor by construction: one contact at a time, a fixed wait between
// placements, per-contact failures isolated from the rest of the batch.
type Dialer struct {
	placer  Placer
	rate    float64
	floor   time.Duration
	wait    func(ctx context.Context, d time.Duration) bool
	hub     *events.Hub
	metrics *observability.Metrics
}

type Config struct {
	RatePerMinute float64
	Floor         time.Duration
	Hub           *events.Hub
	Metrics       *observability.Metrics
}

func New(placer Placer, cfg Config) (*Dialer, error) {
	if placer == nil {
		return nil, errors.New("placer is required")
	}
	if cfg.RatePerMinute <= 0 {
		return nil, fmt.Errorf("rate per minute must be positive, got %v", cfg.RatePerMinute)
	}
	floor := cfg.Floor
	if floor <= 0 {
		floor = MinInterval
	}
	return &Dialer{
		placer:  placer,
		rate:    cfg.RatePerMinute,
		floor:   floor,
		wait:    sleepWait,
		hub:     cfg.Hub,
		metrics: cfg.Metrics,
	}, nil
}

// Interval is the enforced pause between placements: the requested rate,
// clamped to the platform floor.
func (d *Dialer) Interval() time.Duration {
	interval := time.Duration(float64(time.Minute) / d.rate)
	if interval < d.floor {
		return d.floor
	}
	return interval
}

// Run attempts every usable contact in input order and reports all outcomes.
// Cancelling ctx stops placing new calls; the in-flight attempt completes or
// fails normally and is reported like any other.
func (d *Dialer) Run(ctx context.Context, list []contacts.Contact) ([]DialJob, error) {
	usable := contacts.Filter(list)
	if len(usable) == 0 {
		return nil, ErrNoContacts
	}

	interval := d.Interval()
	jobs := make([]DialJob, 0, len(usable))
	for i, contact := range usable {
		if ctx.Err() != nil {
			log.Printf("dial batch cancelled after %d of %d contacts", i, len(usable))
			break
		}

		job := DialJob{
			ID:           uuid.NewString(),
			Contact:      contact,
			AttemptIndex: i + 1,
			PlacedAt:     time.Now().UTC(),
		}
		callID, err := d.placer.PlaceCall(ctx, contact)
		if err != nil {
			job.Result = ResultFailed
			job.Reason = err.Error()
			log.Printf("dial %d/%d to %s failed: %v", i+1, len(usable), contact.Number, err)
		} else {
			job.Result = ResultPlaced
			job.CallID = callID
			log.Printf("dial %d/%d to %s placed: %s", i+1, len(usable), contact.Number, callID)
		}
		jobs = append(jobs, job)
		d.record(job)

		if i < len(usable)-1 {
			if !d.wait(ctx, interval) {
				log.Printf("dial batch cancelled during pacing wait after %d of %d contacts", i+1, len(usable))
				break
			}
		}
	}
	return jobs, nil
}

// Summary aggregates a finished batch for the end-of-run report.
type Summary struct {
	Total  int
	Placed int
	Failed int
}

func Summarize(jobs []DialJob) Summary {
	s := Summary{Total: len(jobs)}
	for _, job := range jobs {
		switch job.Result {
		case ResultPlaced:
			s.Placed++
		case ResultFailed:
			s.Failed++
		}
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%d attempted, %d placed, %d failed", s.Total, s.Placed, s.Failed)
}

func (d *Dialer) record(job DialJob) {
	if d.metrics != nil {
		d.metrics.DialAttempts.WithLabelValues(string(job.Result)).Inc()
	}
	if d.hub != nil {
		d.hub.Publish(events.Event{
			Type:    events.TypeDialResult,
			CallID:  job.CallID,
			Number:  job.Contact.Number,
			Outcome: string(job.Result),
			Detail:  job.Reason,
		})
	}
}

func sleepWait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
