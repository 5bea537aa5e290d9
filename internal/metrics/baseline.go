// Package metrics learns how many location reports each source normally
// delivers per hour of the week, so the health surface can tell a quiet
// Sunday morning apart from a dead feed.
package metrics

import (
	"context"
	"log"
	"time"

	"github.com/Gerzer/Shuttle-Tracker-Server/internal/model"
)

// MinSamples is how many observations an (hour, weekday) cell needs before
// its baseline is trusted for anomaly grading.
const MinSamples = 10

// Baseline is the expected fresh-report volume for one source during one
// hour of the week.
type Baseline struct {
	Source      model.ReportSource `json:"source"`
	HourOfDay   int                `json:"hourOfDay"`
	DayOfWeek   int                `json:"dayOfWeek"`
	CountMean   float64            `json:"countMean"`
	CountStdDev float64            `json:"countStdDev"`
	SampleCount int                `json:"sampleCount"`
}

// BaselineStore persists learned baselines. A missing cell comes back as
// (nil, nil).
type BaselineStore interface {
	GetBaseline(ctx context.Context, source model.ReportSource, hourOfDay, dayOfWeek int) (*Baseline, error)
	PutBaseline(ctx context.Context, b *Baseline) error
}

// Learner folds observed report counts into per-source baselines.
type Learner struct {
	store BaselineStore
}

// NewLearner creates a learner over a baseline store.
func NewLearner(store BaselineStore) *Learner {
	return &Learner{store: store}
}

// Observe folds one cycle's fresh-report counts into the baselines for now's
// hour and weekday. Zero counts are skipped so outages do not drag the
// learned mean toward zero, and a failure on one source never blocks the
// others.
func (l *Learner) Observe(ctx context.Context, now time.Time, counts map[model.ReportSource]int) {
	hour := now.Hour()
	dayOfWeek := int(now.Weekday())

	for source, count := range counts {
		if count == 0 {
			continue
		}
		if err := l.observeSource(ctx, source, hour, dayOfWeek, count); err != nil {
			log.Printf("Baseline: failed to update %s: %v", source, err)
		}
	}
}

func (l *Learner) observeSource(ctx context.Context, source model.ReportSource, hour, dayOfWeek, count int) error {
	existing, err := l.store.GetBaseline(ctx, source, hour, dayOfWeek)
	if err != nil {
		return err
	}

	var welford *WelfordState
	if existing != nil {
		welford = ResumeWelford(existing.CountMean, existing.CountStdDev, existing.SampleCount)
	} else {
		welford = &WelfordState{}
	}
	welford.Update(float64(count))

	return l.store.PutBaseline(ctx, &Baseline{
		Source:      source,
		HourOfDay:   hour,
		DayOfWeek:   dayOfWeek,
		CountMean:   welford.Mean,
		CountStdDev: welford.StdDev(),
		SampleCount: welford.Count,
	})
}

// Assessment grades a source's current report flow against its baseline.
type Assessment struct {
	Source  model.ReportSource `json:"source"`
	Count   int                `json:"count"`
	Mean    float64            `json:"mean"`
	StdDev  float64            `json:"stdDev"`
	Samples int                `json:"samples"`
	ZScore  float64            `json:"zScore"`
	Status  string             `json:"status"`
}

// Assessment statuses.
const (
	StatusLearning = "learning" // not enough samples to judge
	StatusNormal   = "normal"
	StatusQuiet    = "quiet" // well below the learned volume
	StatusBusy     = "busy"  // well above the learned volume
)

// Assess compares a current count against a learned baseline.
func Assess(source model.ReportSource, b *Baseline, count int) Assessment {
	a := Assessment{Source: source, Count: count, Status: StatusLearning}
	if b == nil || b.SampleCount < MinSamples {
		return a
	}

	a.Mean = b.CountMean
	a.StdDev = b.CountStdDev
	a.Samples = b.SampleCount

	if b.CountStdDev == 0 {
		switch {
		case float64(count) < b.CountMean:
			a.Status = StatusQuiet
		case float64(count) > b.CountMean:
			a.Status = StatusBusy
		default:
			a.Status = StatusNormal
		}
		return a
	}

	a.ZScore = (float64(count) - b.CountMean) / b.CountStdDev
	switch {
	case a.ZScore < -2:
		a.Status = StatusQuiet
	case a.ZScore > 2:
		a.Status = StatusBusy
	default:
		a.Status = StatusNormal
	}
	return a
}
