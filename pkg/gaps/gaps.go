// Package gaps infers idle intervals between usage records and classifies
// overall work patterns.
//
// A gap is the interval between two temporally adjacent records whose
// duration strictly exceeds the 30-minute threshold. Gaps are classified
// by length, and the record set as a whole is classified into a small
// work-pattern taxonomy from total active time and average gap length.
package gaps

import (
	"sort"
	"time"

	"github.com/0xmhha/usage-ledger/pkg/parser"
)

// Threshold is the minimum duration between adjacent records for the
// interval to count as a gap. The comparison is exclusive: an interval
// of exactly 30 minutes is not a gap.
const Threshold = 30 * time.Minute

// Classification buckets a gap by duration.
type Classification string

const (
	// ShortBreak is a gap under one hour.
	ShortBreak Classification = "short-break"

	// Break is a gap under four hours.
	Break Classification = "break"

	// LongBreak is a gap under eight hours.
	LongBreak Classification = "long-break"

	// Overnight is a gap under twenty-four hours.
	Overnight Classification = "overnight"

	// ExtendedAbsence is any gap of a day or more.
	ExtendedAbsence Classification = "extended-absence"
)

// WorkPattern classifies the overall usage rhythm.
type WorkPattern string

const (
	// MarathonWorker: long work stretches separated by long gaps.
	MarathonWorker WorkPattern = "marathon-worker"

	// FocusedWorker: long work stretches with short gaps.
	FocusedWorker WorkPattern = "focused-worker"

	// SprintWorker: short bursts with short gaps.
	SprintWorker WorkPattern = "sprint-worker"

	// SporadicWorker: short bursts separated by very long gaps.
	SporadicWorker WorkPattern = "sporadic-worker"

	// MixedPattern: anything that fits none of the above.
	MixedPattern WorkPattern = "mixed-pattern"
)

// Gap is an inferred idle interval between two adjacent records.
type Gap struct {
	Start           time.Time      `json:"start"`
	End             time.Time      `json:"end"`
	DurationMinutes float64        `json:"duration_minutes"`
	Type            Classification `json:"type"`
}

// Stats aggregates a gap list.
type Stats struct {
	Count            int                    `json:"count"`
	AvgMinutes       float64                `json:"avg_minutes"`
	MinMinutes       float64                `json:"min_minutes"`
	MaxMinutes       float64                `json:"max_minutes"`
	TotalIdleMinutes float64                `json:"total_idle_minutes"`
	ByType           map[Classification]int `json:"by_type"`
}

// Analysis is the complete gap and work-pattern report for a record set.
type Analysis struct {
	Gaps    []Gap       `json:"gaps"`
	Stats   Stats       `json:"stats"`
	Pattern WorkPattern `json:"pattern"`

	// ActiveMinutes is the total span of activity minus idle time.
	ActiveMinutes float64 `json:"active_minutes"`
}

// Classify buckets a gap duration.
func Classify(d time.Duration) Classification {
	switch {
	case d < time.Hour:
		return ShortBreak
	case d < 4*time.Hour:
		return Break
	case d < 8*time.Hour:
		return LongBreak
	case d < 24*time.Hour:
		return Overnight
	default:
		return ExtendedAbsence
	}
}

// Detect finds all gaps in the record set.
//
// Records are sorted by timestamp (the input slice is not modified);
// for each adjacent pair, the interval counts as a gap when it strictly
// exceeds Threshold.
func Detect(records []parser.UsageRecord) []Gap {
	if len(records) < 2 {
		return nil
	}

	times := make([]time.Time, len(records))
	for i := range records {
		times[i] = records[i].Timestamp
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	var gaps []Gap
	for i := 1; i < len(times); i++ {
		d := times[i].Sub(times[i-1])
		if d <= Threshold {
			continue
		}
		gaps = append(gaps, Gap{
			Start:           times[i-1],
			End:             times[i],
			DurationMinutes: d.Minutes(),
			Type:            Classify(d),
		})
	}

	return gaps
}

// Analyze detects gaps, aggregates statistics and classifies the overall
// work pattern for the record set.
func Analyze(records []parser.UsageRecord) Analysis {
	detected := Detect(records)

	stats := Stats{
		ByType: make(map[Classification]int),
	}

	var totalIdle float64
	for i, g := range detected {
		stats.ByType[g.Type]++
		totalIdle += g.DurationMinutes
		if i == 0 || g.DurationMinutes < stats.MinMinutes {
			stats.MinMinutes = g.DurationMinutes
		}
		if g.DurationMinutes > stats.MaxMinutes {
			stats.MaxMinutes = g.DurationMinutes
		}
	}
	stats.Count = len(detected)
	stats.TotalIdleMinutes = totalIdle
	if stats.Count > 0 {
		stats.AvgMinutes = totalIdle / float64(stats.Count)
	}

	active := activeMinutes(records, totalIdle)

	return Analysis{
		Gaps:          detected,
		Stats:         stats,
		Pattern:       classifyPattern(active, stats.AvgMinutes),
		ActiveMinutes: active,
	}
}

// activeMinutes returns the total activity span minus idle time.
func activeMinutes(records []parser.UsageRecord, idleMinutes float64) float64 {
	if len(records) < 2 {
		return 0
	}

	first := records[0].Timestamp
	last := records[0].Timestamp
	for i := range records {
		ts := records[i].Timestamp
		if ts.Before(first) {
			first = ts
		}
		if ts.After(last) {
			last = ts
		}
	}

	span := last.Sub(first).Minutes()
	active := span - idleMinutes
	if active < 0 {
		return 0
	}
	return active
}

// classifyPattern applies the documented numeric thresholds:
//
//	work > 180min and avgGap >  60min -> marathon-worker
//	work >  90min and avgGap <  30min -> focused-worker
//	work <  60min and avgGap <  30min -> sprint-worker
//	work <  90min and avgGap > 120min -> sporadic-worker
//	anything else                     -> mixed-pattern
func classifyPattern(workMinutes, avgGapMinutes float64) WorkPattern {
	switch {
	case workMinutes > 180 && avgGapMinutes > 60:
		return MarathonWorker
	case workMinutes > 90 && avgGapMinutes < 30:
		return FocusedWorker
	case workMinutes < 60 && avgGapMinutes < 30:
		return SprintWorker
	case workMinutes < 90 && avgGapMinutes > 120:
		return SporadicWorker
	default:
		return MixedPattern
	}
}
