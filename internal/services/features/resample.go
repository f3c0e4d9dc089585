// Package features turns irregular event logs into regular series.
package features

import (
	"sort"
	"time"

	"AlphaNebula/internal/domain/models"
)

// Series is a regular series: one value per bucket, buckets ascending.
type Series struct {
	Periods []time.Time
	Values  []float64
}

func (s Series) Len() int { return len(s.Values) }

// BucketStart returns the start of the bucket containing t, in UTC.
// Weeks start on Monday.
func BucketStart(t time.Time, freq models.Frequency) time.Time {
	t = t.UTC()
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	switch freq {
	case models.FrequencyWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case models.FrequencyMonthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	case models.FrequencyQuarterly:
		q := (int(m) - 1) / 3
		return time.Date(y, time.Month(q*3+1), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// NextPeriod returns the bucket after the one starting at start.
func NextPeriod(start time.Time, freq models.Frequency) time.Time {
	switch freq {
	case models.FrequencyWeekly:
		return start.AddDate(0, 0, 7)
	case models.FrequencyMonthly:
		return start.AddDate(0, 1, 0)
	case models.FrequencyQuarterly:
		return start.AddDate(0, 3, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}

// Resample averages events into buckets. Empty buckets are omitted rather than filled.
func Resample(events []models.SignalEvent, freq models.Frequency) Series {
	type acc struct {
		sum float64
		n   int
	}
	buckets := make(map[time.Time]*acc)
	for _, e := range events {
		k := BucketStart(e.CreatedAt, freq)
		a, ok := buckets[k]
		if !ok {
			a = &acc{}
			buckets[k] = a
		}
		a.sum += e.Value
		a.n++
	}

	periods := make([]time.Time, 0, len(buckets))
	for k := range buckets {
		periods = append(periods, k)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Before(periods[j]) })

	values := make([]float64, len(periods))
	for i, p := range periods {
		a := buckets[p]
		values[i] = a.sum / float64(a.n)
	}
	return Series{Periods: periods, Values: values}
}

// Align keeps the buckets present in every series, preserving order.
func Align(series ...Series) []Series {
	if len(series) == 0 {
		return nil
	}
	count := make(map[time.Time]int)
	for _, s := range series {
		for _, p := range s.Periods {
			count[p]++
		}
	}
	out := make([]Series, len(series))
	for i, s := range series {
		for j, p := range s.Periods {
			if count[p] == len(series) {
				out[i].Periods = append(out[i].Periods, p)
				out[i].Values = append(out[i].Values, s.Values[j])
			}
		}
	}
	return out
}

// Contiguous trims series that share their buckets (see Align) to the longest run of
// consecutive buckets at freq, so position i-1 is always the period before i. Ties keep
// the most recent run.
func Contiguous(freq models.Frequency, series ...Series) []Series {
	if len(series) == 0 || series[0].Len() == 0 {
		return series
	}
	ps := series[0].Periods
	bestStart, bestLen, start := 0, 0, 0
	for i := 1; i <= len(ps); i++ {
		if i < len(ps) && ps[i].Equal(NextPeriod(ps[i-1], freq)) {
			continue
		}
		if i-start >= bestLen {
			bestStart, bestLen = start, i-start
		}
		start = i
	}
	out := make([]Series, len(series))
	for i, s := range series {
		end := bestStart + bestLen
		out[i] = Series{Periods: s.Periods[bestStart:end], Values: s.Values[bestStart:end]}
	}
	return out
}

// Shift moves every value one bucket later, so aligning a shifted predictor with a
// target pairs y_t with x_{t-1}.
func (s Series) Shift(freq models.Frequency) Series {
	out := Series{Periods: make([]time.Time, len(s.Periods)), Values: append([]float64(nil), s.Values...)}
	for i, p := range s.Periods {
		out.Periods[i] = NextPeriod(p, freq)
	}
	return out
}

// Difference returns x_t - x_{t-1}; the result is one shorter than x.
func Difference(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		out[i-1] = x[i] - x[i-1]
	}
	return out
}
