package index

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/alfredjeanlab/tracker/internal/model"
)

// Aggregation computes a summary over the documents matched by a query.
type Aggregation interface {
	aggregate(docs []*model.IssueDocument, idx *Index) *AggregationResult
}

// AggregationResult is the outcome of one aggregation. Bucket aggregations
// fill Buckets; metric aggregations fill Value; filter aggregations fill
// Count and Sub.
type AggregationResult struct {
	Count    int64
	Value    float64
	HasValue bool
	Buckets  []Bucket
	Sub      map[string]*AggregationResult
}

// Bucket is one group of a bucket aggregation.
type Bucket struct {
	Key   string
	Time  time.Time // date histogram buckets only
	Count int64
	Sum   float64 // summed SumField, when set
	Sub   map[string]*AggregationResult
}

// Bucket returns the bucket with the given key, or nil.
func (r *AggregationResult) Bucket(key string) *Bucket {
	if r == nil {
		return nil
	}
	for i := range r.Buckets {
		if r.Buckets[i].Key == key {
			return &r.Buckets[i]
		}
	}
	return nil
}

func subAggregate(subs map[string]Aggregation, docs []*model.IssueDocument, idx *Index) map[string]*AggregationResult {
	if len(subs) == 0 {
		return nil
	}
	out := make(map[string]*AggregationResult, len(subs))
	for name, agg := range subs {
		out[name] = agg.aggregate(docs, idx)
	}
	return out
}

func sumOf(docs []*model.IssueDocument, field string) float64 {
	var total float64
	for _, d := range docs {
		if v, ok := number(d, field); ok {
			total += v
		}
	}
	return total
}

// TermsAgg groups documents by the values of a keyword field. Buckets are
// ordered by descending count then ascending key. A document with several
// values counts once in each of its buckets.
type TermsAgg struct {
	Field string
	// Size limits the number of buckets; zero or less means no limit.
	Size int
	// Include restricts buckets to these keys when non-empty.
	Include []string
	// Contains keeps only keys containing this substring (case-insensitive).
	Contains string
	// Missing adds a bucket with the empty key for documents without a value.
	Missing bool
	// SumField, when set, sums this numeric field per bucket.
	SumField string
	Sub      map[string]Aggregation
}

func (a TermsAgg) aggregate(docs []*model.IssueDocument, idx *Index) *AggregationResult {
	groups := make(map[string][]*model.IssueDocument)
	var missing []*model.IssueDocument
	contains := strings.ToLower(a.Contains)
	for _, d := range docs {
		values := keywords(d, a.Field)
		if len(values) == 0 {
			missing = append(missing, d)
			continue
		}
		for _, v := range values {
			if len(a.Include) > 0 && !slices.Contains(a.Include, v) {
				continue
			}
			if contains != "" && !strings.Contains(strings.ToLower(v), contains) {
				continue
			}
			groups[v] = append(groups[v], d)
		}
	}

	buckets := make([]Bucket, 0, len(groups))
	for key, members := range groups {
		buckets = append(buckets, a.bucket(key, members, idx))
	}
	slices.SortFunc(buckets, func(x, y Bucket) int {
		if x.Count != y.Count {
			if x.Count > y.Count {
				return -1
			}
			return 1
		}
		return strings.Compare(x.Key, y.Key)
	})
	if a.Size > 0 && len(buckets) > a.Size {
		buckets = buckets[:a.Size]
	}
	if a.Missing && len(missing) > 0 {
		buckets = append(buckets, a.bucket("", missing, idx))
	}
	return &AggregationResult{Count: int64(len(docs)), Buckets: buckets}
}

func (a TermsAgg) bucket(key string, members []*model.IssueDocument, idx *Index) Bucket {
	b := Bucket{Key: key, Count: int64(len(members)), Sub: subAggregate(a.Sub, members, idx)}
	if a.SumField != "" {
		b.Sum = sumOf(members, a.SumField)
	}
	return b
}

// FilterAgg narrows the document set with a filter before running its
// sub-aggregations.
type FilterAgg struct {
	Filter   Filter
	SumField string
	Sub      map[string]Aggregation
}

func (a FilterAgg) aggregate(docs []*model.IssueDocument, idx *Index) *AggregationResult {
	var kept []*model.IssueDocument
	for _, d := range docs {
		if a.Filter == nil || a.Filter.match(d, idx) {
			kept = append(kept, d)
		}
	}
	r := &AggregationResult{Count: int64(len(kept)), Sub: subAggregate(a.Sub, kept, idx)}
	if a.SumField != "" {
		r.Value = sumOf(kept, a.SumField)
		r.HasValue = true
	}
	return r
}

// MinAgg computes the minimum of a numeric or date field. Dates are
// reported as Unix milliseconds.
type MinAgg struct{ Field string }

func (a MinAgg) aggregate(docs []*model.IssueDocument, _ *Index) *AggregationResult {
	return extremum(docs, a.Field, func(v, cur float64) bool { return v < cur })
}

// MaxAgg computes the maximum of a numeric or date field.
type MaxAgg struct{ Field string }

func (a MaxAgg) aggregate(docs []*model.IssueDocument, _ *Index) *AggregationResult {
	return extremum(docs, a.Field, func(v, cur float64) bool { return v > cur })
}

func extremum(docs []*model.IssueDocument, field string, better func(v, cur float64) bool) *AggregationResult {
	r := &AggregationResult{Count: int64(len(docs))}
	for _, d := range docs {
		var v float64
		if kindOf(field) == kindDate {
			t, ok := date(d, field)
			if !ok {
				continue
			}
			v = float64(t.UnixMilli())
		} else {
			n, ok := number(d, field)
			if !ok {
				continue
			}
			v = n
		}
		if !r.HasValue || better(v, r.Value) {
			r.Value = v
			r.HasValue = true
		}
	}
	return r
}

// SumAgg sums a numeric field.
type SumAgg struct{ Field string }

func (a SumAgg) aggregate(docs []*model.IssueDocument, _ *Index) *AggregationResult {
	return &AggregationResult{Count: int64(len(docs)), Value: sumOf(docs, a.Field), HasValue: true}
}

// Interval is the bucket width of a date histogram.
type Interval string

const (
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// DateHistogramAgg buckets documents by a date field. Bucket boundaries
// are computed in Location (UTC when nil) while document dates are
// compared as absolute instants. When Min and Max are set, empty buckets
// are emitted for every interval between them.
type DateHistogramAgg struct {
	Field    string
	Interval Interval
	Location *time.Location
	Min, Max time.Time
	SumField string
}

// HistogramKeyLayout is the layout of date histogram bucket keys.
const HistogramKeyLayout = "2006-01-02T15:04:05-0700"

func (a DateHistogramAgg) aggregate(docs []*model.IssueDocument, _ *Index) *AggregationResult {
	loc := a.Location
	if loc == nil {
		loc = time.UTC
	}
	type acc struct {
		start time.Time
		count int64
		sum   float64
	}
	byStart := make(map[int64]*acc)
	for _, d := range docs {
		t, ok := date(d, a.Field)
		if !ok {
			continue
		}
		start := a.truncate(t.In(loc))
		b, ok := byStart[start.Unix()]
		if !ok {
			b = &acc{start: start}
			byStart[start.Unix()] = b
		}
		b.count++
		if a.SumField != "" {
			if v, ok := number(d, a.SumField); ok {
				b.sum += v
			}
		}
	}
	if !a.Min.IsZero() && !a.Max.IsZero() && !a.Max.Before(a.Min) {
		last := a.truncate(a.Max.In(loc))
		for s := a.truncate(a.Min.In(loc)); !s.After(last); s = a.truncate(a.next(s)) {
			if _, ok := byStart[s.Unix()]; !ok {
				byStart[s.Unix()] = &acc{start: s}
			}
		}
	}

	buckets := make([]Bucket, 0, len(byStart))
	for _, b := range byStart {
		buckets = append(buckets, Bucket{
			Key:   b.start.Format(HistogramKeyLayout),
			Time:  b.start,
			Count: b.count,
			Sum:   b.sum,
		})
	}
	slices.SortFunc(buckets, func(x, y Bucket) int { return x.Time.Compare(y.Time) })
	return &AggregationResult{Count: int64(len(docs)), Buckets: buckets}
}

// truncate returns the start of the interval containing t, in t's location.
func (a DateHistogramAgg) truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	loc := t.Location()
	switch a.Interval {
	case IntervalYear:
		return startOfDay(y, time.January, 1, loc)
	case IntervalMonth:
		return startOfDay(y, m, 1, loc)
	case IntervalWeek:
		// Weeks start on Monday.
		offset := (int(t.Weekday()) + 6) % 7
		return startOfDay(y, m, d-offset, loc)
	}
	return startOfDay(y, m, d, loc)
}

// startOfDay returns the first instant of the local date. Where a DST
// change skips midnight that is the transition instant, not midnight.
func startOfDay(y int, m time.Month, d int, loc *time.Location) time.Time {
	// Noon exists on every date; it normalizes out-of-range days too.
	y, m, d = time.Date(y, m, d, 12, 0, 0, 0, loc).Date()
	t := time.Date(y, m, d, 0, 0, 0, 0, loc)
	if sameDate(t, y, m, d) {
		return t
	}
	// Midnight was normalized into the previous day: search the first
	// second that falls on the date.
	lo, hi := t.Unix(), time.Date(y, m, d, 12, 0, 0, 0, loc).Unix()
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		if sameDate(time.Unix(mid, 0).In(loc), y, m, d) {
			hi = mid
		} else {
			lo = mid
		}
	}
	return time.Unix(hi, 0).In(loc)
}

func sameDate(t time.Time, y int, m time.Month, d int) bool {
	ty, tm, td := t.Date()
	return ty == y && tm == m && td == d
}

// next returns the start of the interval after the one starting at t.
// It steps by calendar date, since adding a day to a skipped midnight
// lands back on the previous date.
func (a DateHistogramAgg) next(t time.Time) time.Time {
	y, m, d := t.Date()
	loc := t.Location()
	switch a.Interval {
	case IntervalYear:
		return startOfDay(y+1, time.January, 1, loc)
	case IntervalMonth:
		return startOfDay(y, m+1, 1, loc)
	case IntervalWeek:
		return startOfDay(y, m, d+7, loc)
	}
	return startOfDay(y, m, d+1, loc)
}

// MillisToTime converts a date aggregation value back to a time.
func MillisToTime(v float64) time.Time {
	return time.UnixMilli(int64(math.Round(v))).UTC()
}
