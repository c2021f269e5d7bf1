package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Outcome classes.
const (
	OutcomePassed     = "passed"
	OutcomeFailed     = "failed"
	OutcomeIncomplete = "incomplete"
)

const outcomeExpr = `CASE WHEN code IS NULL THEN 'incomplete' WHEN code = 200 THEN 'passed' ELSE 'failed' END`

// Default chart shape.
const (
	DefaultBucket      = 10 * time.Second
	DefaultChartWindow = 3600
)

// ChartQuery selects the rows and metric for a chart series.
type ChartQuery struct {
	// Started is the run start; bucket offsets are relative to it.
	Started time.Time
	// Atomic selects single-request rows, otherwise whole-action rows.
	Atomic bool
	// Latency charts the average latency instead of the request volume.
	Latency bool
	// Actions restricts the rows to these actions when non-empty.
	Actions []string
	Bucket  time.Duration
	// Limit keeps only the most recent buckets.
	Limit int
}

// Bucket is one point of a chart series.
type Bucket struct {
	Offset     int
	Passed     float64
	Failed     float64
	Incomplete float64
}

// Chart groups rows into fixed-width buckets relative to q.Started and
// classifies each bucket's rows by outcome. Buckets are returned in
// ascending offset order; empty buckets are omitted.
func (s *Store) Chart(ctx context.Context, q ChartQuery) ([]Bucket, error) {
	width := int(q.Bucket / time.Second)
	if width <= 0 {
		width = int(DefaultBucket / time.Second)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultChartWindow
	}

	value := "COUNT(*)"
	if q.Latency {
		value = "COALESCE(AVG(latency), 0)"
	}

	args := []any{toSeconds(q.Started), width, q.Atomic}
	var filter string
	if len(q.Actions) > 0 {
		marks := make([]string, len(q.Actions))
		for i, a := range q.Actions {
			marks[i] = "?"
			args = append(args, a)
		}
		filter = " AND action IN (" + strings.Join(marks, ", ") + ")"
	}

	query := fmt.Sprintf(`
	SELECT CAST(MAX(timestamp - ?, 0) / ? AS INTEGER) AS bucket, %s AS outcome, %s
	FROM recs
	WHERE atomic = ?%s
	GROUP BY bucket, outcome
	ORDER BY bucket`, outcomeExpr, value, filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chart: %w", err)
	}
	defer rows.Close()

	byIndex := make(map[int]*Bucket)
	var order []int
	for rows.Next() {
		var (
			idx     int
			outcome string
			v       float64
		)
		if err := rows.Scan(&idx, &outcome, &v); err != nil {
			return nil, fmt.Errorf("scan chart row: %w", err)
		}
		b, ok := byIndex[idx]
		if !ok {
			b = &Bucket{Offset: idx * width}
			byIndex[idx] = b
			order = append(order, idx)
		}
		switch outcome {
		case OutcomePassed:
			b.Passed += v
		case OutcomeFailed:
			b.Failed += v
		default:
			b.Incomplete += v
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chart rows: %w", err)
	}

	sort.Ints(order)
	if len(order) > limit {
		order = order[len(order)-limit:]
	}
	out := make([]Bucket, 0, len(order))
	for _, idx := range order {
		out = append(out, *byIndex[idx])
	}
	return out, nil
}

// ReasonCount is one line of the outcome summary. Code is nil for
// incomplete rows.
type ReasonCount struct {
	Reason string
	Code   *int
	Count  int
}

// Summary counts rows per reason, keeping one representative code for each.
func (s *Store) Summary(ctx context.Context) ([]ReasonCount, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT reason, MIN(code), COUNT(*)
	FROM recs
	GROUP BY reason
	ORDER BY COUNT(*) DESC, reason`)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var out []ReasonCount
	for rows.Next() {
		var (
			reason sql.NullString
			code   sql.NullInt64
			rc     ReasonCount
		)
		if err := rows.Scan(&reason, &code, &rc.Count); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		rc.Reason = reason.String
		if !reason.Valid {
			rc.Reason = IncompleteReason
		}
		if code.Valid {
			c := int(code.Int64)
			rc.Code = &c
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// OutcomeCount aggregates rows by action, row kind and outcome.
type OutcomeCount struct {
	Action     string
	Atomic     bool
	Outcome    string
	Count      int64
	LatencySum float64
}

// Counts returns totals for every action, row kind and outcome present.
func (s *Store) Counts(ctx context.Context) ([]OutcomeCount, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
	SELECT action, atomic, %s AS outcome, COUNT(*), COALESCE(SUM(latency), 0)
	FROM recs
	GROUP BY action, atomic, outcome
	ORDER BY action, atomic, outcome`, outcomeExpr))
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}
	defer rows.Close()

	var out []OutcomeCount
	for rows.Next() {
		var oc OutcomeCount
		if err := rows.Scan(&oc.Action, &oc.Atomic, &oc.Outcome, &oc.Count, &oc.LatencySum); err != nil {
			return nil, fmt.Errorf("scan counts row: %w", err)
		}
		out = append(out, oc)
	}
	return out, rows.Err()
}
