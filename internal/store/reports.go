package store

import (
	"context"
	"time"
)

type LabelCount struct {
	Label string
	Count int64
}

func (q *Queries) collectLabelCounts(ctx context.Context, sql string, args ...any) ([]LabelCount, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []LabelCount{}
	for rows.Next() {
		var c LabelCount
		if err := rows.Scan(&c.Label, &c.Count); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (q *Queries) CountLeadsByStatus(ctx context.Context, academicYear string) ([]LabelCount, error) {
	return q.collectLabelCounts(ctx, `
SELECT lead_status, count(*)
FROM leads
WHERE academic_year = $1
GROUP BY lead_status
ORDER BY lead_status`, academicYear)
}

func (q *Queries) CountLeadsBySource(ctx context.Context, academicYear string) ([]LabelCount, error) {
	return q.collectLabelCounts(ctx, `
SELECT source, count(*)
FROM leads
WHERE academic_year = $1
GROUP BY source
ORDER BY count(*) DESC, source`, academicYear)
}

func (q *Queries) CountHotLeads(ctx context.Context, academicYear string) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM leads WHERE academic_year = $1 AND is_hot`, academicYear).Scan(&n)
	return n, err
}

func (q *Queries) SumConvertedRevenue(ctx context.Context, academicYear string) (int64, error) {
	var total int64
	err := q.db.QueryRow(ctx, `
SELECT COALESCE(sum(potential_revenue), 0)::bigint
FROM leads
WHERE academic_year = $1 AND lead_status = 'converted'`, academicYear).Scan(&total)
	return total, err
}

func (q *Queries) CountOverdueFollowups(ctx context.Context, academicYear string, now time.Time) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `
SELECT count(*)
FROM leads
WHERE academic_year = $1
	AND next_followup_date IS NOT NULL
	AND next_followup_date < $2
	AND lead_status NOT IN ('converted', 'closed')`, academicYear, now).Scan(&n)
	return n, err
}
