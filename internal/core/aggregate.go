package core

import (
	"sort"
	"strings"
)

// GenerateSummary sums the measures of every record whose entity id is in ids,
// one row per entity in first-seen order, followed by the TOTAL row.
//
// Duplicate ids count once and ids absent from the dataset are skipped, so an
// empty or non-matching id list yields a report holding only a zero TOTAL.
func GenerateSummary(ds *Dataset, ids []string) (SummaryReport, error) {
	if ds == nil {
		return SummaryReport{}, ErrNilDataset
	}
	if err := ds.CheckSchema(); err != nil {
		return SummaryReport{}, err
	}

	want := idSet(ids)
	index := map[string]int{}
	var rows []SummaryRow
	var total Measures
	for _, rec := range ds.records {
		if _, ok := want[rec.EntityID]; !ok {
			continue
		}
		i, seen := index[rec.EntityID]
		if !seen {
			i = len(rows)
			index[rec.EntityID] = i
			rows = append(rows, SummaryRow{Key: rec.EntityID})
		}
		rows[i].Measures = rows[i].Measures.Add(rec.Measures)
		total = total.Add(rec.Measures)
	}
	rows = append(rows, SummaryRow{Key: TotalKey, Measures: total})
	return SummaryReport{Rows: rows}, nil
}

// GenerateMonthlyBreakdown sums the measures per (entity, month) pair for the
// records whose entity id is in ids. Rows are ordered by entity id then month.
// Datasets without a month column fail with a SchemaError naming it; callers
// should consult Dataset.HasMonth first.
func GenerateMonthlyBreakdown(ds *Dataset, ids []string) (MonthlyReport, error) {
	if ds == nil {
		return MonthlyReport{}, ErrNilDataset
	}
	if err := ds.CheckSchema(); err != nil {
		return MonthlyReport{}, err
	}
	if !ds.HasMonth() {
		return MonthlyReport{}, &SchemaError{Missing: []string{ColMonth}}
	}

	type key struct{ entity, month string }
	want := idSet(ids)
	index := map[key]int{}
	var rows []MonthlyRow
	for _, rec := range ds.records {
		if _, ok := want[rec.EntityID]; !ok {
			continue
		}
		k := key{rec.EntityID, rec.Month}
		i, seen := index[k]
		if !seen {
			i = len(rows)
			index[k] = i
			rows = append(rows, MonthlyRow{EntityID: rec.EntityID, Month: rec.Month})
		}
		rows[i].Measures = rows[i].Measures.Add(rec.Measures)
	}

	sort.SliceStable(rows, func(a, b int) bool {
		if rows[a].EntityID != rows[b].EntityID {
			return rows[a].EntityID < rows[b].EntityID
		}
		return CompareMonths(rows[a].Month, rows[b].Month) < 0
	})
	return MonthlyReport{Rows: rows}, nil
}

// ParseEntityIDs splits a comma separated list, trimming blanks and dropping
// empty and repeated entries. Order of first appearance is kept.
func ParseEntityIDs(input string) []string {
	return NormalizeEntityIDs(strings.Split(input, ","))
}

// NormalizeEntityIDs trims every id and drops empties and repeats.
func NormalizeEntityIDs(ids []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
