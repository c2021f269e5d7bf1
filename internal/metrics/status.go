package metrics

import "sort"

// CodeCount is the number of requests that ended with one response code.
type CodeCount struct {
	Code  int
	Count int
}

// FlattenCodes converts a code->count map into rows sorted by descending
// count, then by code for stability.
func FlattenCodes(codes map[int]int) []CodeCount {
	if len(codes) == 0 {
		return nil
	}
	rows := make([]CodeCount, 0, len(codes))
	for code, count := range codes {
		rows = append(rows, CodeCount{Code: code, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Code < rows[j].Code
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
