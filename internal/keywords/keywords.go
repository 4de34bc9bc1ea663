// Package keywords ranks vocabulary terms of a cluster by weight.
package keywords

import (
	"sort"

	"github.com/james-bowman/sparse"
)

// DefaultTopN is the number of weighted entries considered per cluster.
const DefaultTopN = 10

// Top returns the terms behind the topN heaviest stored entries of m.
// Entries are ranked across the whole matrix, not per row; equal weights
// keep storage order. Repeated terms collapse, so the result may be shorter than topN.
func Top(terms []string, m *sparse.CSR, topN int) []string {
	if topN <= 0 || m == nil {
		return []string{}
	}
	raw := m.RawMatrix()
	if len(raw.Data) == 0 {
		return []string{}
	}

	order := make([]int, len(raw.Data))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return raw.Data[order[a]] > raw.Data[order[b]]
	})
	if len(order) > topN {
		order = order[:topN]
	}

	seen := make(map[string]struct{}, len(order))
	out := make([]string, 0, len(order))
	for _, pos := range order {
		term := terms[raw.Ind[pos]]
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out
}
