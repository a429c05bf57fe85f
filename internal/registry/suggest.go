package registry

import "sort"

// editDistance is the Levenshtein distance between a and b
func editDistance(a, b string) int {
	if a == "" {
		return len(b)
	}
	if b == "" {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// suggest returns up to n candidates within a few edits of name,
// closest first
func suggest(name string, candidates []string, n int) []string {
	const threshold = 4
	type match struct {
		name string
		dist int
	}
	var found []match
	for _, c := range candidates {
		if d := editDistance(name, c); d > 0 && d <= threshold {
			found = append(found, match{c, d})
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].dist == found[j].dist {
			return found[i].name < found[j].name
		}
		return found[i].dist < found[j].dist
	})
	out := make([]string, 0, n)
	for i := 0; i < len(found) && i < n; i++ {
		out = append(out, found[i].name)
	}
	return out
}
