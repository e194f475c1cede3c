package model

import "sort"

// Party maps ticket type to seat count, e.g. {"adult": 2, "child": 1}.
type Party map[string]int

// Total returns the number of seats across all ticket types.
func (p Party) Total() int {
	n := 0
	for _, q := range p {
		n += q
	}
	return n
}

// Types returns the ticket types in p in a stable order.
func (p Party) Types() []string {
	out := make([]string, 0, len(p))
	for t := range p {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Compact returns a copy of p without zero quantities.
func (p Party) Compact() Party {
	out := make(Party, len(p))
	for t, q := range p {
		if q != 0 {
			out[t] = q
		}
	}
	return out
}
