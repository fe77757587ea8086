package dialect

import "strings"

// placeholders joins count bind markers produced by mark.
func placeholders(count int, mark func(int) string) string {
	out := make([]string, count)
	for i := range out {
		out[i] = mark(i)
	}
	return strings.Join(out, ", ")
}

// quoteList quotes column names for a select or insert list. The rowid
// pseudo column stays bare.
func quoteList(quote func(string) string, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		if c == "rowid" {
			quoted[i] = c
			continue
		}
		quoted[i] = quote(c)
	}
	return strings.Join(quoted, ", ")
}
