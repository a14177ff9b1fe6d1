package connect

import (
	"net/url"
	"strconv"
	"strings"
)

// Query builds the small subset of RQL filters the extension needs.
// Terms are joined with and().
type Query struct {
	terms  []string
	limit  int
	offset int
}

// NewQuery returns an empty query.
func NewQuery() *Query {
	return &Query{}
}

// Eq adds eq(field,value).
func (q *Query) Eq(field, value string) *Query {
	q.terms = append(q.terms, "eq("+field+","+escapeValue(value)+")")
	return q
}

// In adds in(field,(v1,v2,...)). An empty value list adds nothing.
func (q *Query) In(field string, values ...string) *Query {
	if len(values) == 0 {
		return q
	}
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = escapeValue(v)
	}
	q.terms = append(q.terms, "in("+field+",("+strings.Join(escaped, ",")+"))")
	return q
}

// Limit sets the page size. Zero leaves it to the server.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Offset sets the page offset.
func (q *Query) Offset(n int) *Query {
	q.offset = n
	return q
}

// String renders the filter expression without paging.
func (q *Query) String() string {
	switch len(q.terms) {
	case 0:
		return ""
	case 1:
		return q.terms[0]
	default:
		return "and(" + strings.Join(q.terms, ",") + ")"
	}
}

// Encode renders the full raw query string: filter plus limit/offset.
func (q *Query) Encode() string {
	var parts []string
	if s := q.String(); s != "" {
		parts = append(parts, s)
	}
	if q.limit > 0 {
		parts = append(parts, "limit="+strconv.Itoa(q.limit))
	}
	if q.offset > 0 {
		parts = append(parts, "offset="+strconv.Itoa(q.offset))
	}
	return strings.Join(parts, "&")
}

// clone copies the query so paging does not mutate the caller's value.
func (q *Query) clone() *Query {
	if q == nil {
		return NewQuery()
	}
	c := *q
	c.terms = append([]string(nil), q.terms...)
	return &c
}

// escapeValue keeps RQL syntax characters from leaking out of a value.
// QueryEscape covers the parens and commas.
func escapeValue(v string) string {
	return url.QueryEscape(v)
}
