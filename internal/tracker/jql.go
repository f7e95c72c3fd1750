package tracker

import (
	"regexp"
	"strings"
)

var bareField = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.]*$`)

var jqlEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// Quote renders s as a double-quoted JQL string literal.
func Quote(s string) string {
	return `"` + jqlEscaper.Replace(s) + `"`
}

func field(name string) string {
	if bareField.MatchString(name) {
		return name
	}
	return Quote(name)
}

// Query builds a JQL expression from AND-ed clauses. Values are always
// quoted, so caller input cannot change the query structure.
type Query struct {
	clauses []string
	order   string
}

// NewQuery starts an empty query.
func NewQuery() *Query {
	return &Query{}
}

// Equals adds `field = "value"`.
func (q *Query) Equals(name, value string) *Query {
	q.clauses = append(q.clauses, field(name)+" = "+Quote(value))
	return q
}

// Contains adds `field ~ "value"`.
func (q *Query) Contains(name, value string) *Query {
	q.clauses = append(q.clauses, field(name)+" ~ "+Quote(value))
	return q
}

// OrderBy sets the sort; desc selects DESC.
func (q *Query) OrderBy(name string, desc bool) *Query {
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	q.order = field(name) + " " + dir
	return q
}

func (q *Query) String() string {
	s := strings.Join(q.clauses, " AND ")
	if q.order != "" {
		if s != "" {
			s += " "
		}
		s += "ORDER BY " + q.order
	}
	return s
}
