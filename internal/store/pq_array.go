package store

import "github.com/lib/pq"

// stringArray adapts a []string for use as a Postgres text[] bind
// parameter (ANY($1) predicates), via lib/pq's array support.
func stringArray(ss []string) interface{} { return pq.Array(ss) }
