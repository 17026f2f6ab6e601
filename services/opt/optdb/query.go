// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package optdb

import "sort"

// Query selects registry entries by tag.
//
// An entry is selected iff its tags intersect the include set, contain
// every required tag, and avoid every excluded tag. Queries are
// immutable values: the refinement methods return modified copies, so a
// query can be shared and specialized freely.
//
// Subqueries override the query used when a selected entry is itself a
// sub-registry; sub-registries without an override resolve under the
// same query.
type Query struct {
	include map[string]bool
	require map[string]bool
	exclude map[string]bool
	sub     map[string]Query
}

// NewQuery creates a query selecting entries tagged with any of the
// given tags.
//
// Outputs:
//   - Query: the new query.
//   - error: ErrEmptyQuery when no include tags are given.
func NewQuery(include ...string) (Query, error) {
	if len(include) == 0 {
		return Query{}, ErrEmptyQuery
	}
	return Query{include: tagSet(include)}, nil
}

// MustQuery is NewQuery for statically-known tag lists; panics on a
// configuration error.
func MustQuery(include ...string) Query {
	q, err := NewQuery(include...)
	if err != nil {
		panic(err)
	}
	return q
}

// Including returns a copy of the query with the tags added to the
// include set.
func (q Query) Including(tags ...string) Query {
	c := q.clone()
	for _, t := range tags {
		c.include[t] = true
	}
	return c
}

// Requiring returns a copy of the query with the tags added to the
// require set. The result selects a subset of what q selects.
func (q Query) Requiring(tags ...string) Query {
	c := q.clone()
	for _, t := range tags {
		c.require[t] = true
	}
	return c
}

// Excluding returns a copy of the query with the tags added to the
// exclude set. The result selects a subset of what q selects.
func (q Query) Excluding(tags ...string) Query {
	c := q.clone()
	for _, t := range tags {
		c.exclude[t] = true
	}
	return c
}

// WithSubquery returns a copy of the query resolving the named
// sub-registry under sub instead of under q itself.
func (q Query) WithSubquery(name string, sub Query) Query {
	c := q.clone()
	c.sub[name] = sub
	return c
}

// Include returns the include tags, sorted.
func (q Query) Include() []string { return sortedTags(q.include) }

// Require returns the require tags, sorted.
func (q Query) Require() []string { return sortedTags(q.require) }

// Exclude returns the exclude tags, sorted.
func (q Query) Exclude() []string { return sortedTags(q.exclude) }

// Subquery returns the query to resolve the named sub-registry under:
// the registered override, or q itself.
func (q Query) Subquery(name string) Query {
	if sub, ok := q.sub[name]; ok {
		return sub
	}
	return q
}

// Selects reports whether an entry with the given tags passes the
// query's filter.
func (q Query) Selects(tags map[string]bool) bool {
	hit := false
	for t := range q.include {
		if tags[t] {
			hit = true
			break
		}
	}
	if !hit {
		return false
	}
	for t := range q.require {
		if !tags[t] {
			return false
		}
	}
	for t := range q.exclude {
		if tags[t] {
			return false
		}
	}
	return true
}

// valid reports whether the query can select anything at all.
func (q Query) valid() bool { return len(q.include) > 0 }

func (q Query) clone() Query {
	c := Query{
		include: make(map[string]bool, len(q.include)),
		require: make(map[string]bool, len(q.require)),
		exclude: make(map[string]bool, len(q.exclude)),
		sub:     make(map[string]Query, len(q.sub)),
	}
	for t := range q.include {
		c.include[t] = true
	}
	for t := range q.require {
		c.require[t] = true
	}
	for t := range q.exclude {
		c.exclude[t] = true
	}
	for name, sub := range q.sub {
		c.sub[name] = sub
	}
	return c
}

func tagSet(tags []string) map[string]bool {
	s := make(map[string]bool, len(tags))
	for _, t := range tags {
		s[t] = true
	}
	return s
}

func sortedTags(s map[string]bool) []string {
	tags := make([]string, 0, len(s))
	for t := range s {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
