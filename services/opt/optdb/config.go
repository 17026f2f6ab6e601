// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package optdb

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// queryFile is the YAML shape of a query config.
//
//	include: [basic, merge]
//	require: [stabilize]
//	exclude: [inplace]
//	subqueries:
//	  canonicalize:
//	    include: [basic]
type queryFile struct {
	Include    []string             `yaml:"include"`
	Require    []string             `yaml:"require,omitempty"`
	Exclude    []string             `yaml:"exclude,omitempty"`
	Subqueries map[string]queryFile `yaml:"subqueries,omitempty"`
}

// ParseQuery parses a YAML query config.
//
// The parsed query obeys the same rules as programmatic construction:
// an empty include set is ErrEmptyQuery, at the top level and in every
// subquery.
func ParseQuery(data []byte) (Query, error) {
	var qf queryFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return Query{}, fmt.Errorf("parsing query config: %w", err)
	}
	return qf.toQuery()
}

// LoadQuery reads and parses a YAML query config file.
func LoadQuery(path string) (Query, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Query{}, fmt.Errorf("reading query config: %w", err)
	}
	q, err := ParseQuery(data)
	if err != nil {
		return Query{}, fmt.Errorf("%s: %w", path, err)
	}
	return q, nil
}

func (qf queryFile) toQuery() (Query, error) {
	q, err := NewQuery(qf.Include...)
	if err != nil {
		return Query{}, err
	}
	q = q.Requiring(qf.Require...).Excluding(qf.Exclude...)
	for name, sf := range qf.Subqueries {
		sub, err := sf.toQuery()
		if err != nil {
			return Query{}, fmt.Errorf("subquery %q: %w", name, err)
		}
		q = q.WithSubquery(name, sub)
	}
	return q, nil
}
