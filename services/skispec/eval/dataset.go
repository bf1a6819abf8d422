// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package eval runs the golden regression dataset against a running SkiSpec
// server and reports pass/fail per case with unified diffs.
package eval

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed golden_dataset.yaml
var defaultDatasetYAML []byte

// Expectation names how a case's response is checked.
type Expectation string

const (
	// ExpectExact requires the normalized response to equal Answer.
	ExpectExact Expectation = "exact"

	// ExpectRefusal requires a scope or safety refusal.
	ExpectRefusal Expectation = "refusal"

	// ExpectStructured requires a recommendation or the structured-format notice.
	ExpectStructured Expectation = "structured"
)

// ErrInvalidDataset is returned when a dataset fails validation.
var ErrInvalidDataset = errors.New("invalid eval dataset")

// Case is one regression case.
type Case struct {
	ID       string      `yaml:"id" validate:"required"`
	Category string      `yaml:"category" validate:"required"`
	Message  string      `yaml:"message" validate:"required"`
	Expect   Expectation `yaml:"expect" validate:"required,oneof=exact refusal structured"`
	Answer   string      `yaml:"answer" validate:"required_if=Expect exact"`
}

// Dataset is an ordered list of cases.
type Dataset struct {
	Version int    `yaml:"version"`
	Cases   []Case `yaml:"cases" validate:"required,min=1,dive"`
}

var datasetValidator = validator.New(validator.WithRequiredStructEnabled())

// DefaultDataset returns the embedded golden dataset.
func DefaultDataset() (*Dataset, error) {
	return LoadDataset(defaultDatasetYAML)
}

// LoadDatasetFile reads and validates a dataset from path.
func LoadDatasetFile(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	return LoadDataset(data)
}

// LoadDataset parses and validates dataset YAML.
//
// Description:
//
//	Case ids must be unique. Exact cases must carry an answer.
//
// Outputs:
//
//	*Dataset - The parsed dataset.
//	error - Wraps ErrInvalidDataset on validation failure.
func LoadDataset(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrInvalidDataset, err)
	}

	if err := datasetValidator.Struct(ds); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return nil, fmt.Errorf("%w: %s", ErrInvalidDataset, strings.Join(msgs, "; "))
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataset, err)
	}

	seen := make(map[string]int, len(ds.Cases))
	for i, c := range ds.Cases {
		if j, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("%w: cases[%d]: duplicate id %q (first at cases[%d])", ErrInvalidDataset, i, c.ID, j)
		}
		seen[c.ID] = i
	}
	return &ds, nil
}

// Filter returns the cases whose id or category has one of the given
// prefixes. No prefixes returns every case.
func (d *Dataset) Filter(prefixes ...string) []Case {
	if len(prefixes) == 0 {
		return d.Cases
	}
	var out []Case
	for _, c := range d.Cases {
		for _, p := range prefixes {
			if strings.HasPrefix(c.ID, p) || strings.HasPrefix(c.Category, p) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
