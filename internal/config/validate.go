// Package config provides configuration models and helpers for warehouse
// pipelines.
//
// This file adds a lightweight linter/validator for Pipeline values. It
// performs static checks over a decoded Pipeline and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"warehouse/internal/dag"
	"warehouse/internal/mapping"
	"warehouse/internal/records"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "warehouse.kind",
// "entities[1].base.rules[0]"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var (
	knownSourceKinds    = map[string]struct{}{"postgres": {}, "mysql": {}, "sqlite": {}, "mssql": {}}
	knownWarehouseKinds = map[string]struct{}{"postgres": {}, "sqlite": {}, "mssql": {}}
)

// ValidatePipeline performs static validation / linting of a Pipeline.
//
// It does not mutate the pipeline. Mapping tables are compiled, referenced
// fields are checked against the declared upstream field lists, and the
// entity dependency graph is checked for cycles.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	issues = append(issues, validateStore("source", p.Source, knownSourceKinds)...)
	issues = append(issues, validateStore("warehouse", p.Warehouse, knownWarehouseKinds)...)
	issues = append(issues, validateStaging(p.Staging)...)
	issues = append(issues, validateRuntime(p.Runtime)...)
	issues = append(issues, validateEntities(p.Entities)...)

	return issues
}

func validateStore(path string, s Store, known map[string]struct{}) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".kind",
			Message:  path + ".kind must not be empty",
		})
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".kind",
			Message:  fmt.Sprintf("unsupported %s kind %q", path, s.Kind),
		})
	}
	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".dsn",
			Message:  path + ".dsn must not be empty",
		})
	}
	return issues
}

func validateStaging(s Staging) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Dir) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "staging.dir",
			Message:  "staging.dir must not be empty",
		})
	}
	if s.Delimiter != "" && len([]rune(s.Delimiter)) != 1 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "staging.delimiter",
			Message:  fmt.Sprintf("delimiter must be a single character, got %q", s.Delimiter),
		})
	}
	if m := s.Mirror; m != nil {
		if strings.TrimSpace(m.Endpoint) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: "staging.mirror.endpoint", Message: "mirror endpoint must not be empty"})
		}
		if strings.TrimSpace(m.Bucket) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: "staging.mirror.bucket", Message: "mirror bucket must not be empty"})
		}
	}
	return issues
}

// validateRuntime validates RuntimeConfig for obvious misconfigurations.
func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue

	if r.BatchSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.batch_size",
			Message:  "batch_size must not be negative",
		})
	}
	return issues
}

func validateEntities(es []Entity) []Issue {
	var issues []Issue

	if len(es) == 0 {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "entities",
			Message:  "at least one entity is required",
		})
	}

	names := map[string]bool{}
	for i, e := range es {
		path := fmt.Sprintf("entities[%d]", i)
		if strings.TrimSpace(e.Name) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: path + ".name", Message: "entity name must not be empty"})
			continue
		}
		if names[e.Name] {
			issues = append(issues, Issue{Severity: SeverityError, Path: path + ".name", Message: fmt.Sprintf("duplicate entity %q", e.Name)})
			continue
		}
		names[e.Name] = true
		issues = append(issues, validateEntity(path, e)...)
	}

	for i, e := range es {
		for j, d := range e.Base.DependsOn {
			if !names[d] {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     fmt.Sprintf("entities[%d].base.depends_on[%d]", i, j),
					Message:  fmt.Sprintf("unknown entity %q", d),
				})
			}
		}
	}
	if !HasErrors(issues) {
		issues = append(issues, validateEntityGraph(es)...)
	}
	return issues
}

func validateEntity(path string, e Entity) []Issue {
	var issues []Issue

	if strings.TrimSpace(e.Source.Table) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: path + ".source.table", Message: "source table must not be empty"})
	}
	if len(e.Source.Fields) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".source.fields",
			Message:  "source fields must be listed explicitly",
		})
	}
	for j, f := range e.Source.Fields {
		if f == records.LineageColumn {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("%s.source.fields[%d]", path, j),
				Message:  records.LineageColumn + " is appended at staging and must not be extracted",
			})
		}
	}

	staged, stIssues := validateRules(path+".staging.rules", e.StagingRules(), e.Source.Fields)
	issues = append(issues, stIssues...)

	issues = append(issues, validateLayer(path+".raw", e.Raw.Schema, e.Raw.Table, e.Raw.Columns)...)
	rawFields := append(append([]string(nil), staged...), records.LineageColumn)
	if len(e.Raw.Columns) > 0 {
		declared := map[string]bool{}
		rawFields = nil
		for _, c := range e.Raw.Columns {
			declared[c.Name] = true
			rawFields = append(rawFields, c.Name)
		}
		if !declared[records.LineageColumn] {
			rawFields = append(rawFields, records.LineageColumn)
		}
		for _, f := range staged {
			if !declared[f] {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path + ".raw.columns",
					Message:  fmt.Sprintf("staged field %q has no raw column", f),
				})
			}
		}
	}

	issues = append(issues, validateLayer(path+".base", e.Base.Schema, e.Base.Table, e.Base.Columns)...)
	if m := e.Base.SnapshotMode(); m != SnapshotLatest && m != SnapshotAll {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".base.snapshot",
			Message:  fmt.Sprintf("unknown snapshot mode %q (want %q or %q)", e.Base.Snapshot, SnapshotLatest, SnapshotAll),
		})
	}
	if len(e.Base.Rules) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".base.rules",
			Message:  "base rules must be declared; every base column needs an explicit derivation",
		})
	} else {
		_, baseIssues := validateRules(path+".base.rules", e.Base.Rules, rawFields)
		issues = append(issues, baseIssues...)
	}
	return issues
}

func validateLayer(path, schema, table string, cols []Column) []Issue {
	var issues []Issue
	if strings.TrimSpace(schema) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: path + ".schema", Message: "schema must not be empty"})
	}
	if strings.TrimSpace(table) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: path + ".table", Message: "table must not be empty"})
	}
	seen := map[string]bool{}
	for i, c := range cols {
		cp := fmt.Sprintf("%s.columns[%d]", path, i)
		if strings.TrimSpace(c.Name) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: cp + ".name", Message: "column name must not be empty"})
			continue
		}
		if seen[c.Name] {
			issues = append(issues, Issue{Severity: SeverityError, Path: cp + ".name", Message: fmt.Sprintf("duplicate column %q", c.Name)})
		}
		seen[c.Name] = true
		if c.Type == "" {
			issues = append(issues, Issue{Severity: SeverityWarning, Path: cp + ".type", Message: "no type declared; defaulting to text"})
		} else if _, ok := mapping.CanonicalType(c.Type); !ok {
			issues = append(issues, Issue{Severity: SeverityError, Path: cp + ".type", Message: fmt.Sprintf("unknown type %q", c.Type)})
		}
	}
	return issues
}

// validateRules compiles rules and checks their sources against fields. It
// returns the compiled targets for downstream checks.
func validateRules(path string, rules []Rule, fields []string) ([]string, []Issue) {
	m, err := mapping.Compile(rules)
	if err != nil {
		return nil, []Issue{{Severity: SeverityError, Path: path, Message: err.Error()}}
	}
	if err := m.Check(fields); err != nil {
		var me *mapping.MappingError
		msg := err.Error()
		if errors.As(err, &me) {
			msg = fmt.Sprintf("rule %s references %q, which is not among %v", me.Rule, me.Field, fields)
		}
		return m.Targets(), []Issue{{Severity: SeverityError, Path: path, Message: msg}}
	}
	return m.Targets(), nil
}

// Rule is re-exported so callers building pipelines in code need only this
// package.
type Rule = mapping.Rule

// validateEntityGraph checks cross-entity base dependencies for cycles using
// the same ordering the runner uses.
func validateEntityGraph(es []Entity) []Issue {
	g := dag.New()
	noop := func(context.Context, []any) (any, error) { return dag.Empty, nil }
	for _, e := range es {
		_ = g.Add(e.Name, e.Base.DependsOn, noop)
	}
	if _, err := g.Order(); err != nil {
		return []Issue{{Severity: SeverityError, Path: "entities", Message: err.Error()}}
	}
	return nil
}
