// Package config defines the canonical configuration model for a warehouse
// pipeline: which source store to extract from, which warehouse to load, where
// staging artifacts live, and, per entity, the field lists, layer targets and
// mapping rules for each of the staging -> raw -> base hops.
//
// Pipelines are loaded from JSON or YAML files under configs/pipelines/.
//
// Example (trimmed):
//
//	{
//	  "job": "assignment",
//	  "source":    { "kind": "postgres", "dsn": "postgres://..." },
//	  "warehouse": { "kind": "postgres", "dsn": "postgres://..." },
//	  "staging":   { "dir": "./staging_area" },
//	  "entities": [{
//	    "name": "customers",
//	    "source":  { "table": "public.customers", "fields": ["id","email","full_name","gender"] },
//	    "staging": { "rules": [{ "kind": "identity", "source": "id" }, ...] },
//	    "raw":     { "schema": "raw", "table": "customers", "columns": [{ "name": "id", "type": "int" }, ...] },
//	    "base":    { "schema": "base", "table": "customers", "rules": [...] }
//	  }]
//	}
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"warehouse/internal/ddl"
	"warehouse/internal/mapping"
)

// Pipeline is the top-level object decoded from a pipeline file.
type Pipeline struct {
	// Job names the pipeline for logs and metrics.
	Job string `json:"job" yaml:"job"`

	// Source is the read-only operational store rows are extracted from.
	Source Store `json:"source" yaml:"source"`

	// Warehouse is the read-write analytical store holding raw and base layers.
	Warehouse Store `json:"warehouse" yaml:"warehouse"`

	Staging  Staging       `json:"staging" yaml:"staging"`
	Runtime  RuntimeConfig `json:"runtime" yaml:"runtime"`
	Entities []Entity      `json:"entities" yaml:"entities"`
}

// Store identifies a relational store.
type Store struct {
	// Kind selects the driver: postgres, mysql, sqlite, mssql.
	Kind string `json:"kind" yaml:"kind"`
	DSN  string `json:"dsn" yaml:"dsn"`

	// Options carries driver-specific knobs such as connect_timeout_seconds.
	Options Options `json:"options" yaml:"options"`
}

// Staging configures the directory-addressable artifact store.
type Staging struct {
	Dir string `json:"dir" yaml:"dir"`

	// Delimiter is the single-character field separator. Defaults to ",".
	Delimiter string `json:"delimiter" yaml:"delimiter"`

	// Mirror optionally copies finished artifacts to an S3-compatible bucket.
	Mirror *Mirror `json:"mirror,omitempty" yaml:"mirror,omitempty"`
}

// Mirror holds S3/MinIO settings for the artifact mirror.
type Mirror struct {
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	Bucket          string `json:"bucket" yaml:"bucket"`
	Prefix          string `json:"prefix" yaml:"prefix"`
	Region          string `json:"region" yaml:"region"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
	UseSSL          bool   `json:"use_ssl" yaml:"use_ssl"`
}

// RuntimeConfig controls batching and scheduling.
type RuntimeConfig struct {
	// BatchSize bounds the rows per bulk-load call.
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// Schedule is an optional cron expression for repeated runs.
	Schedule string `json:"schedule" yaml:"schedule"`
}

// Entity declares one logical dataset and its three layers.
type Entity struct {
	Name    string        `json:"name" yaml:"name"`
	Source  EntitySource  `json:"source" yaml:"source"`
	Staging EntityStaging `json:"staging" yaml:"staging"`
	Raw     Layer         `json:"raw" yaml:"raw"`
	Base    BaseLayer     `json:"base" yaml:"base"`
}

// EntitySource is the explicit extraction field list.
type EntitySource struct {
	Table  string   `json:"table" yaml:"table"`
	Fields []string `json:"fields" yaml:"fields"`
}

// EntityStaging maps extracted fields to artifact fields. Empty Rules means
// identity over every source field.
type EntityStaging struct {
	// File overrides the artifact name; defaults to "<entity>.csv".
	File  string         `json:"file" yaml:"file"`
	Rules []mapping.Rule `json:"rules" yaml:"rules"`
}

// Layer is a warehouse table declaration.
type Layer struct {
	Schema  string   `json:"schema" yaml:"schema"`
	Table   string   `json:"table" yaml:"table"`
	Columns []Column `json:"columns" yaml:"columns"`
}

// BaseLayer is the curated table computed from the raw layer.
type BaseLayer struct {
	Layer `yaml:",inline"`

	// Rules derive base columns from raw columns.
	Rules []mapping.Rule `json:"rules" yaml:"rules"`

	// DependsOn lists other entities whose base tables must be materialized
	// before this one.
	DependsOn []string `json:"depends_on" yaml:"depends_on"`

	// Snapshot selects which raw rows feed the base table: "latest" (the
	// default) keeps only the rows of the newest etl_timestamp, "all" reads
	// the whole append history.
	Snapshot string `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`
}

// Snapshot modes for BaseLayer.Snapshot.
const (
	SnapshotLatest = "latest"
	SnapshotAll    = "all"
)

// SnapshotMode returns the effective snapshot mode.
func (b BaseLayer) SnapshotMode() string {
	if strings.TrimSpace(b.Snapshot) == "" {
		return SnapshotLatest
	}
	return strings.ToLower(strings.TrimSpace(b.Snapshot))
}

// Column is a typed column declaration. Type is a logical type (int, float,
// bool, text, date, timestamp).
type Column struct {
	Name       string `json:"name" yaml:"name"`
	Type       string `json:"type" yaml:"type"`
	NotNull    bool   `json:"not_null" yaml:"not_null"`
	PrimaryKey bool   `json:"primary_key" yaml:"primary_key"`
}

// Entity returns the entity named name.
func (p Pipeline) Entity(name string) (Entity, bool) {
	for _, e := range p.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return Entity{}, false
}

// StagingRules returns the configured staging rules, or identity rules over
// the declared source fields when none are configured.
func (e Entity) StagingRules() []mapping.Rule {
	if len(e.Staging.Rules) > 0 {
		return e.Staging.Rules
	}
	out := make([]mapping.Rule, 0, len(e.Source.Fields))
	for _, f := range e.Source.Fields {
		out = append(out, mapping.Rule{Kind: mapping.Identity, Source: f})
	}
	return out
}

// StagingFile returns the artifact file name for the entity.
func (e Entity) StagingFile() string {
	if strings.TrimSpace(e.Staging.File) != "" {
		return e.Staging.File
	}
	return e.Name + ".csv"
}

// TableDef converts the layer declaration into a table definition. Column
// types are canonicalised; an empty type means text. SQL types are left for
// the dialect to fill.
func (l Layer) TableDef() ddl.TableDef {
	def := ddl.TableDef{Schema: l.Schema, Name: l.Table}
	for _, c := range l.Columns {
		typ, ok := mapping.CanonicalType(c.Type)
		if !ok {
			typ = mapping.TypeText
		}
		def.Columns = append(def.Columns, ddl.ColumnDef{
			Name:       c.Name,
			Type:       typ,
			Nullable:   !c.NotNull && !c.PrimaryKey,
			PrimaryKey: c.PrimaryKey,
		})
	}
	return def
}

// Load reads a pipeline file, choosing the decoder by extension: .json, or
// .yaml/.yml.
func Load(path string) (Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("read config: %w", err)
	}
	return Decode(filepath.Ext(path), data)
}

// Decode parses data in the format implied by ext.
func Decode(ext string, data []byte) (Pipeline, error) {
	var p Pipeline
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &p); err != nil {
			return Pipeline{}, fmt.Errorf("decode JSON config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &p); err != nil {
			return Pipeline{}, fmt.Errorf("decode YAML config: %w", err)
		}
	default:
		return Pipeline{}, fmt.Errorf("unsupported config format %q", ext)
	}
	if p.Source.Options == nil {
		p.Source.Options = Options{}
	}
	if p.Warehouse.Options == nil {
		p.Warehouse.Options = Options{}
	}
	return p, nil
}
