// Package pipeline wires a pipeline configuration into a dependency graph.
//
// Every entity contributes three nodes:
//
//	<entity>_staging  source select -> staging mapping -> staging artifact
//	<entity>_raw      artifact -> raw table (append)
//	<entity>_base     raw table -> base table (full replace)
//
// An entity's base node additionally depends on the base nodes of the
// entities listed in its depends_on.
package pipeline

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"warehouse/internal/config"
	"warehouse/internal/dag"
	"warehouse/internal/loader"
	"warehouse/internal/mapping"
	"warehouse/internal/metrics"
	"warehouse/internal/records"
	"warehouse/internal/source"
	"warehouse/internal/staging"
	"warehouse/internal/storage"
	"warehouse/internal/transform"
)

// Node name suffixes.
const (
	LayerStaging = "staging"
	LayerRaw     = "raw"
	LayerBase    = "base"
)

// NodeName returns the graph node for entity at layer.
func NodeName(entity, layer string) string { return entity + "_" + layer }

// Extractor reads rows from the source store.
type Extractor interface {
	Select(ctx context.Context, table string, fields []string) (records.Set, error)
	Close() error
}

// openSource is a seam for tests.
var openSource = func(ctx context.Context, store config.Store) (Extractor, error) {
	r, err := source.Open(ctx, store)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Env is the per-run state shared by every node.
type Env struct {
	RunID     string
	Timestamp time.Time
	Writer    *staging.Writer
	Warehouse storage.Config
}

// Build declares the graph for p. Mapping tables are compiled up front, so a
// bad rule fails here rather than mid-run. Cycles are reported by the graph
// when it is ordered or run.
func Build(p config.Pipeline, env Env) (*dag.Graph, error) {
	if env.Writer == nil {
		return nil, fmt.Errorf("pipeline: staging writer is required")
	}
	g := dag.New()
	for _, e := range p.Entities {
		if err := addEntity(g, p, env, e); err != nil {
			return nil, err
		}
	}
	for _, e := range p.Entities {
		for _, d := range e.Base.DependsOn {
			if _, ok := p.Entity(d); !ok {
				return nil, fmt.Errorf("pipeline: entity %q depends on unknown entity %q", e.Name, d)
			}
		}
	}
	return g, nil
}

func addEntity(g *dag.Graph, p config.Pipeline, env Env, e config.Entity) error {
	stageMap, err := mapping.Compile(e.StagingRules())
	if err != nil {
		return fmt.Errorf("pipeline: entity %s staging rules: %w", e.Name, err)
	}
	baseMap, err := mapping.Compile(baseRules(e, stageMap))
	if err != nil {
		return fmt.Errorf("pipeline: entity %s base rules: %w", e.Name, err)
	}

	rawDef := e.Raw.TableDef()
	baseDef := e.Base.Layer.TableDef()
	wh := env.Warehouse.WithBatchSize(p.Runtime.BatchSize)
	comma := delimiter(p.Staging.Delimiter)

	stagingNode := NodeName(e.Name, LayerStaging)
	rawNode := NodeName(e.Name, LayerRaw)
	baseNode := NodeName(e.Name, LayerBase)

	err = g.Add(stagingNode, nil, func(ctx context.Context, _ []any) (any, error) {
		src, err := openSource(ctx, p.Source)
		if err != nil {
			return nil, err
		}
		defer src.Close()

		set, err := src.Select(ctx, e.Source.Table, e.Source.Fields)
		if err != nil {
			return nil, err
		}
		mapped, err := stageMap.Apply(set)
		if err != nil {
			return nil, err
		}
		art, err := env.Writer.Write(ctx, e.Name, e.StagingFile(), mapped, env.Timestamp)
		if err != nil {
			return nil, err
		}
		metrics.RecordRows(p.Job, e.Name, LayerStaging, int64(art.Rows))
		return art, nil
	})
	if err != nil {
		return err
	}

	err = g.Add(rawNode, []string{stagingNode}, func(ctx context.Context, in []any) (any, error) {
		art, ok := in[0].(staging.Artifact)
		if !ok {
			return nil, fmt.Errorf("expected staging artifact from %s, got %T", stagingNode, in[0])
		}
		res, err := loader.Load(ctx, wh, art, loader.Target{
			Schema:  rawDef.Schema,
			Table:   rawDef.Name,
			Columns: rawDef.Columns,
			Comma:   comma,
		})
		if err != nil {
			return nil, err
		}
		metrics.RecordRows(p.Job, e.Name, LayerRaw, res.Inserted)
		return dag.Empty, nil
	})
	if err != nil {
		return err
	}

	deps := []string{rawNode}
	for _, d := range e.Base.DependsOn {
		deps = append(deps, NodeName(d, LayerBase))
	}
	return g.Add(baseNode, deps, func(ctx context.Context, _ []any) (any, error) {
		res, err := transform.Materialize(ctx, wh, transform.Stage{
			Schema:   baseDef.Schema,
			Table:    baseDef.Name,
			From:     transform.Ref{Schema: rawDef.Schema, Table: rawDef.Name},
			Mapping:  baseMap,
			Columns:  baseDef.Columns,
			Upstream: rawDef.Columns,
			Latest:   e.Base.SnapshotMode() == config.SnapshotLatest,
		})
		if err != nil {
			return nil, err
		}
		metrics.RecordRows(p.Job, e.Name, LayerBase, res.Rows)
		return dag.Empty, nil
	})
}

// baseRules returns the configured base rules, or identity over the raw
// columns (the staging targets when raw declares none).
func baseRules(e config.Entity, stageMap *mapping.Mapper) []mapping.Rule {
	if len(e.Base.Rules) > 0 {
		return e.Base.Rules
	}
	fields := stageMap.Targets()
	if len(e.Raw.Columns) > 0 {
		fields = e.Raw.TableDef().ColumnNames()
	}
	out := make([]mapping.Rule, 0, len(fields))
	for _, f := range fields {
		out = append(out, mapping.Rule{Kind: mapping.Identity, Source: f})
	}
	return out
}

func delimiter(s string) rune {
	if s == "" {
		return ','
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r
}
