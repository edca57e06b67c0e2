package mapping

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warehouse/internal/records"
)

func customersSource() records.Set {
	return records.Set{
		Fields: []string{"id", "email", "full_name", "gender"},
		Rows: []records.Record{
			{"id": int64(1), "email": "a@x.com", "full_name": "Ada Lovelace", "gender": "F"},
		},
	}
}

func TestCustomersStagingDropsUnmappedFields(t *testing.T) {
	m, err := Compile([]Rule{
		{Kind: Identity, Source: "id"},
		{Kind: Identity, Source: "full_name"},
		{Kind: Identity, Source: "gender"},
	})
	require.NoError(t, err)

	out, err := m.Apply(customersSource())
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "full_name", "gender"}, out.Fields)
	assert.Equal(t, records.Record{"id": int64(1), "full_name": "Ada Lovelace", "gender": "F"}, out.Rows[0])
	assert.Equal(t, []string{"id", "full_name", "gender"}, m.Sources())
}

func TestCustomersBaseSplitCarriesLineage(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	in := records.Set{
		Fields: []string{"id", "full_name", "gender", records.LineageColumn},
		Rows: []records.Record{
			{"id": int64(1), "full_name": "Ada Lovelace", "gender": "F", records.LineageColumn: ts},
		},
	}
	m, err := Compile([]Rule{
		{Kind: Identity, Source: "id"},
		{Kind: Split, Source: "full_name", Targets: []string{"first_name", "last_name"}},
		{Kind: Identity, Source: "gender"},
	})
	require.NoError(t, err)

	out, err := m.Apply(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "first_name", "last_name", "gender", records.LineageColumn}, out.Fields)
	assert.Equal(t, records.Record{
		"id": int64(1), "first_name": "Ada", "last_name": "Lovelace", "gender": "F",
		records.LineageColumn: ts,
	}, out.Rows[0])
}

func TestSplitRule(t *testing.T) {
	tests := []struct {
		in          any
		first, rest any
	}{
		{"Ada Lovelace", "Ada", "Lovelace"},
		{"  Jean   Claude  Van Damme ", "Jean", "Claude Van Damme"},
		{"Cher", "Cher", ""},
		{"", nil, nil},
		{nil, nil, nil},
		{"Aná Lopez", "Aná", "Lopez"},
	}
	for _, tt := range tests {
		first, rest, err := splitName(tt.in)
		require.NoError(t, err)
		if s, ok := tt.first.(string); ok {
			tt.first = CollapseSpace(s)
		}
		assert.Equal(t, tt.first, first, "input %q", tt.in)
		assert.Equal(t, tt.rest, rest, "input %q", tt.in)
	}

	_, _, err := splitName(42)
	assert.Error(t, err)
}

// TestSplitReconstructs checks that first + " " + rest equals the
// whitespace-collapsed input for generated names containing a space.
func TestSplitReconstructs(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	letters := []rune("abcXYZéß")
	spaces := []string{" ", "  ", "\t", " \n "}
	word := func() string {
		n := 1 + rng.Intn(6)
		var b strings.Builder
		for i := 0; i < n; i++ {
			b.WriteRune(letters[rng.Intn(len(letters))])
		}
		return b.String()
	}

	for i := 0; i < 200; i++ {
		parts := 2 + rng.Intn(3)
		var b strings.Builder
		for p := 0; p < parts; p++ {
			if p > 0 {
				b.WriteString(spaces[rng.Intn(len(spaces))])
			}
			b.WriteString(word())
		}
		name := b.String()

		first, rest, err := splitName(name)
		require.NoError(t, err)
		normalized := CollapseSpace(name)

		assert.Equal(t, normalized[:strings.Index(normalized, " ")], first)
		assert.Equal(t, normalized, first.(string)+" "+rest.(string))
	}
}

func TestRenameRoundTrip(t *testing.T) {
	in := records.Set{
		Fields: []string{"Goal Type", "User ID", "ID"},
		Rows: []records.Record{
			{"Goal Type": "retirement", "User ID": "u1", "ID": "g1"},
			{"Goal Type": nil, "User ID": "u2", "ID": "g2"},
		},
	}
	m, err := Compile([]Rule{
		{Kind: Rename, Source: "Goal Type", Target: "goal_type"},
		{Kind: Rename, Source: "User ID", Target: "user_id"},
		{Kind: Identity, Source: "ID"},
	})
	require.NoError(t, err)

	out, err := m.Apply(in)
	require.NoError(t, err)

	inv, err := m.Inverse()
	require.NoError(t, err)
	back, err := inv.Apply(out)
	require.NoError(t, err)

	assert.ElementsMatch(t, in.Fields, back.Fields)
	assert.Equal(t, in.Rows, back.Rows)
}

func TestRenameDefaultsToNormalizedTarget(t *testing.T) {
	m, err := Compile([]Rule{
		{Kind: Rename, Source: "Goal Type"},
		{Kind: Identity, Source: "ID"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"goal_type", "ID"}, m.Targets())

	out, err := m.Apply(records.Set{
		Fields: []string{"Goal Type", "ID"},
		Rows:   []records.Record{{"Goal Type": "retirement", "ID": "g1"}},
	})
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, "retirement", out.Rows[0]["goal_type"])

	inv, err := m.Inverse()
	require.NoError(t, err)
	back, err := inv.Apply(out)
	require.NoError(t, err)
	assert.Equal(t, "retirement", back.Rows[0]["Goal Type"])

	_, err = Compile([]Rule{{Kind: Rename}})
	assert.ErrorContains(t, err, "rename requires source and target")
}

func TestInverseRejectsLossyRules(t *testing.T) {
	m := MustCompile([]Rule{{Kind: Split, Source: "n", Targets: []string{"a", "b"}}})
	_, err := m.Inverse()
	assert.ErrorContains(t, err, "not invertible")
}

func TestExpressionRules(t *testing.T) {
	in := records.Set{
		Fields: []string{"portfolioid", "officialnav", "Goal Type", "region"},
		Rows: []records.Record{
			{"portfolioid": "p1", "officialnav": 1200.5, "Goal Type": "growth", "region": "eu"},
			{"portfolioid": "p2", "officialnav": "999", "Goal Type": "income", "region": nil},
			{"portfolioid": "p3", "officialnav": nil, "Goal Type": "income", "region": "us"},
		},
	}
	m, err := Compile([]Rule{
		{Kind: Rename, Source: "portfolioid", Target: "portfolio_id"},
		{Kind: Expr, Target: "above_1000", Expr: "officialnav > 1000"},
		{Kind: Expr, Target: "goal_type", Expr: `upper(row["Goal Type"])`},
		{Kind: Expr, Target: "region", Expr: `coalesce(region, "unknown")`},
		{Kind: Expr, Target: "nav_int", Expr: "floor(officialnav)", Type: "int"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"portfolioid", "officialnav", "Goal Type", "region"}, m.Sources())

	out, err := m.Apply(in)
	require.NoError(t, err)

	assert.Equal(t, true, out.Rows[0]["above_1000"])
	assert.Equal(t, false, out.Rows[1]["above_1000"])
	assert.Nil(t, out.Rows[2]["above_1000"])
	assert.Equal(t, "GROWTH", out.Rows[0]["goal_type"])
	assert.Equal(t, "eu", out.Rows[0]["region"])
	assert.Equal(t, int64(1200), out.Rows[0]["nav_int"])
	assert.Equal(t, int64(999), out.Rows[1]["nav_int"])
}

func TestExpressionDeterministic(t *testing.T) {
	m := MustCompile([]Rule{{Kind: Expr, Target: "x", Expr: `format("%s-%d", a, b)`}})
	in := records.Set{Fields: []string{"a", "b"}, Rows: []records.Record{{"a": "k", "b": int64(3)}}}

	first, err := m.Apply(in)
	require.NoError(t, err)
	second, err := m.Apply(in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "k-3", first.Rows[0]["x"])
}

func TestApplyMissingSourceField(t *testing.T) {
	m := MustCompile([]Rule{
		{Kind: Identity, Source: "id"},
		{Kind: Expr, Target: "flag", Expr: "nav > 1"},
	})
	_, err := m.Apply(records.Set{Fields: []string{"id"}, Rows: []records.Record{{"id": 1}}})

	var me *MappingError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "nav", me.Field)
}

func TestApplyCastError(t *testing.T) {
	m := MustCompile([]Rule{{Kind: CastKind, Source: "nav", Type: "float"}})
	_, err := m.Apply(records.Set{
		Fields: []string{"nav"},
		Rows:   []records.Record{{"nav": "1.5"}, {"nav": "n/a"}},
	})

	var ce *CastError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "nav", ce.Field)
	assert.Equal(t, 1, ce.Row)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name  string
		rules []Rule
		want  string
	}{
		{"unknown kind", []Rule{{Kind: "merge", Source: "a"}}, "unknown kind"},
		{"duplicate target", []Rule{
			{Kind: Identity, Source: "a"},
			{Kind: Rename, Source: "b", Target: "a"},
		}, "produced by both"},
		{"split arity", []Rule{{Kind: Split, Source: "n", Targets: []string{"a"}}}, "exactly two targets"},
		{"bad cast type", []Rule{{Kind: CastKind, Source: "n", Type: "uuid"}}, "unknown cast type"},
		{"expr syntax", []Rule{{Kind: Expr, Target: "x", Expr: "a >"}}, "parse expression"},
		{"expr unknown function", []Rule{{Kind: Expr, Target: "x", Expr: "shout(a)"}}, "unknown function"},
		{"bare row", []Rule{{Kind: Expr, Target: "x", Expr: "row"}}, "literal field name"},
		{"lineage recomputed", []Rule{{Kind: Expr, Target: records.LineageColumn, Expr: `"now"`}}, "only be carried by identity"},
		{"identity with different target", []Rule{{Kind: Identity, Source: "a", Target: "b"}}, "use rename"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.rules)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestOrigin(t *testing.T) {
	m, err := Compile([]Rule{
		{Kind: Identity, Source: "id"},
		{Kind: Rename, Source: "Region", Target: "region"},
		{Kind: Split, Source: "full_name", Targets: []string{"first_name", "last_name"}},
		{Kind: CastKind, Source: "officialnav", Type: "double"},
		{Kind: Expr, Target: "above_1000", Type: "bool", Expr: "officialnav > 1000"},
	})
	require.NoError(t, err)

	o, ok := m.Origin("region")
	require.True(t, ok)
	assert.Equal(t, Origin{Source: "Region", Passthrough: true}, o)

	o, _ = m.Origin("last_name")
	assert.Equal(t, Origin{Source: "full_name", Type: TypeText}, o)

	o, _ = m.Origin("officialnav")
	assert.Equal(t, Origin{Source: "officialnav", Type: TypeFloat}, o)

	o, _ = m.Origin("above_1000")
	assert.Equal(t, Origin{Type: TypeBool}, o)

	_, ok = m.Origin("missing")
	assert.False(t, ok)
}
