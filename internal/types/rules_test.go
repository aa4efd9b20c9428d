package types

import (
	"encoding/json"
	"testing"
)

func TestConditions_JSONPreservesOrder(t *testing.T) {
	var logic RuleLogic
	raw := `{"inputs": {"zeta": ">1", "alpha": null, "count": 5, "flag": false}, "outputs": {"x": 1}}`
	if err := json.Unmarshal([]byte(raw), &logic); err != nil {
		t.Fatalf("Unmarshal() error = %v, want nil", err)
	}

	want := Conditions{
		{Field: "zeta", Expr: ">1"},
		{Field: "alpha", Expr: ""},
		{Field: "count", Expr: "5"},
		{Field: "flag", Expr: "False"},
	}
	if len(logic.Inputs) != len(want) {
		t.Fatalf("len(Inputs) = %d, want %d", len(logic.Inputs), len(want))
	}
	for i := range want {
		if logic.Inputs[i] != want[i] {
			t.Errorf("Inputs[%d] = %+v, want %+v", i, logic.Inputs[i], want[i])
		}
	}

	out, err := json.Marshal(logic.Inputs)
	if err != nil {
		t.Fatalf("Marshal() error = %v, want nil", err)
	}
	if got := string(out); got != `{"zeta":">1","alpha":"","count":"5","flag":"False"}` {
		t.Errorf("Marshal() = %s", got)
	}
}

func TestConditions_RejectsNonObject(t *testing.T) {
	var c Conditions
	if err := json.Unmarshal([]byte(`["a"]`), &c); err == nil {
		t.Errorf("Unmarshal(array) error = nil, want error")
	}
}

func TestConditions_EmptyMarshalsAsObject(t *testing.T) {
	out, err := json.Marshal(RuleLogic{})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if got := string(out); got != `{"inputs":{},"outputs":null}` {
		t.Errorf("Marshal() = %s", got)
	}
}

func TestTableSpec_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		spec    TableSpec
		wantErr string
	}{
		{name: "valid", spec: TableSpec{Slug: " loan-approval ", HitPolicy: "unique", InputSchema: map[string]string{"age": "Number"}}},
		{name: "blank slug", spec: TableSpec{Slug: "  "}, wantErr: "Table slug is required."},
		{name: "bad slug", spec: TableSpec{Slug: "has space"}, wantErr: "Table slug can use letters, numbers, underscore, and hyphen."},
		{name: "bad object type", spec: TableSpec{Slug: "ok", ObjectType: "PO/1"}, wantErr: "Object type can use letters, numbers, underscore, and hyphen."},
		{name: "bad hit policy", spec: TableSpec{Slug: "ok", HitPolicy: "ANY"}, wantErr: "Unsupported hit policy 'ANY'. Allowed: COLLECT_ALL, FIRST_HIT, UNIQUE."},
		{
			name:    "bad type",
			spec:    TableSpec{Slug: "ok", InputSchema: map[string]string{"age": "int"}},
			wantErr: "Unsupported schema type 'int' for field 'age'. Allowed types: boolean, decimal, number, string.",
		},
		{
			name:    "overlap",
			spec:    TableSpec{Slug: "ok", InputSchema: map[string]string{"a": "string", "b": "string"}, OutputSchema: map[string]string{"b": "string", "a": "number"}},
			wantErr: "Input and output field names must be distinct. Overlap: ['a', 'b']",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := tt.spec.Normalize()
			if tt.wantErr != "" {
				if err == nil || err.Error() != tt.wantErr {
					t.Errorf("Normalize() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize() error = %v, want nil", err)
			}
			if table.Slug != "loan-approval" {
				t.Errorf("Slug = %q, want loan-approval", table.Slug)
			}
			if table.HitPolicy != HitPolicyUnique {
				t.Errorf("HitPolicy = %q, want UNIQUE", table.HitPolicy)
			}
			if table.InputSchema["age"] != FieldTypeNumber {
				t.Errorf("InputSchema[age] = %q, want number", table.InputSchema["age"])
			}
		})
	}
}

func TestTableSpec_DescriptionLimit(t *testing.T) {
	long := make([]byte, MaxDescriptionLength+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err := TableSpec{Slug: "ok", Description: string(long)}.Normalize()
	if err == nil || err.Error() != "Description must be 240 characters or less." {
		t.Errorf("Normalize() error = %v, want description limit", err)
	}

	table, err := TableSpec{Slug: "ok", Description: "  " + string(long[:MaxDescriptionLength]) + "  "}.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error = %v, want nil", err)
	}
	if len(table.Description) != MaxDescriptionLength {
		t.Errorf("len(Description) = %d, want %d", len(table.Description), MaxDescriptionLength)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"x", "x"},
		{true, "True"},
		{false, "False"},
		{25000.0, "25000"},
		{2.5, "2.5"},
		{7, "7"},
		{nil, "None"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
