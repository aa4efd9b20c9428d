// internal/rules/schema_test.go
package rules

import (
	"testing"

	"github.com/solatis/decider/internal/types"
)

func TestValidateRuleAgainstSchema(t *testing.T) {
	input := types.Schema{"age": types.FieldTypeNumber, "region": types.FieldTypeString, "vip": types.FieldTypeBoolean}
	output := types.Schema{"discount": types.FieldTypeDecimal}

	tests := []struct {
		name    string
		logic   string
		wantErr string
	}{
		{
			name:  "valid rule",
			logic: `{"inputs": {"age": "18..65", "region": "CP EU*", "vip": "True"}, "outputs": {"discount": 0.1}}`,
		},
		{
			name:    "missing required field",
			logic:   `{"inputs": {"age": "18..65", "region": "EU"}, "outputs": {}}`,
			wantErr: "Missing required input field 'vip'",
		},
		{
			name:    "ghost input column",
			logic:   `{"inputs": {"age": "1", "region": "EU", "vip": "True", "ghost": "x"}, "outputs": {}}`,
			wantErr: "Input field 'ghost' not defined in table schema",
		},
		{
			name:    "boolean with range",
			logic:   `{"inputs": {"age": "1", "region": "EU", "vip": "0..1"}, "outputs": {}}`,
			wantErr: "Field 'vip' is boolean and does not support range or comparison logic",
		},
		{
			name:    "boolean with comparison",
			logic:   `{"inputs": {"age": "1", "region": "EU", "vip": ">0"}, "outputs": {}}`,
			wantErr: "Field 'vip' is boolean and does not support range or comparison logic",
		},
		{
			name:    "boolean with CP",
			logic:   `{"inputs": {"age": "1", "region": "EU", "vip": "CP T*"}, "outputs": {}}`,
			wantErr: "Field 'vip' is boolean and does not support CP pattern logic",
		},
		{
			name:    "numeric with CP",
			logic:   `{"inputs": {"age": "CP 1*", "region": "EU", "vip": "True"}, "outputs": {}}`,
			wantErr: "Field 'age' is numeric and does not support CP pattern logic",
		},
		{
			name:    "string with comparison",
			logic:   `{"inputs": {"age": "1", "region": ">5", "vip": "True"}, "outputs": {}}`,
			wantErr: "Field 'region' is string and does not support numeric range/comparison operators",
		},
		{
			name:    "string with inverted range shape",
			logic:   `{"inputs": {"age": "1", "region": "9..1", "vip": "True"}, "outputs": {}}`,
			wantErr: "Field 'region' is string and does not support numeric range/comparison operators",
		},
		{
			name:    "ghost output column",
			logic:   `{"inputs": {"age": "1", "region": "EU", "vip": "True"}, "outputs": {"bonus": 1}}`,
			wantErr: "Output field 'bonus' not defined in table schema",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRuleAgainstSchema(mustLogic(t, tt.logic), input, output)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateRuleAgainstSchema() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateRuleAgainstSchema() error = nil, want %q", tt.wantErr)
			}
			if err.Error() != tt.wantErr {
				t.Errorf("ValidateRuleAgainstSchema() error = %q, want %q", err.Error(), tt.wantErr)
			}
			if !types.IsValidation(err) {
				t.Errorf("error type = %T, want *types.ValidationError", err)
			}
		})
	}
}

func TestValidateRule_UnschemedSkipsSchemaChecks(t *testing.T) {
	table := &types.DecisionTable{}
	logic := mustLogic(t, `{"inputs": {"anything": "CP x*"}, "outputs": {"whatever": 1}}`)

	if err := ValidateRule(table, logic); err != nil {
		t.Errorf("ValidateRule() error = %v, want nil for unschemed table", err)
	}

	bad := mustLogic(t, `{"inputs": {"ok": "1..2", "amount": "10..1"}}`)
	err := ValidateRule(table, bad)
	if err == nil {
		t.Fatalf("ValidateRule() error = nil, want syntax error")
	}
	if want := "Invalid syntax for field 'amount': '10..1'"; err.Error() != want {
		t.Errorf("ValidateRule() error = %q, want %q", err.Error(), want)
	}
}

func TestValidateRule_SchemaBeforeSyntax(t *testing.T) {
	table := &types.DecisionTable{InputSchema: types.Schema{"amount": types.FieldTypeNumber}}
	logic := mustLogic(t, `{"inputs": {"amount": "10..1", "ghost": "x"}}`)

	err := ValidateRule(table, logic)
	if err == nil || err.Error() != "Input field 'ghost' not defined in table schema" {
		t.Errorf("ValidateRule() error = %v, want ghost column error", err)
	}
}

func TestCheckSchemaEvolution(t *testing.T) {
	rules := []types.Rule{
		rule(t, "r-1", 1, `{"inputs": {"amount": ">10"}, "outputs": {"discount": 5}}`),
	}

	tests := []struct {
		name    string
		input   types.Schema
		output  types.Schema
		wantErr string
	}{
		{
			name:   "unreferenced field removed",
			input:  types.Schema{"amount": types.FieldTypeNumber},
			output: types.Schema{"discount": types.FieldTypeNumber},
		},
		{
			name:    "referenced input removed",
			input:   types.Schema{"region": types.FieldTypeString},
			output:  types.Schema{"discount": types.FieldTypeNumber},
			wantErr: "Cannot remove field 'amount' from schema: Rule 'r-1' depends on it.",
		},
		{
			name:    "referenced output removed",
			input:   types.Schema{"amount": types.FieldTypeNumber},
			output:  types.Schema{},
			wantErr: "Cannot remove output field 'discount' from schema: Rule 'r-1' depends on it.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSchemaEvolution(rules, tt.input, tt.output)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("CheckSchemaEvolution() error = %v, want nil", err)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("CheckSchemaEvolution() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestConsistencyCheck(t *testing.T) {
	table := &types.DecisionTable{
		InputSchema:  types.Schema{"amount": types.FieldTypeNumber},
		OutputSchema: types.Schema{"discount": types.FieldTypeNumber},
	}
	local := "row-b"
	drafts := []DraftRule{
		{Logic: mustLogic(t, `{"inputs": {"amount": ">10"}, "outputs": {"discount": 5}}`)},
		{LocalID: &local, Logic: mustLogic(t, `{"inputs": {"amount": "10..1"}, "outputs": {"bonus": 1}}`)},
	}

	report := ConsistencyCheck(table, drafts)

	if report.TotalRules != 2 {
		t.Errorf("TotalRules = %d, want 2", report.TotalRules)
	}
	if report.ErrorCount != 2 {
		t.Fatalf("ErrorCount = %d, want 2 (errors %+v)", report.ErrorCount, report.Errors)
	}

	schemaIssue := report.Errors[0]
	if schemaIssue.Row != 3 || schemaIssue.Field != nil || schemaIssue.LocalID == nil || *schemaIssue.LocalID != local {
		t.Errorf("Errors[0] = %+v, want row 3 schema issue for %s", schemaIssue, local)
	}
	if schemaIssue.Message != "Output field 'bonus' not defined in table schema" {
		t.Errorf("Errors[0].Message = %q", schemaIssue.Message)
	}

	syntaxIssue := report.Errors[1]
	if syntaxIssue.Row != 3 || syntaxIssue.Field == nil || *syntaxIssue.Field != "amount" {
		t.Errorf("Errors[1] = %+v, want row 3 syntax issue on amount", syntaxIssue)
	}
}
