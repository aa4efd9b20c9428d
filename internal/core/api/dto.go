package api

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/solatis/decider/internal/core/store"
	"github.com/solatis/decider/internal/rules"
	"github.com/solatis/decider/internal/types"
)

// Request payloads

// RuleRequest is one rule in create, replace, save and consistency-check
// requests.
type RuleRequest struct {
	LocalID  *string          `json:"local_id,omitempty"`
	Priority int              `json:"priority"`
	Logic    *types.RuleLogic `json:"logic"`
}

type SaveTableRequest struct {
	TableID *string         `json:"table_id,omitempty"`
	Table   types.TableSpec `json:"table"`
	Rules   []RuleRequest   `json:"rules"`
}

type ConsistencyCheckRequest struct {
	Table types.TableSpec `json:"table"`
	Rules []RuleRequest   `json:"rules"`
}

type EvaluateRequest struct {
	TableSlug  string        `json:"table_slug"`
	Context    types.Context `json:"context"`
	Detailed   bool          `json:"detailed,omitempty"`
	ObjectID   *string       `json:"object_id,omitempty"`
	ObjectType *string       `json:"object_type,omitempty"`
}

// SimulationRule is a rule of an unsaved table definition. A blank ID is
// replaced by "sim-<priority>".
type SimulationRule struct {
	ID       string           `json:"id,omitempty"`
	Priority int              `json:"priority"`
	Logic    *types.RuleLogic `json:"logic"`
}

type TableDefinition struct {
	Slug         string            `json:"slug"`
	HitPolicy    string            `json:"hit_policy,omitempty"`
	InputSchema  map[string]string `json:"input_schema,omitempty"`
	OutputSchema map[string]string `json:"output_schema,omitempty"`
	Rules        []SimulationRule  `json:"rules"`
}

type SimulateRequest struct {
	Context         types.Context   `json:"context"`
	TableDefinition TableDefinition `json:"table_definition"`
	Detailed        bool            `json:"detailed,omitempty"`
}

// Response payloads

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

type SchemaResponse struct {
	InputSchema  types.Schema `json:"input_schema"`
	OutputSchema types.Schema `json:"output_schema"`
}

type SavedRuleResponse struct {
	ID       types.RuleID    `json:"id"`
	TableID  types.TableID   `json:"table_id"`
	LocalID  *string         `json:"local_id"`
	Priority int             `json:"priority"`
	Logic    types.RuleLogic `json:"logic"`
}

type SaveTableResponse struct {
	Table types.DecisionTable `json:"table"`
	Rules []SavedRuleResponse `json:"rules"`
}

type AttributeMetadata struct {
	TargetObject       string         `json:"target_object"`
	AttributeName      string         `json:"attribute_name"`
	ResolutionStrategy string         `json:"resolution_strategy"`
	PathLogic          map[string]any `json:"path_logic"`
}

// ProxyAttribute is one normalized row of the upstream metadata catalogue.
type ProxyAttribute struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Label string `json:"label"`
}

type ProxyResponse struct {
	Attributes []ProxyAttribute `json:"attributes"`
}

// decodeBody unmarshals a JSON request body into dest. Unknown fields are
// ignored.
func decodeBody(raw []byte, dest any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return types.NewValidationError("Request body is required.")
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return types.NewValidationError("Invalid request body: %v", err)
	}
	return nil
}

func (r RuleRequest) logic() (types.RuleLogic, error) {
	if r.Logic == nil {
		return types.RuleLogic{}, types.NewValidationError("Rule logic is required.")
	}
	return *r.Logic, nil
}

func ruleInputs(in []RuleRequest) ([]store.RuleInput, error) {
	out := make([]store.RuleInput, 0, len(in))
	for _, r := range in {
		logic, err := r.logic()
		if err != nil {
			return nil, err
		}
		out = append(out, store.RuleInput{LocalID: r.LocalID, Priority: r.Priority, Logic: logic})
	}
	return out, nil
}

func draftRules(in []RuleRequest) []rules.DraftRule {
	out := make([]rules.DraftRule, 0, len(in))
	for _, r := range in {
		var logic types.RuleLogic
		if r.Logic != nil {
			logic = *r.Logic
		}
		out = append(out, rules.DraftRule{LocalID: r.LocalID, Priority: r.Priority, Logic: logic})
	}
	return out
}

func savedRules(in []store.SavedRule) []SavedRuleResponse {
	out := make([]SavedRuleResponse, 0, len(in))
	for _, r := range in {
		out = append(out, SavedRuleResponse{
			ID:       r.ID,
			TableID:  r.TableID,
			LocalID:  r.LocalID,
			Priority: r.Priority,
			Logic:    r.Logic,
		})
	}
	return out
}

func attributeMetadata(entries []types.AttributeEntry) []AttributeMetadata {
	out := make([]AttributeMetadata, 0, len(entries))
	for _, e := range entries {
		logic := e.PathLogic
		if logic == nil {
			logic = map[string]any{}
		}
		out = append(out, AttributeMetadata{
			TargetObject:       e.TargetObject,
			AttributeName:      e.AttributeName,
			ResolutionStrategy: string(e.Strategy),
			PathLogic:          logic,
		})
	}
	return out
}

func nonBlank(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	v := strings.TrimSpace(*s)
	return v, v != ""
}
