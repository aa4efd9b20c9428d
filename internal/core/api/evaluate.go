package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/solatis/decider/internal/rules"
	"github.com/solatis/decider/internal/types"
)

func (s *service) registerEvaluation(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "evaluate",
		Method:      http.MethodPost,
		Path:        "/evaluate",
		Summary:     "Evaluate a stored decision table",
	}, func(ctx context.Context, input *struct {
		RawBody []byte
	}) (*output[rules.Decision], error) {
		var req EvaluateRequest
		if err := decodeBody(input.RawBody, &req); err != nil {
			return nil, s.handleError(err)
		}
		decision, err := s.evaluate(ctx, req)
		if err != nil {
			return nil, err
		}
		return respond(decision), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "simulate",
		Method:      http.MethodPost,
		Path:        "/simulate",
		Summary:     "Evaluate an unsaved table definition",
	}, func(ctx context.Context, input *struct {
		RawBody []byte
	}) (*output[rules.Decision], error) {
		var req SimulateRequest
		if err := decodeBody(input.RawBody, &req); err != nil {
			return nil, s.handleError(err)
		}
		policy, ruleSet, err := SimulationRules(req.TableDefinition)
		if err != nil {
			return nil, s.handleError(err)
		}
		evalCtx := req.Context
		if evalCtx == nil {
			evalCtx = types.Context{}
		}
		return respond(s.engine.Evaluate(policy, ruleSet, evalCtx, req.Detailed)), nil
	})
}

// evaluate loads the table by slug, hydrates the context when an object id
// is given and runs the engine.
func (s *service) evaluate(ctx context.Context, req EvaluateRequest) (rules.Decision, error) {
	if strings.TrimSpace(req.TableSlug) == "" {
		return rules.Decision{}, newAPIError(http.StatusBadRequest, "table_slug is required.")
	}
	table, err := s.store.GetTableBySlug(ctx, req.TableSlug)
	if errors.Is(err, types.ErrNotFound) {
		return rules.Decision{}, newAPIError(http.StatusNotFound,
			fmt.Sprintf("Decision table with slug '%s' not found", req.TableSlug))
	}
	if err != nil {
		return rules.Decision{}, s.handleError(err)
	}

	evalCtx := req.Context
	if evalCtx == nil {
		evalCtx = types.Context{}
	}
	if req.ObjectID != nil && *req.ObjectID != "" {
		objectType, ok := nonBlank(req.ObjectType)
		if !ok {
			objectType = strings.ToUpper(req.TableSlug)
		}
		evalCtx, err = s.resolver.HydrateContext(ctx, objectType, *req.ObjectID, table.InputSchema.Keys(), evalCtx)
		if err != nil {
			return rules.Decision{}, s.handleErrorAs(err, http.StatusBadRequest, http.StatusNotFound)
		}
	}

	ruleSet, err := s.store.ListRules(ctx, table.ID)
	if err != nil {
		return rules.Decision{}, s.handleError(err)
	}
	return s.engine.Evaluate(table.HitPolicy, ruleSet, evalCtx, req.Detailed), nil
}

// SimulationRules validates an unsaved definition and converts its rules
// to the engine's shape. Rules pass the same gate as persisted rules, so a
// definition without schemas only gets syntax checks.
func SimulationRules(def TableDefinition) (types.HitPolicy, []types.Rule, error) {
	policy, err := types.ParseHitPolicy(def.HitPolicy)
	if err != nil {
		return "", nil, err
	}
	in, err := types.NormalizeSchema(def.InputSchema)
	if err != nil {
		return "", nil, err
	}
	out, err := types.NormalizeSchema(def.OutputSchema)
	if err != nil {
		return "", nil, err
	}

	table := &types.DecisionTable{Slug: def.Slug, HitPolicy: policy, InputSchema: in, OutputSchema: out}
	ruleSet := make([]types.Rule, 0, len(def.Rules))
	for _, r := range def.Rules {
		var logic types.RuleLogic
		if r.Logic != nil {
			logic = *r.Logic
		}
		if err := rules.ValidateRule(table, logic); err != nil {
			return "", nil, err
		}
		id := r.ID
		if id == "" {
			id = fmt.Sprintf("sim-%d", r.Priority)
		}
		ruleSet = append(ruleSet, types.Rule{ID: types.RuleID(id), Priority: r.Priority, Logic: logic})
	}
	return policy, ruleSet, nil
}
