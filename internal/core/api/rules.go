package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/solatis/decider/internal/rules"
	"github.com/solatis/decider/internal/types"
)

func (s *service) registerRules(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-rules",
		Method:      http.MethodGet,
		Path:        "/tables/{table_id}/rules",
		Summary:     "List rules ordered by priority",
	}, func(ctx context.Context, input *tablePath) (*output[[]types.Rule], error) {
		id, err := parseTableID(input.TableID)
		if err != nil {
			return nil, err
		}
		list, err := s.store.ListRules(ctx, id)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(list), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-rule",
		Method:        http.MethodPost,
		Path:          "/tables/{table_id}/rules",
		Summary:       "Add one rule",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *tableBody) (*output[types.Rule], error) {
		id, err := parseTableID(input.TableID)
		if err != nil {
			return nil, err
		}
		var req RuleRequest
		if err := decodeBody(input.RawBody, &req); err != nil {
			return nil, s.handleError(err)
		}
		in, err := ruleInputs([]RuleRequest{req})
		if err != nil {
			return nil, s.handleError(err)
		}
		rule, err := s.store.AddRule(ctx, id, in[0])
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(*rule), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "replace-rules",
		Method:      http.MethodPut,
		Path:        "/tables/{table_id}/rules",
		Summary:     "Replace all rules of a table",
	}, func(ctx context.Context, input *tableBody) (*output[[]types.Rule], error) {
		id, err := parseTableID(input.TableID)
		if err != nil {
			return nil, err
		}
		var req []RuleRequest
		if err := decodeBody(input.RawBody, &req); err != nil {
			return nil, s.handleError(err)
		}
		in, err := ruleInputs(req)
		if err != nil {
			return nil, s.handleError(err)
		}
		list, err := s.store.ReplaceRules(ctx, id, in)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(list), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "consistency-check",
		Method:      http.MethodPost,
		Path:        "/rules/consistency-check",
		Summary:     "Report every schema and syntax issue of a draft rule set",
	}, func(ctx context.Context, input *struct {
		RawBody []byte
	}) (*output[rules.Report], error) {
		var req ConsistencyCheckRequest
		if err := decodeBody(input.RawBody, &req); err != nil {
			return nil, s.handleError(err)
		}
		in, err := types.NormalizeSchema(req.Table.InputSchema)
		if err != nil {
			return nil, s.handleError(err)
		}
		out, err := types.NormalizeSchema(req.Table.OutputSchema)
		if err != nil {
			return nil, s.handleError(err)
		}
		table := &types.DecisionTable{Slug: req.Table.Slug, InputSchema: in, OutputSchema: out}
		return respond(rules.ConsistencyCheck(table, draftRules(req.Rules))), nil
	})
}
