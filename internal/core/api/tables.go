package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/solatis/decider/internal/types"
)

type tablePath struct {
	TableID string `path:"table_id"`
}

type tableBody struct {
	TableID string `path:"table_id"`
	RawBody []byte
}

func parseTableID(raw string) (types.TableID, error) {
	id, err := types.ParseTableID(raw)
	if err != nil {
		return "", newAPIError(http.StatusBadRequest, detailBadTableID)
	}
	return id, nil
}

func (s *service) registerTables(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tables",
		Method:      http.MethodGet,
		Path:        "/tables",
		Summary:     "List decision tables",
	}, func(ctx context.Context, input *struct {
		Search string `query:"search"`
	}) (*output[[]types.DecisionTable], error) {
		tables, err := s.store.ListTables(ctx, input.Search)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(tables), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-table-by-slug",
		Method:      http.MethodGet,
		Path:        "/tables/by-slug/{slug}",
		Summary:     "Get decision table by slug",
	}, func(ctx context.Context, input *struct {
		Slug string `path:"slug"`
	}) (*output[types.DecisionTable], error) {
		table, err := s.store.GetTableBySlug(ctx, input.Slug)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(*table), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-table",
		Method:        http.MethodPost,
		Path:          "/tables",
		Summary:       "Create decision table",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		RawBody []byte
	}) (*output[types.DecisionTable], error) {
		var spec types.TableSpec
		if err := decodeBody(input.RawBody, &spec); err != nil {
			return nil, s.handleError(err)
		}
		table, err := s.store.CreateTable(ctx, spec)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(*table), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-table",
		Method:      http.MethodPut,
		Path:        "/tables/{table_id}",
		Summary:     "Update decision table",
	}, func(ctx context.Context, input *tableBody) (*output[types.DecisionTable], error) {
		id, err := parseTableID(input.TableID)
		if err != nil {
			return nil, err
		}
		var spec types.TableSpec
		if err := decodeBody(input.RawBody, &spec); err != nil {
			return nil, s.handleError(err)
		}
		table, err := s.store.UpdateTable(ctx, id, spec)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(*table), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-table",
		Method:        http.MethodDelete,
		Path:          "/tables/{table_id}",
		Summary:       "Delete decision table and its rules",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *tablePath) (*struct{}, error) {
		id, err := parseTableID(input.TableID)
		if err != nil {
			return nil, err
		}
		if err := s.store.DeleteTable(ctx, id); err != nil {
			return nil, s.handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-table-schema",
		Method:      http.MethodGet,
		Path:        "/tables/{table_id}/schema",
		Summary:     "Get decision table schema",
	}, func(ctx context.Context, input *tablePath) (*output[SchemaResponse], error) {
		id, err := parseTableID(input.TableID)
		if err != nil {
			return nil, err
		}
		table, err := s.store.GetTable(ctx, id)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(SchemaResponse{
			InputSchema:  table.InputSchema,
			OutputSchema: table.OutputSchema,
		}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-table",
		Method:      http.MethodPost,
		Path:        "/tables/save",
		Summary:     "Save table definition and replace its rules atomically",
	}, func(ctx context.Context, input *struct {
		RawBody []byte
	}) (*output[SaveTableResponse], error) {
		var req SaveTableRequest
		if err := decodeBody(input.RawBody, &req); err != nil {
			return nil, s.handleError(err)
		}
		var tableID *types.TableID
		if req.TableID != nil && *req.TableID != "" {
			id, err := parseTableID(*req.TableID)
			if err != nil {
				return nil, err
			}
			tableID = &id
		}
		inputs, err := ruleInputs(req.Rules)
		if err != nil {
			return nil, s.handleError(err)
		}
		table, saved, err := s.store.SaveTable(ctx, tableID, req.Table, inputs)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(SaveTableResponse{Table: *table, Rules: savedRules(saved)}), nil
	})
}
