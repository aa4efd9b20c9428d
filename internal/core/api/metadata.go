package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/solatis/decider/internal/types"
)

const defaultMetadataBaseURL = "http://localhost:8000"

func (s *service) registerMetadata(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-attributes",
		Method:      http.MethodGet,
		Path:        "/metadata/attributes/{object_type}",
		Summary:     "List registered attributes of an object type",
	}, func(ctx context.Context, input *struct {
		ObjectType string `path:"object_type"`
	}) (*output[[]AttributeMetadata], error) {
		entries, err := s.resolver.ListAttributes(ctx, input.ObjectType)
		if err != nil {
			return nil, s.handleErrorAs(err, http.StatusBadRequest, 0)
		}
		return respond(attributeMetadata(entries)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "proxy-metadata-attributes",
		Method:      http.MethodGet,
		Path:        "/proxy/metadata/attributes/{object_type}",
		Summary:     "Fetch attribute metadata from the upstream registry",
	}, func(ctx context.Context, input *struct {
		ObjectType string `path:"object_type"`
		Scope      string `query:"scope"`
	}) (*output[ProxyResponse], error) {
		attrs, err := s.proxyAttributes(ctx, input.ObjectType, input.Scope)
		if err != nil {
			return nil, s.handleErrorAs(err, http.StatusInternalServerError, http.StatusBadGateway)
		}
		return respond(ProxyResponse{Attributes: attrs}), nil
	})
}

// proxyAttributes calls {base}/metadata/attributes/{object_type} with an
// M2M bearer token and normalizes the catalogue it returns.
func (s *service) proxyAttributes(ctx context.Context, objectType, scope string) ([]ProxyAttribute, error) {
	base := strings.TrimRight(strings.TrimSpace(s.metadata.BaseURL), "/")
	if base == "" {
		base = defaultMetadataBaseURL
	}
	target := base + "/metadata/attributes/" + url.PathEscape(strings.TrimSpace(objectType))
	if scope = strings.TrimSpace(scope); scope != "" {
		target += "?" + url.Values{"scope": {scope}}.Encode()
	}

	if s.tokens == nil {
		return nil, types.NewConfigurationError("Missing M2M configuration: token client is not configured.")
	}
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, types.NewConfigurationError("Invalid attribute registry URL: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.upstream.Do(req)
	if err != nil {
		return nil, types.WrapDataError(err, "Attribute registry request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, types.NewDataError("Attribute registry returned HTTP %d for metadata attributes.", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.WrapDataError(err, "Attribute registry request failed: %v", err)
	}
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, types.WrapDataError(err, "Attribute registry returned invalid JSON.")
	}
	return normalizeAttributes(payload), nil
}

// normalizeAttributes accepts {"attributes": [...]} or a bare list. Rows
// that are not objects or carry no key are skipped.
func normalizeAttributes(payload any) []ProxyAttribute {
	rows, ok := payload.([]any)
	if obj, isObj := payload.(map[string]any); isObj {
		rows, ok = obj["attributes"].([]any)
	}
	out := []ProxyAttribute{}
	if !ok {
		return out
	}
	for _, raw := range rows {
		row, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		key := firstText(row, "", "key", "attribute_name", "name")
		if key == "" {
			continue
		}
		out = append(out, ProxyAttribute{
			Key:   key,
			Type:  firstText(row, "string", "type", "data_type", "attribute_type"),
			Label: firstText(row, key, "label", "display_name"),
		})
	}
	return out
}

// firstText returns the trimmed text of the first truthy value among keys,
// or fallback when none is set or the text is blank.
func firstText(row map[string]any, fallback string, keys ...string) string {
	for _, k := range keys {
		v, ok := row[k]
		if !ok || !truthy(v) {
			continue
		}
		if text := strings.TrimSpace(textOf(v)); text != "" {
			return text
		}
		return fallback
	}
	return fallback
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case float64:
		return x != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}

func textOf(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []any, map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return types.FormatValue(x)
	}
}
