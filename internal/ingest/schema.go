package ingest

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const signalSchemaJSON = `{
  "type": "object",
  "required": ["symbol", "confidence"],
  "properties": {
    "symbol": {"type": "string", "minLength": 1},
    "direction": {"type": "string", "minLength": 1},
    "action": {"type": "string", "minLength": 1},
    "signal": {"type": "string", "minLength": 1},
    "confidence": {"type": "number", "minimum": 0, "maximum": 100},
    "reason": {"type": "string"},
    "price": {"type": "number", "minimum": 0},
    "stop_price": {"type": "number", "minimum": 0},
    "target_price": {"type": "number", "minimum": 0},
    "timestamp": {}
  }
}`

const tradeResultSchemaJSON = `{
  "type": "object",
  "required": ["symbol", "won"],
  "properties": {
    "symbol": {"type": "string", "minLength": 1},
    "won": {"type": "boolean"},
    "trace_id": {"type": "string"},
    "sources": {"type": "array", "items": {"type": "string"}},
    "source_attribution": {"type": "array", "items": {"type": "string"}},
    "closed_at": {}
  }
}`

var (
	signalSchema      = mustCompileSchema("signal.json", signalSchemaJSON)
	tradeResultSchema = mustCompileSchema("trade_result.json", tradeResultSchemaJSON)
)

func mustCompileSchema(name, raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(raw)); err != nil {
		panic(err)
	}
	return compiler.MustCompile(name)
}

// validatePayload unmarshals raw and validates it against schema. String
// numbers and string booleans are coerced first, since upstream producers
// (AI services in particular) are sloppy about JSON types.
func validatePayload(schema *jsonschema.Schema, raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return schema.Validate(coerceScalars(doc))
}

// coerceScalars recursively converts numeric and boolean strings into their
// typed values so the schema sees "80" as 80 and "true" as true.
func coerceScalars(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = coerceScalars(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = coerceScalars(child)
		}
		return out
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return val
		}
		if num, err := strconv.ParseFloat(s, 64); err == nil {
			return num
		}
		switch strings.ToLower(s) {
		case "true":
			return true
		case "false":
			return false
		}
		return val
	default:
		return val
	}
}
