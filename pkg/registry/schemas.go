package registry

// JSON schemas for the built-in node kinds. The executors parse and reject
// malformed configs too; validation here surfaces the errors at workflow
// registration instead of execution time.

var conditionConditionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"field":    map[string]any{"type": "string", "minLength": 1},
		"operator": map[string]any{"type": "string", "enum": []any{"eq", "ne", "gt", "gte", "lt", "lte", "contains"}},
		"value":    map[string]any{},
	},
	"required": []any{"field", "operator"},
}

var conditionSchema = map[string]any{
	"type": "object",
	"anyOf": []any{
		map[string]any{"required": []any{"field", "operator"}},
		map[string]any{"required": []any{"conditions"}},
	},
	"properties": map[string]any{
		"field":    map[string]any{"type": "string"},
		"operator": map[string]any{"type": "string"},
		"value":    map[string]any{},
		"conditions": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items":    conditionConditionSchema,
		},
		"logic": map[string]any{"type": "string", "enum": []any{"and", "or"}},
	},
}

var switchSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"field": map[string]any{"type": "string", "minLength": 1},
		"cases": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"value":  map[string]any{},
					"branch": map[string]any{"type": "string", "minLength": 1},
				},
				"required": []any{"value", "branch"},
			},
		},
		"default_branch": map[string]any{"type": "string"},
	},
	"required": []any{"field", "cases"},
}

var loopSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"items":          map[string]any{"type": "string", "minLength": 1},
		"item_variable":  map[string]any{"type": "string"},
		"index_variable": map[string]any{"type": "string"},
		"transform":      map[string]any{"type": "string"},
	},
	"required": []any{"items"},
}

var mergeSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"strategy": map[string]any{"type": "string", "enum": []any{"all", "first", "last"}},
		"sources": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
}

var delaySchema = map[string]any{
	"type": "object",
	"anyOf": []any{
		map[string]any{"required": []any{"duration"}},
		map[string]any{"required": []any{"until"}},
	},
	"properties": map[string]any{
		"duration": map[string]any{"type": []any{"string", "number"}},
		"until":    map[string]any{"type": "string"},
	},
}

var waitSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"correlation_id": map[string]any{"type": "string"},
		"events": map[string]any{
			"type":          "object",
			"minProperties": 1,
		},
		"policy":     map[string]any{"type": "string", "enum": []any{"all", "any", "required"}},
		"on_timeout": map[string]any{"type": "string", "enum": []any{"fail", "continue"}},
		"timeout":    map[string]any{"type": "string"},
	},
	"required": []any{"events"},
}

var apiCallSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"url":     map[string]any{"type": "string", "minLength": 1},
		"method":  map[string]any{"type": "string"},
		"headers": map[string]any{"type": "object"},
		"body":    map[string]any{},
		"timeout": map[string]any{"type": "string"},
		"retry":   map[string]any{"type": "object"},
	},
	"required": []any{"url"},
}

var publishEventSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"topic": map[string]any{"type": "string", "minLength": 1},
		"key":   map[string]any{"type": "string"},
		"data":  map[string]any{"type": "object"},
	},
	"required": []any{"topic", "data"},
}

var functionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"name": map[string]any{"type": "string", "minLength": 1},
		"args": map[string]any{"type": "object"},
	},
	"required": []any{"name"},
}
