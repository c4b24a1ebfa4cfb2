package project

import (
	"encoding/json"
	"fmt"
)

const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "srcpatch project",
  "type": "object",
  "additionalProperties": false,
  "required": ["rules"],
  "properties": {
    "archive": {"type": "string", "minLength": 1},
    "include": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "patches": {"type": "string", "minLength": 1},
    "original": {"type": "string", "minLength": 1},
    "patched": {"type": "string", "minLength": 1},
    "renamed": {"type": "string", "minLength": 1},
    "rules": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["old", "new"],
        "properties": {
          "old": {"type": "string", "pattern": "^[^./\\s]+(\\.[^./\\s]+)*$"},
          "new": {"type": "string", "pattern": "^[^./\\s]+(\\.[^./\\s]+)*$"}
        }
      }
    },
    "strict": {"type": "boolean"},
    "ignoreWhitespace": {"type": "boolean"},
    "workers": {"type": "integer", "minimum": 0}
  }
}`

// Schema returns the JSON schema a project file must satisfy.
func Schema() (map[string]any, error) {
	var schema map[string]any
	if err := json.Unmarshal([]byte(schemaJSON), &schema); err != nil {
		return nil, fmt.Errorf("project: decode schema: %w", err)
	}
	return schema, nil
}
