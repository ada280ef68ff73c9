package link

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// messageSchema describes every JSON line the keypad emits.
const messageSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "oneOf": [
    {
      "type": "object",
      "properties": {
        "status": {"enum": ["started", "stopped", "timeout"]}
      },
      "required": ["status"],
      "additionalProperties": false
    },
    {
      "type": "object",
      "properties": {
        "type": {"const": "analog_values"},
        "timestamp": {"type": "integer", "minimum": 0},
        "keys": {
          "type": "array",
          "items": {
            "type": "object",
            "properties": {
              "id": {"type": "integer", "minimum": 0},
              "ad": {"type": "integer", "minimum": 0, "maximum": 65535},
              "pressed": {"type": "boolean"}
            },
            "required": ["id", "ad", "pressed"],
            "additionalProperties": false
          }
        }
      },
      "required": ["type", "timestamp", "keys"],
      "additionalProperties": false
    }
  ]
}`

var schema = jsonschema.MustCompileString("nakuru-diag.json", messageSchema)

// Validate checks one output line against the message schema.
func Validate(line []byte) error {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decode line: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	return nil
}
