package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidationError reports tool arguments that failed schema validation.
// The step engine turns it into an error observation so the model can
// correct itself.
type ValidationError struct {
	ToolName string
	Cause    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %s: %v", e.ToolName, e.Cause)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

var schemaCache sync.Map

func compileSchema(schema []byte) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

func validateAgainstSchema(toolName string, schema, args json.RawMessage) error {
	compiled, err := compileSchema(schema)
	if err != nil {
		return fmt.Errorf("compile schema for tool %s: %w", toolName, err)
	}

	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return &ValidationError{ToolName: toolName, Cause: err}
	}

	if err := compiled.Validate(decoded); err != nil {
		return &ValidationError{ToolName: toolName, Cause: err}
	}
	return nil
}
