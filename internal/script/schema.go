package script

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed script_schema.json
var scriptSchemaJSON string

var (
	compileOnce  sync.Once
	scriptSchema *jsonschema.Schema
	compileErr   error
)

// ScriptSchema returns the compiled schema the writer's JSON must satisfy.
func ScriptSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("script_schema.json", strings.NewReader(scriptSchemaJSON)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile("script_schema.json")
		if err != nil {
			compileErr = fmt.Errorf("compile script schema: %w", err)
			return
		}
		scriptSchema = schema
	})
	return scriptSchema, compileErr
}

// ValidateScriptDocument checks raw writer output against the script schema.
func ValidateScriptDocument(data []byte) error {
	schema, err := ScriptSchema()
	if err != nil {
		return err
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("script is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("script does not match schema: %w", err)
	}
	return nil
}
