// CUE schema validation code
package config

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
)

// SchemaDefinition is the CUE definition scenarios are checked against.
const SchemaDefinition = "#Scenario"

// ValidateWithCue validates scenario bytes (YAML or JSON) read from name
// against the #Scenario definition in a CUE schema file.
func ValidateWithCue(name string, data []byte, cueFile string) error {
	ctx := cuecontext.New()

	file, err := cueyaml.Extract(name, data)
	if err != nil {
		return fmt.Errorf("cannot parse scenario for validation: %w", err)
	}
	configVal := ctx.BuildFile(file)
	if configVal.Err() != nil {
		return fmt.Errorf("cannot build scenario value: %w", configVal.Err())
	}

	schemaBytes, err := os.ReadFile(cueFile)
	if err != nil {
		return fmt.Errorf("cannot read CUE schema: %w", err)
	}
	schemaVal := ctx.CompileBytes(schemaBytes, cue.Filename(cueFile))
	if schemaVal.Err() != nil {
		return fmt.Errorf("cannot compile CUE schema: %w", schemaVal.Err())
	}
	def := schemaVal.LookupPath(cue.ParsePath(SchemaDefinition))
	if !def.Exists() {
		return fmt.Errorf("CUE schema %s has no %s definition", cueFile, SchemaDefinition)
	}

	final := def.Unify(configVal)
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
