package protocol

import (
	"bytes"
	"fmt"
	"sync"

	reflector "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

const responseSchemaID = "vista://protocol/response.json"

var (
	responseSchemaOnce sync.Once
	responseSchema     *jsonschema.Schema
	responseSchemaErr  error
)

// ResponseSchema returns the JSON schema of Response.
func ResponseSchema() ([]byte, error) {
	r := &reflector.Reflector{
		Anonymous:                 true,
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	return r.Reflect(&Response{}).MarshalJSON()
}

func compiledResponseSchema() (*jsonschema.Schema, error) {
	responseSchemaOnce.Do(func() {
		raw, err := ResponseSchema()
		if err != nil {
			responseSchemaErr = fmt.Errorf("failed to reflect response schema: %w", err)
			return
		}

		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			responseSchemaErr = fmt.Errorf("failed to unmarshal response schema: %w", err)
			return
		}

		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(responseSchemaID, doc); err != nil {
			responseSchemaErr = fmt.Errorf("failed to add resource: %w", err)
			return
		}

		responseSchema, responseSchemaErr = compiler.Compile(responseSchemaID)
		if responseSchemaErr != nil {
			responseSchemaErr = fmt.Errorf("failed to compile response schema: %w", responseSchemaErr)
		}
	})
	return responseSchema, responseSchemaErr
}

// ValidateResponse checks raw plugin output against the Response schema.
func ValidateResponse(raw []byte) error {
	schema, err := compiledResponseSchema()
	if err != nil {
		return err
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("response does not match schema: %w", err)
	}
	return nil
}
