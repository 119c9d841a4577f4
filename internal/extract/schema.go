package extract

import (
	"bytes"
	_ "embed"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed order.schema.json
var orderSchemaJSON []byte

var orderSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("order.schema.json", bytes.NewReader(orderSchemaJSON)); err != nil {
		return nil, eris.Wrap(err, "add order schema")
	}
	schema, err := compiler.Compile("order.schema.json")
	if err != nil {
		return nil, eris.Wrap(err, "compile order schema")
	}
	return schema, nil
})

// ValidateAgainstSchema checks a decoded provider response against the
// freight-order schema.
func ValidateAgainstSchema(obj map[string]any) error {
	schema, err := orderSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(obj); err != nil {
		return eris.Wrap(err, "response does not match order schema")
	}
	return nil
}
