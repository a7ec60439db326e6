package reasoning

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// toolSchema reflects a Go struct's json/jsonschema tags into the
// map[string]interface{} shape llms.ToolDefinition.Parameters expects,
// the same way the control pseudo-tools (finished, agent_decide_next,
// agent_observe_decide, agent_think) describe their arguments to the
// model instead of hand-writing each schema map.
func toolSchema[T any]() map[string]interface{} {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("reasoning: marshal control tool schema: %v", err))
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		panic(fmt.Sprintf("reasoning: unmarshal control tool schema: %v", err))
	}
	delete(m, "$schema")
	delete(m, "$id")
	return m
}
