// File: api/schemas/recipe_yaml.go
package schemas

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML decodes the single-key step form. A step with zero or more
// than one instruction, or a non-mapping payload, is a structural error.
func (s *RecipeStep) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("step must be a mapping: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("step must contain exactly one instruction, got %d", len(raw))
	}
	for name, payloadNode := range raw {
		s.Name = name
		if payloadNode.Kind == 0 || payloadNode.Tag == "!!null" {
			s.Payload = map[string]any{}
			return nil
		}
		payload := map[string]any{}
		if err := payloadNode.Decode(&payload); err != nil {
			return fmt.Errorf("payload for step %q must be a mapping: %w", name, err)
		}
		s.Payload = payload
	}
	return nil
}

// MarshalYAML re-emits the single-key form so recipes survive round trips.
func (s RecipeStep) MarshalYAML() (interface{}, error) {
	return map[string]map[string]any{s.Name: s.Payload}, nil
}
