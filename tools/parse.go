package tools

import (
	"encoding/json"
	"fmt"
)

// parseInput unmarshals JSON tool arguments into a typed struct. The
// pipeline has already schema-validated the input, so failures here mean a
// schema/struct mismatch rather than bad model output.
func parseInput[T any](input json.RawMessage) (T, error) {
	var params T
	if err := json.Unmarshal(input, &params); err != nil {
		return params, fmt.Errorf("invalid input: %w", err)
	}
	return params, nil
}
