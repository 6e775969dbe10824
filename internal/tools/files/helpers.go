package files

import (
	"encoding/json"

	"github.com/strandlabs/loom/pkg/models"
)

func success(payload map[string]any) *models.ExecutionResult {
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return failure("encode result: " + err.Error())
	}
	return &models.ExecutionResult{Success: true, Output: string(out)}
}

func failure(message string) *models.ExecutionResult {
	return &models.ExecutionResult{Success: false, Error: message}
}

// The registry validates types and fills defaults before Execute runs,
// so these readers only need to unwrap.

func stringParam(params map[string]any, name string) string {
	v, _ := params[name].(string)
	return v
}

func intParam(params map[string]any, name string) int {
	switch v := params[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func boolParam(params map[string]any, name string) bool {
	v, _ := params[name].(bool)
	return v
}
