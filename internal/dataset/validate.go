package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/xaenox/moon-harvester/internal/models"
)

// Format error kinds counted by Validate.
const (
	ErrDataType                = "data_type"
	ErrMissingMessagesList     = "missing_messages_list"
	ErrMessageMissingKey       = "message_missing_key"
	ErrMessageUnrecognizedKey  = "message_unrecognized_key"
	ErrUnrecognizedRole        = "unrecognized_role"
	ErrMissingContent          = "missing_content"
	ErrMissingAssistantMessage = "example_missing_assistant_message"
	ErrJSONDecode              = "json_decode_error"
)

const maxLineSize = 16 << 20

var allowedKeys = map[string]bool{
	"role":          true,
	"content":       true,
	"name":          true,
	"function_call": true,
	"weight":        true,
}

// Report summarises a validation pass.
type Report struct {
	Lines  int
	Errors map[string]int
}

func (r Report) OK() bool { return len(r.Errors) == 0 }

// Kinds returns the error kinds found, sorted.
func (r Report) Kinds() []string {
	kinds := make([]string, 0, len(r.Errors))
	for k := range r.Errors {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Validate counts format errors over every non-blank line of r. Malformed
// lines are counted and skipped; only read failures return an error.
func Validate(r io.Reader) (Report, error) {
	report := Report{Errors: make(map[string]int)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		report.Lines++
		validateLine(line, report.Errors)
	}
	if err := scanner.Err(); err != nil {
		return report, fmt.Errorf("reading dataset: %w", err)
	}
	return report, nil
}

func validateLine(line []byte, counts map[string]int) {
	var example any
	if err := json.Unmarshal(line, &example); err != nil {
		counts[ErrJSONDecode]++
		return
	}

	obj, ok := example.(map[string]any)
	if !ok {
		counts[ErrDataType]++
		return
	}

	messages, ok := obj["messages"].([]any)
	if !ok || len(messages) == 0 {
		counts[ErrMissingMessagesList]++
		return
	}

	hasAssistant := false
	for _, raw := range messages {
		msg, ok := raw.(map[string]any)
		if !ok {
			counts[ErrDataType]++
			continue
		}

		role, hasRole := msg["role"]
		content, hasContent := msg["content"]
		functionCall := msg["function_call"]

		if !hasRole || (!hasContent && !truthy(functionCall)) {
			counts[ErrMessageMissingKey]++
		}

		for k := range msg {
			if !allowedKeys[k] {
				counts[ErrMessageUnrecognizedKey]++
				break
			}
		}

		roleName, _ := role.(string)
		if !models.Role(roleName).Valid() {
			counts[ErrUnrecognizedRole]++
		}
		if models.Role(roleName) == models.RoleAssistant {
			hasAssistant = true
		}

		_, contentIsString := content.(string)
		if (!truthy(content) && !truthy(functionCall)) || (truthy(content) && !contentIsString) {
			counts[ErrMissingContent]++
		}
	}

	if !hasAssistant {
		counts[ErrMissingAssistantMessage]++
	}
}

// truthy follows the usual JSON notion of an empty value.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}
