package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ContractViolation reports a model reply that failed the stage's response
// contract: not valid JSON, or not a key-value mapping after unwrapping.
type ContractViolation struct {
	Stage  string
	Reason string
	Raw    string
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("%s: reply violates response contract: %s", e.Stage, e.Reason)
}

// fenceReplacer strips markdown code-fence decorations the model wraps
// around JSON replies.
var fenceReplacer = strings.NewReplacer(
	"```json\n", "",
	"```json", "",
	"```\n", "",
	"```", "",
)

// codeFenceReplacer additionally strips language-specific fences from
// generated source replies.
var codeFenceReplacer = strings.NewReplacer(
	"```python\n", "",
	"```javascript\n", "",
	"```typescript\n", "",
	"```java\n", "",
	"```csharp\n", "",
	"```cs\n", "",
	"```go\n", "",
	"```ruby\n", "",
	"```\n", "",
	"```", "",
)

// stripFences removes JSON code-fence decorations and surrounding space.
func stripFences(reply string) string {
	return strings.TrimSpace(fenceReplacer.Replace(reply))
}

// stripCodeFences removes language code-fence decorations and surrounding
// space from a generated-source reply.
func stripCodeFences(reply string) string {
	return strings.TrimSpace(codeFenceReplacer.Replace(reply))
}

// decodeReply enforces the shared stage contract: strip fences, parse
// JSON, unwrap a one-element list, and require a key-value mapping.
// Anything else is a ContractViolation carrying a truncated reply sample.
func decodeReply(stage, reply string) (map[string]any, error) {
	clean := stripFences(reply)

	var value any
	if err := json.Unmarshal([]byte(clean), &value); err != nil {
		return nil, &ContractViolation{
			Stage:  stage,
			Reason: fmt.Sprintf("invalid JSON: %v", err),
			Raw:    sample(reply),
		}
	}

	if list, ok := value.([]any); ok {
		if len(list) == 0 {
			return nil, &ContractViolation{Stage: stage, Reason: "empty list reply", Raw: sample(reply)}
		}
		value = list[0]
	}

	mapping, ok := value.(map[string]any)
	if !ok {
		return nil, &ContractViolation{
			Stage:  stage,
			Reason: fmt.Sprintf("reply is %T, not a key-value mapping", value),
			Raw:    sample(reply),
		}
	}
	return mapping, nil
}

func sample(reply string) string {
	if len(reply) > 200 {
		return reply[:200]
	}
	return reply
}

// stringField returns the string under key, or def when absent or not a
// string.
func stringField(m map[string]any, key, def string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}

// stringListField returns the strings under key, dropping non-string
// elements. Absent or malformed values yield an empty list.
func stringListField(m map[string]any, key string) []string {
	out := []string{}
	list, ok := m[key].([]any)
	if !ok {
		return out
	}
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// stringMapField returns the string-to-string mapping under key, dropping
// non-string values. Absent or malformed values yield an empty map.
func stringMapField(m map[string]any, key string) map[string]string {
	out := map[string]string{}
	raw, ok := m[key].(map[string]any)
	if !ok {
		return out
	}
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
