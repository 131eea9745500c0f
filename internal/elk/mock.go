package elk

import (
	"context"
	"time"
)

// MockSource serves a fixed batch of error records for local runs and
// demos.
type MockSource struct {
	records []map[string]any
}

// NewMockSource returns a source preloaded with two representative
// error records.
func NewMockSource() *MockSource {
	now := time.Now().UTC().Format(time.RFC3339)
	return &MockSource{
		records: []map[string]any{
			{
				"@timestamp": now,
				"level":      "ERROR",
				"service":    "user-service",
				"message":    "NullPointerException: Cannot invoke method on null object",
				"stack_trace": "java.lang.NullPointerException: Cannot invoke method on null object\n" +
					"\tat com.example.UserController.getUser(UserController.java:45)\n" +
					"\tat com.example.UserService.findById(UserService.java:102)",
			},
			{
				"@timestamp": now,
				"level":      "ERROR",
				"service":    "payment-service",
				"message":    "SQLException: Connection pool exhausted",
				"stack_trace": "java.sql.SQLException: Connection pool exhausted\n" +
					"\tat com.example.PaymentService.charge(PaymentService.java:78)",
			},
		},
	}
}

// FetchErrorLogs returns the canned records, capped at limit. The window
// is ignored.
func (m *MockSource) FetchErrorLogs(_ context.Context, _ time.Duration, limit int) ([]map[string]any, error) {
	if limit <= 0 || limit >= len(m.records) {
		out := make([]map[string]any, len(m.records))
		copy(out, m.records)
		return out, nil
	}
	out := make([]map[string]any, limit)
	copy(out, m.records[:limit])
	return out, nil
}
