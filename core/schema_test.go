package core

import (
	"strings"
	"testing"
)

// TestValidateTraces tests trace shape validation against the schema
func TestValidateTraces(t *testing.T) {
	tests := []struct {
		name      string
		traces    []map[string]interface{}
		wantError bool
	}{
		{
			name:      "empty trace list",
			traces:    []map[string]interface{}{},
			wantError: false,
		},
		{
			name: "scatter trace with axes",
			traces: []map[string]interface{}{
				{"type": "scatter", "x": []interface{}{1, 2, 3}, "y": []interface{}{4.0, 5.0, 6.0}},
			},
			wantError: false,
		},
		{
			name: "pie trace with values and labels",
			traces: []map[string]interface{}{
				{"type": "pie", "values": []interface{}{30, 70}, "labels": []interface{}{"a", "b"}},
			},
			wantError: false,
		},
		{
			name: "unknown trace fields pass through",
			traces: []map[string]interface{}{
				{"type": "candlestick", "open": []interface{}{1}, "close": []interface{}{2}},
			},
			wantError: false,
		},
		{
			name: "type must be a string",
			traces: []map[string]interface{}{
				{"type": 42},
			},
			wantError: true,
		},
		{
			name: "x must be an array",
			traces: []map[string]interface{}{
				{"type": "scatter", "x": "not an array"},
			},
			wantError: true,
		},
		{
			name: "labels must be an array",
			traces: []map[string]interface{}{
				{"type": "pie", "labels": map[string]interface{}{"a": 1}},
			},
			wantError: true,
		},
		{
			name: "text accepts a plain string",
			traces: []map[string]interface{}{
				{"type": "scatter", "text": "hover label"},
			},
			wantError: false,
		},
		{
			name:      "over the trace cap",
			traces:    makeTraces(MaxTraces + 1),
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTraces(tt.traces)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateTraces() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

// TestValidateTraces_ErrorNamesViolations tests error aggregation
func TestValidateTraces_ErrorNamesViolations(t *testing.T) {
	traces := []map[string]interface{}{
		{"type": 42, "x": "bad"},
	}
	err := ValidateTraces(traces)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "trace validation failed") {
		t.Errorf("expected aggregated message, got %q", err.Error())
	}
}
