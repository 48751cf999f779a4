package main

import (
	"strings"
	"testing"
)

func TestFormatResponse_JSON(t *testing.T) {
	resp := map[string]interface{}{
		"key": "value",
		"num": 42,
	}

	result, err := FormatResponse(resp, FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, `"key": "value"`) {
		t.Error("JSON output missing expected key")
	}
	if !strings.Contains(result, `"num": 42`) {
		t.Error("JSON output missing expected number")
	}
}

func TestFormatResponse_UnsupportedFormat(t *testing.T) {
	_, err := FormatResponse(map[string]string{"key": "value"}, "xml")
	if err == nil {
		t.Fatal("expected error for unsupported format")
	}
	if !strings.Contains(err.Error(), "unsupported format") {
		t.Errorf("error should mention unsupported format, got: %v", err)
	}
}

func TestFormatResponse_Human(t *testing.T) {
	resp := &AssignableResponseCLI{From: "Справочники.Товары", To: "СправочникОбъект", Assignable: true}
	result, err := FormatResponse(resp, FormatHuman)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "Справочники.Товары is assignable to СправочникОбъект" {
		t.Errorf("human output = %q", result)
	}

	// Responses without a text rendering fall back to JSON.
	result, err = FormatResponse(map[string]int{"n": 1}, FormatHuman)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, `"n": 1`) {
		t.Errorf("fallback output = %q", result)
	}
}
