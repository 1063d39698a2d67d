package utils

import (
	"reflect"
	"testing"
)

func TestParseSemicolonDelimited(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty", "", nil},
		{"single", "/proj/vendor", []string{"/proj/vendor"}},
		{"multiple", "/a;/b;/c", []string{"/a", "/b", "/c"}},
		{"whitespace trimmed", " /a ; /b ", []string{"/a", "/b"}},
		{"empty segments dropped", "/a;;;/b;", []string{"/a", "/b"}},
		{"only separators", ";;;", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseSemicolonDelimited(tt.input)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("ParseSemicolonDelimited(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestTrimSpaceSlice(t *testing.T) {
	result := TrimSpaceSlice([]string{" a ", "", "b", "  "})
	expected := []string{"a", "b"}
	if !reflect.DeepEqual(result, expected) {
		t.Errorf("TrimSpaceSlice = %v, want %v", result, expected)
	}
}

func TestCommandResultSucceeded(t *testing.T) {
	if !(&CommandResult{ExitCode: 0}).Succeeded() {
		t.Error("exit code 0 should be success")
	}
	if (&CommandResult{ExitCode: 2}).Succeeded() {
		t.Error("non-zero exit code should not be success")
	}
}
