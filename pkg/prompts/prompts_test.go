package prompts

import (
	"errors"
	"testing"
)

func TestDefaultDimensions(t *testing.T) {
	dims := DefaultDimensions()

	if len(dims.A) != 44 {
		t.Errorf("len(A) = %d, want 44", len(dims.A))
	}
	if len(dims.B) != 8 {
		t.Errorf("len(B) = %d, want 8", len(dims.B))
	}
	if dims.Size() != 352 {
		t.Errorf("Size() = %d, want 352", dims.Size())
	}
	if err := dims.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	// copies, not aliases
	dims.A[0] = "changed"
	if DefaultDimensionA[0] == "changed" {
		t.Error("DefaultDimensions() must copy the label sets")
	}
}

func TestTemplate_Render(t *testing.T) {
	tests := []struct {
		name     string
		tmpl     Template
		a, b     string
		expected string
	}{
		{
			name:     "default",
			tmpl:     DefaultTemplate(),
			a:        "休门",
			b:        "爱情",
			expected: "请给出关于休门在爱情方面的简短描述，不超过20字。",
		},
		{
			name:     "custom",
			tmpl:     Template{Text: "Describe {a} for {b} in {max} words.", MaxChars: 12},
			a:        "north",
			b:        "travel",
			expected: "Describe north for travel in 12 words.",
		},
		{
			name:     "no placeholders",
			tmpl:     Template{Text: "static"},
			a:        "x",
			b:        "y",
			expected: "static",
		},
		{
			name:     "repeated placeholder",
			tmpl:     Template{Text: "{a}/{a}/{b}"},
			a:        "x",
			b:        "y",
			expected: "x/x/y",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tmpl.Render(tt.a, tt.b); got != tt.expected {
				t.Errorf("Render() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGenerate_Order(t *testing.T) {
	dims := Dimensions{A: []string{"A1", "A2", "A3"}, B: []string{"x", "y"}}
	tmpl := Template{Text: "{a}-{b}"}

	prompts := Generate(dims, tmpl)

	expected := []string{"A1-x", "A1-y", "A2-x", "A2-y", "A3-x", "A3-y"}
	if len(prompts) != len(expected) {
		t.Fatalf("len(prompts) = %d, want %d", len(prompts), len(expected))
	}
	for i := range expected {
		if prompts[i] != expected[i] {
			t.Errorf("prompts[%d] = %q, want %q", i, prompts[i], expected[i])
		}
	}

	for i, a := range dims.A {
		for j, b := range dims.B {
			if got := prompts[dims.Index(i, j)]; got != a+"-"+b {
				t.Errorf("prompts[Index(%d,%d)] = %q, want %q", i, j, got, a+"-"+b)
			}
		}
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	dims := DefaultDimensions()
	first := Generate(dims, DefaultTemplate())
	second := Generate(dims, DefaultTemplate())

	if len(first) != dims.Size() {
		t.Fatalf("len = %d, want %d", len(first), dims.Size())
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("prompt %d differs between runs", i)
		}
	}
}

func TestGenerate_EmptyDimension(t *testing.T) {
	prompts := Generate(Dimensions{A: []string{"a"}}, DefaultTemplate())
	if len(prompts) != 0 {
		t.Errorf("len(prompts) = %d, want 0", len(prompts))
	}
}

func TestDimensions_Validate(t *testing.T) {
	tests := []struct {
		name        string
		dims        Dimensions
		expectError error
	}{
		{"valid", Dimensions{A: []string{"a"}, B: []string{"b"}}, nil},
		{"empty a", Dimensions{B: []string{"b"}}, ErrEmptyDimension},
		{"empty b", Dimensions{A: []string{"a"}}, ErrEmptyDimension},
		{"duplicate a", Dimensions{A: []string{"a", "a"}, B: []string{"b"}}, ErrDuplicateLabel},
		{"duplicate b", Dimensions{A: []string{"a"}, B: []string{"b", "c", "b"}}, ErrDuplicateLabel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.dims.Validate()
			if tt.expectError == nil {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.expectError) {
				t.Errorf("Validate() error = %v, want %v", err, tt.expectError)
			}
		})
	}
}
