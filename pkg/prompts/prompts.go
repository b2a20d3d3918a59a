// Package prompts expands two label sets into the ordered prompt list.
package prompts

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Placeholders understood by Template.
const (
	PlaceholderA   = "{a}"
	PlaceholderB   = "{b}"
	PlaceholderMax = "{max}"
)

// DefaultTemplateText asks for a short description of label A in aspect B.
const DefaultTemplateText = "请给出关于{a}在{b}方面的简短描述，不超过{max}字。"

// DefaultMaxChars is the length limit rendered into {max}.
const DefaultMaxChars = 20

// Default label sets.
var (
	DefaultDimensionA = []string{
		"休门", "生门", "伤门", "杜门", "景门", "死门", "惊门", "开门",
		"值符", "腾蛇", "太阴", "六合", "白虎", "玄武", "九地", "九天",
		"天蓬", "天任", "天冲", "天辅", "天英", "天芮", "天柱", "天心", "天禽",
		"一宫", "二宫", "三宫", "四宫", "五宫", "六宫", "七宫", "八宫", "九宫",
		"甲", "乙", "丙", "丁", "戊", "己", "庚", "辛", "壬", "癸",
	}

	DefaultDimensionB = []string{"爱情", "事业", "财富", "健康", "家庭", "学业", "人际", "运势"}
)

var (
	// ErrEmptyDimension is returned when a label set has no elements.
	ErrEmptyDimension = errors.New("dimension has no labels")

	// ErrDuplicateLabel is returned when a label occurs twice in one set.
	ErrDuplicateLabel = errors.New("duplicate label")
)

// Dimensions holds the two label sets. B varies fastest.
type Dimensions struct {
	A []string
	B []string
}

// DefaultDimensions returns copies of the default label sets.
func DefaultDimensions() Dimensions {
	return Dimensions{
		A: append([]string(nil), DefaultDimensionA...),
		B: append([]string(nil), DefaultDimensionB...),
	}
}

// Size returns the number of prompts the dimensions expand to.
func (d Dimensions) Size() int {
	return len(d.A) * len(d.B)
}

// Index returns the position of (A[i], B[j]) in the flat prompt list.
func (d Dimensions) Index(i, j int) int {
	return i*len(d.B) + j
}

// Validate checks that both sets are non-empty and free of duplicates.
// Labels become table keys, so a duplicate would shadow a cell.
func (d Dimensions) Validate() error {
	for _, dim := range []struct {
		name   string
		labels []string
	}{{"a", d.A}, {"b", d.B}} {
		if len(dim.labels) == 0 {
			return fmt.Errorf("dimension %s: %w", dim.name, ErrEmptyDimension)
		}
		seen := make(map[string]struct{}, len(dim.labels))
		for _, label := range dim.labels {
			if _, ok := seen[label]; ok {
				return fmt.Errorf("dimension %s: %w %q", dim.name, ErrDuplicateLabel, label)
			}
			seen[label] = struct{}{}
		}
	}
	return nil
}

// Template renders one prompt from a label pair.
type Template struct {
	Text     string
	MaxChars int
}

// DefaultTemplate returns the default prompt template.
func DefaultTemplate() Template {
	return Template{Text: DefaultTemplateText, MaxChars: DefaultMaxChars}
}

// Render substitutes the placeholders.
func (t Template) Render(a, b string) string {
	return strings.NewReplacer(
		PlaceholderA, a,
		PlaceholderB, b,
		PlaceholderMax, strconv.Itoa(t.MaxChars),
	).Replace(t.Text)
}

// Generate expands dims into prompts: for each A label in order, for each
// B label in order. The prompt for (A[i], B[j]) is at dims.Index(i, j).
func Generate(dims Dimensions, tmpl Template) []string {
	prompts := make([]string, 0, dims.Size())
	for _, a := range dims.A {
		for _, b := range dims.B {
			prompts = append(prompts, tmpl.Render(a, b))
		}
	}
	return prompts
}
