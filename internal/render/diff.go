package render

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"
)

// Diff renders a and b as YAML and returns their unified diff. Identical
// documents produce an empty string.
func Diff(a, b interface{}, fromLabel, toLabel string) (string, error) {
	left, err := yaml.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", fromLabel, err)
	}
	right, err := yaml.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", toLabel, err)
	}

	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(left)),
		B:        difflib.SplitLines(string(right)),
		FromFile: fromLabel,
		ToFile:   toLabel,
		Context:  3,
	})
}
