package evaluation

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"teabot/internal/domain"
)

// Case is one labelled query. A prediction is correct when it contains any
// of ExpectedNames.
type Case struct {
	Query         string   `json:"query"`
	ExpectedNames []string `json:"expected_names"`
}

// LoadCases reads a JSON array of cases.
func LoadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &domain.ConfigurationError{Setting: "evaluation.cases_path", Path: path, Err: errors.New("test data not found")}
		}
		return nil, fmt.Errorf("read cases %s: %w", path, err)
	}
	var cases []Case
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, &domain.ConfigurationError{Setting: "evaluation.cases_path", Path: path, Err: err}
	}
	for i, c := range cases {
		if strings.TrimSpace(c.Query) == "" {
			return nil, &domain.ConfigurationError{Setting: "evaluation.cases_path", Path: path, Err: fmt.Errorf("case %d has no query", i)}
		}
	}
	return cases, nil
}

// ParseNames extracts the predicted names from a generated reply that was
// asked to be a JSON array. It never fails: a JSON array yields its
// elements, any other JSON value yields its printed form, and anything else
// yields the trimmed raw text as a single candidate.
func ParseNames(text string) []string {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return []string{strings.TrimSpace(text)}
	}
	arr, ok := v.([]any)
	if !ok {
		return []string{fmt.Sprint(v)}
	}
	out := make([]string, len(arr))
	for i, e := range arr {
		if s, ok := e.(string); ok {
			out[i] = s
			continue
		}
		out[i] = fmt.Sprint(e)
	}
	return out
}
