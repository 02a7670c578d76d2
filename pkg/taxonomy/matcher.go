// Package taxonomy classifies conversation text into academic subjects,
// topics and concepts using fixed keyword tables. The matcher is a static
// lookup, not a learned classifier: for a known input the output is exact,
// which keeps the downstream hand-off testable.
package taxonomy

import (
	_ "embed"
	"os"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spool-learn/interview/pkg/model"
	"gopkg.in/yaml.v3"
)

//go:embed tables.yml
var defaultTablesRaw []byte

// Tables holds the keyword tables the matcher runs on.
//
// Subjects and Topics map a category label to the keywords that select it;
// a category matches if any keyword occurs as a substring. Concepts map a
// single trigger keyword to the concept labels its presence adds.
type Tables struct {
	DefaultSubject string              `yaml:"default_subject"`
	Subjects       map[string][]string `yaml:"subjects"`
	Topics         map[string][]string `yaml:"topics"`
	Concepts       map[string][]string `yaml:"concepts"`
}

// Matcher classifies text against loaded tables. It is stateless after
// construction and safe for concurrent use.
type Matcher struct {
	tables Tables
}

// New creates a matcher with the built-in tables.
func New() *Matcher {
	tables, err := parseTables(defaultTablesRaw)
	if err != nil {
		// The embedded tables are validated by tests; a parse failure here
		// is a build defect.
		panic(err)
	}
	return &Matcher{tables: *tables}
}

// NewFromFile creates a matcher with tables loaded from a YAML file,
// for deployments that tune the keyword lists.
func NewFromFile(path string) (*Matcher, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read taxonomy tables", goerr.V("path", path))
	}

	tables, err := parseTables(raw)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid taxonomy tables", goerr.V("path", path))
	}

	return &Matcher{tables: *tables}, nil
}

func parseTables(raw []byte) (*Tables, error) {
	var tables Tables
	if err := yaml.Unmarshal(raw, &tables); err != nil {
		return nil, goerr.Wrap(err, "failed to parse taxonomy YAML")
	}
	if tables.DefaultSubject == "" {
		return nil, goerr.New("default_subject is required")
	}
	return &tables, nil
}

// Match classifies the supplied utterances. Matching runs over their
// lower-cased concatenation. Each returned set is deduplicated and sorted.
// If no subject matches, the result contains only the default subject.
func (m *Matcher) Match(utterances []string) model.Analysis {
	text := strings.ToLower(strings.Join(utterances, " "))

	analysis := model.Analysis{
		Subjects: matchCategories(text, m.tables.Subjects),
		Topics:   matchCategories(text, m.tables.Topics),
		Concepts: matchTriggers(text, m.tables.Concepts),
	}

	if len(analysis.Subjects) == 0 {
		analysis.Subjects = []string{m.tables.DefaultSubject}
	}

	return analysis
}

// matchCategories returns labels whose keyword list has at least one
// substring hit in text.
func matchCategories(text string, categories map[string][]string) []string {
	var labels []string
	for label, keywords := range categories {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				labels = append(labels, label)
				break
			}
		}
	}
	sort.Strings(labels)
	return labels
}

// matchTriggers returns the union of concept labels whose trigger keyword
// occurs in text.
func matchTriggers(text string, triggers map[string][]string) []string {
	seen := map[string]struct{}{}
	var labels []string
	for trigger, concepts := range triggers {
		if !strings.Contains(text, trigger) {
			continue
		}
		for _, c := range concepts {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			labels = append(labels, c)
		}
	}
	sort.Strings(labels)
	return labels
}
