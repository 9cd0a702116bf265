package resource

import (
	"regexp"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/odpf/tablevault/internal/errors"
)

const (
	EntityScope = "scope"

	// RegexRulePrefix marks an exclusion entry as a pattern instead of a literal.
	RegexRulePrefix = "regex:"
)

// Scope declares which containers are in and out of a backup run. An entry in
// an exclude list is either a literal (compared case-insensitively) or a
// regex:-prefixed pattern (matched by search, not full match).
type Scope struct {
	FoldersInclude  []string `json:"folders_include,omitempty"`
	ProjectsInclude []string `json:"projects_include,omitempty"`
	ProjectsExclude []string `json:"projects_exclude,omitempty"`
	DatasetsInclude []string `json:"datasets_include,omitempty"`
	DatasetsExclude []string `json:"datasets_exclude,omitempty"`
	TablesInclude   []string `json:"tables_include,omitempty"`
	TablesExclude   []string `json:"tables_exclude,omitempty"`
}

func (s Scope) IsEmpty() bool {
	return len(s.FoldersInclude) == 0 && len(s.ProjectsInclude) == 0 &&
		len(s.DatasetsInclude) == 0 && len(s.TablesInclude) == 0
}

type exclusionRule struct {
	raw     string
	pattern *regexp.Regexp // nil for literal rules
}

func (r exclusionRule) matches(value string) bool {
	if r.pattern != nil {
		return r.pattern.MatchString(value)
	}
	return strings.EqualFold(r.raw, value)
}

// patternCache keeps compiled patterns across resolutions; one run compares
// thousands of names against the same handful of rules.
var patternCache = cache.New(time.Hour, 2*time.Hour) //nolint:gomnd

func compileExclusionRules(entries []string) ([]exclusionRule, error) {
	rules := make([]exclusionRule, 0, len(entries))
	for _, entry := range entries {
		if !strings.HasPrefix(entry, RegexRulePrefix) {
			rules = append(rules, exclusionRule{raw: entry})
			continue
		}
		expr := strings.TrimPrefix(entry, RegexRulePrefix)
		if cached, ok := patternCache.Get(expr); ok {
			rules = append(rules, exclusionRule{raw: entry, pattern: cached.(*regexp.Regexp)})
			continue
		}
		pattern, err := regexp.Compile(expr)
		if err != nil {
			return nil, errors.InvalidArgument(EntityScope, "invalid exclusion pattern "+entry)
		}
		patternCache.SetDefault(expr, pattern)
		rules = append(rules, exclusionRule{raw: entry, pattern: pattern})
	}
	return rules, nil
}

// excludedBy returns the rule that matched, so skips stay attributable in logs.
func excludedBy(rules []exclusionRule, value string) (string, bool) {
	for _, rule := range rules {
		if rule.matches(value) {
			return rule.raw, true
		}
	}
	return "", false
}
