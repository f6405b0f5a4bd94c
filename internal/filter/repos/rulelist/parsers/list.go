package parsers

import (
	logpkg "github.com/haukened/simplefilter/internal/filter/common/log"
	"github.com/haukened/simplefilter/internal/filter/domain"
)

// ParseResult summarizes one pass of ParseLines.
type ParseResult struct {
	Rules    []domain.Rule
	Lines    int // lines seen
	Ignored  int // lines without a known sigil
	Rejected int // sigil lines that failed to compile
}

// ParseLines compiles every line that starts with a known sigil, in order.
//
// Rules:
// - Lines without a known sigil (comments, headers, unknown prefixes) are ignored
// - A line that fails to compile is logged at debug level and skipped; it never aborts the list
// - Rule order follows line order
func ParseLines(lines []Line, sigils Sigils, source string, logger logpkg.Logger) ParseResult {
	res := ParseResult{Rules: make([]domain.Rule, 0, len(lines))}

	logger.Debug(map[string]any{"source": source, "lines": len(lines)}, "parse_rules_start")

	for _, line := range lines {
		res.Lines++
		category, body, ok := sigils.Classify(line.Text)
		if !ok {
			res.Ignored++
			continue
		}

		rule, err := ParseRule(body, category)
		if err != nil {
			res.Rejected++
			logger.Debug(map[string]any{
				"source": source,
				"line":   line.Num,
				"text":   line.Text,
				"error":  err.Error(),
			}, "parse_rule_skip")
			continue
		}
		rule.Line = line.Num
		res.Rules = append(res.Rules, rule)
	}

	logger.Debug(map[string]any{
		"source":   source,
		"rules":    len(res.Rules),
		"ignored":  res.Ignored,
		"rejected": res.Rejected,
	}, "parse_rules_done")
	return res
}
