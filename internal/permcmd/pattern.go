package permcmd

import (
	"strings"

	"github.com/buildkite/shellwords"
)

// Pattern is a Claude/MCP-style bash permission pattern, e.g.
// "git diff:*" or "npm run build". A pattern without a colon must
// match a command's full word list exactly; a pattern with a
// "prefix:*" suffix matches any command whose words start with
// prefix's words.
type Pattern string

// Match reports whether cmd matches p.
//
// "git diff:*" matches "git diff", "git diff --stat", and anything
// else beginning with the words "git" "diff". "git diff" with no
// wildcard matches only the exact command "git diff".
func (p Pattern) Match(cmd Command) bool {
	prefix, wildcard := strings.CutSuffix(string(p), ":*")

	patternWords, err := shellwords.SplitPosix(prefix)
	if err != nil || len(patternWords) == 0 {
		return false
	}

	if wildcard {
		return hasWordPrefix(cmd.Words, patternWords)
	}
	return equalWords(cmd.Words, patternWords)
}

// MatchAny reports whether cmd matches any of patterns.
func MatchAny(patterns []Pattern, cmd Command) bool {
	for _, p := range patterns {
		if p.Match(cmd) {
			return true
		}
	}
	return false
}

// MatchAll reports whether every command split from line matches at
// least one pattern in patterns. A line that fails to split is
// treated as not matching.
func MatchAll(patterns []Pattern, line string) bool {
	cmds, err := Split(line)
	if err != nil {
		return false
	}
	if len(cmds) == 0 {
		return false
	}
	for _, cmd := range cmds {
		if !MatchAny(patterns, cmd) {
			return false
		}
	}
	return true
}

func hasWordPrefix(words, prefix []string) bool {
	if len(prefix) > len(words) {
		return false
	}
	for i, w := range prefix {
		if words[i] != w {
			return false
		}
	}
	return true
}

func equalWords(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
