// Package permcmd splits a shell command line into the individual
// commands it would run, and matches those commands against
// Claude/MCP-style bash permission patterns.
//
// Splitting is pure string processing: it never execs a shell, so it
// can be used to pre-approve or reject a command before anything runs.
package permcmd

import (
	"strings"

	"github.com/buildkite/shellwords"
)

// Command is a single command extracted from a larger command line,
// delimited by &&, ||, |, &, ;, or a newline.
type Command struct {
	// Text is the command's source text, exactly as written.
	Text string

	// Words is Text split into shell words: quote and backslash
	// processing applied, but no globbing or variable expansion.
	Words []string
}

// operator is one of the list/pipeline separators recognized between
// commands.
type operator struct {
	text string
}

var operators = []operator{
	{"&&"},
	{"||"},
	{"|"},
	{"&"},
	{";"},
}

// Split breaks line into the individual commands it contains,
// splitting on &&, ||, |, &, ;, and newline outside of quotes, and
// respecting backslash escapes outside quotes and the escape set
// (" \ $ ` newline) inside double quotes.
//
// Single-quoted sections accept no escapes at all.
func Split(line string) ([]Command, error) {
	segments := splitOperators(line)

	cmds := make([]Command, 0, len(segments))
	for _, seg := range segments {
		text := strings.TrimSpace(seg)
		if text == "" {
			continue
		}

		words, err := shellwords.SplitPosix(text)
		if err != nil {
			return nil, err
		}
		if len(words) == 0 {
			continue
		}

		cmds = append(cmds, Command{Text: text, Words: words})
	}

	return cmds, nil
}

// splitOperators splits line into raw substrings on the list/pipeline
// operators and newlines, tracking quote state so an operator
// appearing inside quotes is not treated as a separator.
func splitOperators(line string) []string {
	var (
		segments []string
		cur      strings.Builder
		inSingle bool
		inDouble bool
	)

	runes := []rune(line)
	n := len(runes)

	flush := func() {
		segments = append(segments, cur.String())
		cur.Reset()
	}

	for i := 0; i < n; i++ {
		c := runes[i]

		switch {
		case inSingle:
			cur.WriteRune(c)
			if c == '\'' {
				inSingle = false
			}
			continue
		case inDouble:
			cur.WriteRune(c)
			if c == '\\' && i+1 < n && isDoubleQuoteEscapable(runes[i+1]) {
				i++
				cur.WriteRune(runes[i])
				continue
			}
			if c == '"' {
				inDouble = false
			}
			continue
		case c == '\'':
			inSingle = true
			cur.WriteRune(c)
			continue
		case c == '"':
			inDouble = true
			cur.WriteRune(c)
			continue
		case c == '\\' && i+1 < n:
			cur.WriteRune(c)
			cur.WriteRune(runes[i+1])
			i++
			continue
		case c == '\n':
			flush()
			continue
		}

		if op, width := matchOperator(runes, i); op != "" {
			flush()
			i += width - 1
			continue
		}

		cur.WriteRune(c)
	}

	flush()
	return segments
}

// matchOperator reports the operator starting at runes[i], if any,
// and its width in runes. Longer operators (&&, ||) are checked before
// their single-rune prefixes (&, |).
func matchOperator(runes []rune, i int) (string, int) {
	for _, op := range operators {
		w := len(op.text)
		if i+w > len(runes) {
			continue
		}
		if string(runes[i:i+w]) == op.text {
			return op.text, w
		}
	}
	return "", 0
}

func isDoubleQuoteEscapable(c rune) bool {
	switch c {
	case '"', '\\', '$', '`', '\n':
		return true
	default:
		return false
	}
}
