package markup

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var hunkHeader = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)$`)

// RepairHunks rewrites unified diff hunk headers so their line counts match the hunk bodies.
// Models routinely miscount; everything except the counts is preserved.
func RepairHunks(diff string) string {
	lines := strings.Split(diff, "\n")

	for i := 0; i < len(lines); i++ {
		m := hunkHeader.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		end := i + 1
		for end < len(lines) && !endsHunk(lines, end) {
			end++
		}

		oldCount, newCount := countHunk(lines[i+1 : end])
		if oldCount != atoiOr(m[2], 1) || newCount != atoiOr(m[4], 1) {
			lines[i] = fmt.Sprintf("@@ -%s,%d +%s,%d @@%s", m[1], oldCount, m[3], newCount, m[5])
		}
		i = end - 1
	}
	return strings.Join(lines, "\n")
}

// endsHunk reports whether lines[i] starts the next hunk or the next file header.
func endsHunk(lines []string, i int) bool {
	l := lines[i]
	switch {
	case strings.HasPrefix(l, "@@ "), strings.HasPrefix(l, "diff "):
		return true
	case strings.HasPrefix(l, "--- "):
		return i+1 < len(lines) && strings.HasPrefix(lines[i+1], "+++ ")
	}
	return false
}

func countHunk(body []string) (oldCount, newCount int) {
	// A trailing empty element is the final newline, not a context line.
	if n := len(body); n > 0 && body[n-1] == "" {
		body = body[:n-1]
	}
	for _, l := range body {
		if strings.HasPrefix(l, `\`) {
			continue
		}
		if !strings.HasPrefix(l, "+") {
			oldCount++
		}
		if !strings.HasPrefix(l, "-") {
			newCount++
		}
	}
	return oldCount, newCount
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
