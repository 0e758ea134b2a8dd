package campaign

import "strings"

// BuildQueue turns a raw payload into the ordered, immutable message queue:
// one message per non-blank line, each carrying the campaign prefix.
func BuildQueue(payload, prefix string) []string {
	payload = strings.ReplaceAll(payload, "\r\n", "\n")
	prefix = strings.TrimSpace(prefix)

	var out []string
	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if prefix != "" {
			line = prefix + " " + line
		}
		out = append(out, line)
	}
	return out
}
