// File: internal/chat/parser.go
// Package chat turns free-form text into intents. The bracketed command
// grammar is the trust boundary: only explicitly bracketed commands ever
// become intent files.
package chat

import (
	"regexp"
	"sort"
	"strings"
)

// Command is one parsed bracketed command.
type Command struct {
	// Prefix is "agent" or "macro".
	Prefix string
	// Name is the command or intent name, lowercased.
	Name string
	// Args are the parsed key=value pairs, keys lowercased, quotes stripped.
	Args map[string]string
}

var (
	commandRe = regexp.MustCompile(`\[(?P<prefix>agent|macro)\s*:(?P<name>[a-zA-Z0-9_.-]+)(?P<args>[^\]]*)\]`)
	argRe     = regexp.MustCompile(`(?P<key>[a-zA-Z0-9_.-]+)\s*=\s*(?P<value>"[^"]*"|'[^']*'|[^\s]+)`)
)

// ParseCommands extracts every bracketed command from text, in order.
// Text without commands yields an empty slice.
func ParseCommands(text string) []Command {
	matches := commandRe.FindAllStringSubmatch(text, -1)
	out := make([]Command, 0, len(matches))
	for _, m := range matches {
		out = append(out, Command{
			Prefix: m[1],
			Name:   strings.ToLower(m[2]),
			Args:   parseArgs(m[3]),
		})
	}
	return out
}

func parseArgs(raw string) map[string]string {
	args := map[string]string{}
	for _, m := range argRe.FindAllStringSubmatch(raw, -1) {
		key := strings.ToLower(m[1])
		value := m[2]
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		args[key] = value
	}
	return args
}

// Fingerprint renders a command's identity as name plus sorted args; two
// commands with the same fingerprint are duplicates.
func (c Command) Fingerprint() string {
	keys := make([]string, 0, len(c.Args))
	for k := range c.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(c.Name)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(c.Args[k])
	}
	return b.String()
}
