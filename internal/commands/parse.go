package commands

import (
	"errors"
	"regexp"
	"strings"
)

// Command is a parsed chat command. Args is the raw remainder after the name.
type Command struct {
	Name string
	Args string
}

// Parse splits content into a lower-cased command name and its arguments.
func Parse(prefix, content string) (Command, bool) {
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return Command{}, false
	}

	rest := strings.TrimPrefix(content, prefix)
	name, args, _ := strings.Cut(rest, " ")
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Command{}, false
	}
	return Command{Name: name, Args: strings.TrimSpace(args)}, true
}

var errAddUsage = errors.New(`usage: add "Station name" <url>`)

var addPattern = regexp.MustCompile(`^"([^"]+)"\s+(\S+)`)

// parseAdd reads `"<label>" <url>`.
func parseAdd(args string) (label, url string, err error) {
	m := addPattern.FindStringSubmatch(strings.TrimSpace(args))
	if m == nil {
		return "", "", errAddUsage
	}
	label = strings.TrimSpace(m[1])
	if label == "" {
		return "", "", errAddUsage
	}
	return label, m[2], nil
}
