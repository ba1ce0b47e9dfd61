package config

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// envLine is a single parsed line from a .env file: either blank,
// a comment, or a KEY=value assignment. Preserving the raw line lets
// WriteEnvFile round-trip comments and unrelated keys untouched.
type envLine struct {
	raw   string // original line text, used verbatim for comments/blanks
	key   string // empty for non-assignment lines
	value string
}

// ReadEnvFile parses a .env file into its ordered lines. A missing file
// returns an empty slice, not an error.
func ReadEnvFile(path string) ([]envLine, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var lines []envLine
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			lines = append(lines, envLine{raw: line})
			continue
		}
		key, value, ok := splitAssignment(trimmed)
		if !ok {
			lines = append(lines, envLine{raw: line})
			continue
		}
		lines = append(lines, envLine{raw: line, key: key, value: unquoteValue(value)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}

func splitAssignment(s string) (key, value string, ok bool) {
	idx := strings.Index(s, "=")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(s[:idx]), strings.TrimSpace(s[idx+1:]), true
}

func unquoteValue(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		if unquoted, err := strconv.Unquote(v); err == nil {
			return unquoted
		}
	}
	return v
}

// needsQuoting reports whether value must be double-quoted when written
// back to the .env file (space, quote, or # would otherwise be
// ambiguous or truncate the value at a comment marker).
func needsQuoting(value string) bool {
	return strings.ContainsAny(value, " \t\"#")
}

func formatValue(value string) string {
	if needsQuoting(value) {
		return strconv.Quote(value)
	}
	return value
}

// WriteEnvFile rewrites path with lines, preserving comments and
// ordering. It is the inverse of ReadEnvFile composed with edits.
func WriteEnvFile(path string, lines []envLine) error {
	var b strings.Builder
	for _, l := range lines {
		if l.key == "" {
			b.WriteString(l.raw)
		} else {
			b.WriteString(l.key)
			b.WriteString("=")
			b.WriteString(formatValue(l.value))
		}
		b.WriteString("\n")
	}
	return os.WriteFile(path, []byte(b.String()), 0600)
}

// sanitizeEnvValue strips CR/LF from a value before it is written to
// .env or the process environment, per spec.md §4.6 ("updates must
// strip CR/LF from values before writing").
func sanitizeEnvValue(v string) string {
	v = strings.ReplaceAll(v, "\r", "")
	v = strings.ReplaceAll(v, "\n", "")
	return v
}

// GetEditableEnv returns the current value of every dashboard-editable
// key, with secret keys masked as "********" when non-empty.
func (c *Config) GetEditableEnv() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]string, len(editableKeys))
	for _, key := range editableKeys {
		value := os.Getenv(key)
		if secretKeys[key] && value != "" {
			value = "********"
		}
		out[key] = value
	}
	return out
}

// UpdateEnv merges updates into the live config/environment and
// persists the change by rewriting the .env file in place, preserving
// comments and unrelated keys (spec.md §4.6). Only keys present in
// editableKeys are applied; others are silently ignored. Returns the
// list of keys that were actually applied.
func UpdateEnv(cfg *Config, envPath string, updates map[string]string) ([]string, error) {
	lines, err := ReadEnvFile(envPath)
	if err != nil {
		return nil, err
	}

	applied := make([]string, 0, len(updates))
	byKey := make(map[string]int, len(lines))
	for i, l := range lines {
		if l.key != "" {
			byKey[l.key] = i
		}
	}

	for key, value := range updates {
		if !IsEditable(key) {
			continue
		}
		value = sanitizeEnvValue(value)
		cfg.Update(key, value)
		applied = append(applied, key)

		if idx, ok := byKey[key]; ok {
			lines[idx].value = value
		} else {
			lines = append(lines, envLine{key: key, value: value})
			byKey[key] = len(lines) - 1
		}
	}

	if len(applied) > 0 {
		if err := WriteEnvFile(envPath, lines); err != nil {
			return nil, err
		}
	}
	sort.Strings(applied)
	return applied, nil
}
