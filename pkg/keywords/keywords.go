// Package keywords derives tags from free-form memory text so stored notes
// are searchable without the caller hand-picking tags.
package keywords

import (
	"regexp"
	"sort"
	"strings"
)

// MaxTags bounds how many tags Extract returns.
const MaxTags = 10

// techTerms are matched as whole words, case-insensitively.
var techTerms = []string{
	"api", "async", "auth", "cache", "cli", "concurrency", "config",
	"database", "debug", "deploy", "docker", "frontend", "backend", "git",
	"go", "grpc", "http", "javascript", "json", "kubernetes", "linux",
	"logging", "migration", "network", "performance", "postgres", "python",
	"react", "regex", "rust", "security", "shell", "sql", "testing",
	"typescript", "yaml",
}

// extToTag maps file extensions seen in the text to a language tag.
var extToTag = map[string]string{
	"go":   "go",
	"py":   "python",
	"js":   "javascript",
	"ts":   "typescript",
	"rs":   "rust",
	"sh":   "shell",
	"sql":  "sql",
	"yaml": "yaml",
	"yml":  "yaml",
	"json": "json",
	"md":   "markdown",
	"toml": "config",
}

var (
	wordPattern = regexp.MustCompile(`[a-z][a-z0-9+-]*`)
	filePattern = regexp.MustCompile(`\b[\w./-]+\.([a-zA-Z]{1,4})\b`)
)

var termSet = func() map[string]bool {
	set := make(map[string]bool, len(techTerms))
	for _, t := range techTerms {
		set[t] = true
	}
	return set
}()

// Extract returns up to MaxTags lowercase tags found in text: known technical
// terms appearing as whole words, plus language tags inferred from file names.
// Output is sorted, so the same text always tags the same way.
func Extract(text string) []string {
	lower := strings.ToLower(text)
	found := make(map[string]bool)

	for _, word := range wordPattern.FindAllString(lower, -1) {
		if termSet[word] {
			found[word] = true
		}
	}
	for _, match := range filePattern.FindAllStringSubmatch(lower, -1) {
		if tag, ok := extToTag[match[1]]; ok {
			found[tag] = true
		}
	}

	tags := make([]string, 0, len(found))
	for tag := range found {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	if len(tags) > MaxTags {
		tags = tags[:MaxTags]
	}
	return tags
}
