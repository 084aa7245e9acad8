package core

import (
	"fmt"
	"regexp"
	"strings"
)

var subredditPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_]{1,20}$`)

// NormalizeSubreddit trims whitespace and an optional "r/" or "/r/" prefix
// and validates the remaining community name.
func NormalizeSubreddit(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	name = strings.TrimPrefix(name, "/")
	if len(name) > 2 && strings.EqualFold(name[:2], "r/") {
		name = name[2:]
	}
	name = strings.TrimSuffix(name, "/")
	if name == "" {
		return "", fmt.Errorf("subreddit name is required")
	}
	if !subredditPattern.MatchString(name) {
		return "", fmt.Errorf("invalid subreddit name %q", raw)
	}
	return name, nil
}

// NormalizeUsers trims, strips "u/" prefixes, lowercases and de-duplicates
// usernames, preserving first-seen order.
func NormalizeUsers(users []string) []string {
	seen := make(map[string]struct{}, len(users))
	out := make([]string, 0, len(users))
	for _, raw := range users {
		u := strings.TrimSpace(raw)
		u = strings.TrimPrefix(u, "/")
		if len(u) > 2 && strings.EqualFold(u[:2], "u/") {
			u = u[2:]
		}
		u = strings.ToLower(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
