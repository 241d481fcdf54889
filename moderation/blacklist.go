package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"strings"
)

//go:embed blacklist/*
var blacklistFS embed.FS

// LoadBlacklist reads the embedded term files (one term per line, one
// file per language) and returns the deduplicated union.
func LoadBlacklist() ([]string, error) {
	entries, err := fs.ReadDir(blacklistFS, "blacklist")
	if err != nil {
		return nil, err
	}

	unique := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := blacklistFS.ReadFile("blacklist/" + entry.Name())
		if err != nil {
			return nil, err
		}
		// Scanner handles both \n and \r\n line endings.
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			term := strings.TrimSpace(scanner.Text())
			if term == "" || strings.HasPrefix(term, "#") {
				continue
			}
			unique[strings.ToLower(term)] = struct{}{}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	terms := make([]string, 0, len(unique))
	for term := range unique {
		terms = append(terms, term)
	}
	return terms, nil
}
