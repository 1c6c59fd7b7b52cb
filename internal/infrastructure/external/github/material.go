package github

import (
	"fmt"
	"strings"
)

// MinValuableLines is the smallest file change kept in the material.
const MinValuableLines = 10

// ignoredCommitMarker marks commits whose changes must not be used.
const ignoredCommitMarker = "will not be used"

// FileChange is one file touched by a commit.
type FileChange struct {
	Filename     string
	LinesChanged int
}

// Commit is a commit with its file changes.
type Commit struct {
	SHA     string
	Message string
	Files   []FileChange
}

// FilterValuable drops file changes below MinValuableLines and every commit
// whose message says it will not be used. Commits left without files are dropped.
func FilterValuable(commits []Commit) []Commit {
	out := make([]Commit, 0, len(commits))
	for _, c := range commits {
		if strings.Contains(strings.ToLower(c.Message), ignoredCommitMarker) {
			continue
		}
		var files []FileChange
		for _, f := range c.Files {
			if f.LinesChanged >= MinValuableLines {
				files = append(files, f)
			}
		}
		if len(files) == 0 {
			continue
		}
		c.Files = files
		out = append(out, c)
	}
	return out
}

// FormatMaterial renders each commit as one material block:
//
//	Commit: <message>
//	  - <file> (<N> lines changed)
//	<blank line>
func FormatMaterial(commits []Commit) []string {
	blocks := make([]string, 0, len(commits))
	for _, c := range commits {
		var b strings.Builder
		msg := c.Message
		if msg == "" {
			msg = "<no message>"
		}
		fmt.Fprintf(&b, "Commit: %s\n", msg)
		for _, f := range c.Files {
			fmt.Fprintf(&b, "  - %s (%d lines changed)\n", f.Filename, f.LinesChanged)
		}
		b.WriteString("\n")
		blocks = append(blocks, b.String())
	}
	return blocks
}
