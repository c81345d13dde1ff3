package repl

import (
	"os"
	"path/filepath"
	"strings"
)

// History keeps operator input across sessions, one entry per line.
type History struct {
	entries []string
	cursor  int // len(entries) means "new input"
	file    string
	limit   int
}

const defaultHistoryLimit = 500

// NewHistory creates a History backed by ~/.esxiops/history. Without a home
// directory it only lives in memory.
func NewHistory() *History {
	var file string
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		dir := filepath.Join(home, ".esxiops")
		if err := os.MkdirAll(dir, 0o700); err == nil {
			file = filepath.Join(dir, "history")
		}
	}
	return NewHistoryAt(file)
}

// NewHistoryAt creates a History backed by file. An empty file name disables
// persistence.
func NewHistoryAt(file string) *History {
	h := &History{file: file, limit: defaultHistoryLimit}
	h.Load()
	return h
}

// Load reads history entries from the file.
func (h *History) Load() {
	if h.file == "" {
		return
	}
	data, err := os.ReadFile(h.file)
	if err != nil {
		return
	}
	h.entries = nil
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		if line == "" {
			continue
		}
		h.entries = append(h.entries, strings.ReplaceAll(line, `\n`, "\n"))
	}
	h.trim()
	h.cursor = len(h.entries)
}

// Save writes the entries to the file. History may contain VM names, so the
// file is private to the operator.
func (h *History) Save() {
	if h.file == "" {
		return
	}
	var sb strings.Builder
	for _, entry := range h.entries {
		sb.WriteString(strings.ReplaceAll(entry, "\n", `\n`))
		sb.WriteByte('\n')
	}
	_ = os.WriteFile(h.file, []byte(sb.String()), 0o600)
}

// Add appends an entry, skipping blanks and consecutive duplicates.
func (h *History) Add(entry string) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return
	}
	if len(h.entries) > 0 && h.entries[len(h.entries)-1] == entry {
		h.cursor = len(h.entries)
		return
	}
	h.entries = append(h.entries, entry)
	h.trim()
	h.cursor = len(h.entries)
	h.Save()
}

// Entries returns a copy of the stored entries, oldest first.
func (h *History) Entries() []string {
	return append([]string(nil), h.entries...)
}

// Previous moves back one entry. ok is false at the oldest entry.
func (h *History) Previous() (string, bool) {
	if h.cursor <= 0 {
		return "", false
	}
	h.cursor--
	return h.entries[h.cursor], true
}

// Next moves forward one entry. ok is false once past the newest entry.
func (h *History) Next() (string, bool) {
	if h.cursor >= len(h.entries)-1 {
		h.cursor = len(h.entries)
		return "", false
	}
	h.cursor++
	return h.entries[h.cursor], true
}

// ResetCursor positions the cursor after the newest entry.
func (h *History) ResetCursor() {
	h.cursor = len(h.entries)
}

func (h *History) atEnd() bool {
	return h.cursor == len(h.entries)
}

func (h *History) trim() {
	if h.limit > 0 && len(h.entries) > h.limit {
		h.entries = append([]string(nil), h.entries[len(h.entries)-h.limit:]...)
	}
}
