// Package users maps synthetic user ids to the labels recorded in the ledger.
package users

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Directory holds optional user labels, indexed by synthetic user id.
// It is read-only after Load and safe for concurrent use.
type Directory struct {
	labels []string
}

// Load reads one label per line from path. Blank lines are skipped and
// duplicate labels are dropped, keeping the first occurrence; when any line
// was dropped the file is rewritten without it. A missing file yields an
// empty directory.
func Load(path string) (*Directory, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Directory{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open users file: %w", err)
	}

	var (
		labels []string
		lines  int
		seen   = make(map[string]bool)
	)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines++
		label := strings.TrimSpace(scanner.Text())
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		labels = append(labels, label)
	}
	err = scanner.Err()
	file.Close()
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}

	if lines != len(labels) {
		if err := os.WriteFile(path, []byte(strings.Join(labels, "\n")), 0o644); err != nil {
			return nil, fmt.Errorf("rewrite users file: %w", err)
		}
	}
	return &Directory{labels: labels}, nil
}

// New returns a directory over labels as given.
func New(labels ...string) *Directory {
	return &Directory{labels: append([]string(nil), labels...)}
}

// Len returns the number of labelled users.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.labels)
}

// Label returns the label of user id, or the decimal id when the directory
// has no label for it.
func (d *Directory) Label(id int) string {
	if d != nil && id >= 0 && id < len(d.labels) {
		return d.labels[id]
	}
	return strconv.Itoa(id)
}
