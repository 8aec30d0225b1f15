package command

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/nerrad567/tuya-ir-bridge/internal/infrastructure/config"
)

// Table maps command names to control codes. The zero value is an empty table.
type Table struct {
	codes map[string]string
}

// NewTable builds a table from an existing mapping. The map is copied.
func NewTable(codes map[string]string) *Table {
	t := &Table{codes: make(map[string]string, len(codes))}
	for name, code := range codes {
		t.codes[name] = code
	}
	return t
}

// LoadTable reads a command table from path.
//
// A missing file yields an empty, usable table and an error wrapping
// config.ErrResourceNotFound. Other read errors also yield an empty table.
func LoadTable(path string) (*Table, error) {
	data, err := config.ReadResource(path)
	if err != nil {
		return &Table{}, err
	}
	return Parse(data), nil
}

// Parse builds a table from the text form. Later lines override earlier
// lines with the same name.
func Parse(data []byte) *Table {
	t := &Table{codes: make(map[string]string)}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		name, code, ok := splitLine(scanner.Text())
		if !ok {
			continue
		}
		t.codes[name] = code
	}

	return t
}

// splitLine splits a trimmed line on its first whitespace run.
func splitLine(line string) (name, code string, ok bool) {
	line = strings.TrimSpace(line)

	i := strings.IndexFunc(line, unicode.IsSpace)
	if i < 0 {
		return "", "", false
	}

	name = line[:i]
	code = strings.TrimSpace(line[i:])
	if name == "" || code == "" {
		return "", "", false
	}
	return name, code, true
}

// Lookup returns the control code for name.
func (t *Table) Lookup(name string) (string, error) {
	if t != nil {
		if code, ok := t.codes[name]; ok {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.codes)
}

// Names returns all command names, sorted.
func (t *Table) Names() []string {
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.codes))
	for name := range t.codes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
