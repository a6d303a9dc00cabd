// Package tags provides the bijective tag id <-> name dictionary stored in
// tags.txt at the database root.
package tags

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/freeeve/statdiary/internal/dberr"
	"github.com/freeeve/statdiary/internal/entry"
)

// FileName is the dictionary file name inside the database root.
const FileName = "tags.txt"

// Dictionary maps tag ids to names and back. Both directions are only ever
// changed together.
type Dictionary struct {
	byID   map[uint16]string
	byName map[string]uint16
}

// New returns an empty dictionary.
func New() *Dictionary {
	return &Dictionary{
		byID:   make(map[uint16]string),
		byName: make(map[string]uint16),
	}
}

// Path returns the dictionary file path for root.
func Path(root string) string {
	return filepath.Join(root, FileName)
}

// Load reads root/tags.txt.
func Load(root string) (*Dictionary, error) {
	f, err := os.Open(Path(root))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := New()
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}
		id, name, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d %q: %v", dberr.ErrCorruptedTagsFile, lineNum, line, err)
		}
		if _, dup := d.byID[id]; dup {
			return nil, fmt.Errorf("%w: duplicate id %d on line %d", dberr.ErrCorruptedTagsFile, id, lineNum)
		}
		if _, dup := d.byName[name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q on line %d", dberr.ErrCorruptedTagsFile, name, lineNum)
		}
		d.byID[id] = name
		d.byName[name] = id
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return d, nil
}

// LoadOrEmpty is Load, except that a missing tags file yields an empty
// dictionary.
func LoadOrEmpty(root string) (*Dictionary, error) {
	d, err := Load(root)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	return d, err
}

func parseLine(line string) (uint16, string, error) {
	idStr, name, ok := strings.Cut(line, " ")
	if !ok {
		return 0, "", errors.New("missing separator")
	}
	id, err := strconv.ParseUint(idStr, 10, 16)
	if err != nil {
		return 0, "", fmt.Errorf("bad id: %w", err)
	}
	if uint16(id) == entry.Sentinel {
		return 0, "", errors.New("id is the reserved sentinel")
	}
	if err := ValidateName(name); err != nil {
		return 0, "", err
	}
	return uint16(id), name, nil
}

// ValidateName checks that name can be stored as a single tags.txt token.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty tag name", dberr.ErrInvalidArgument)
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return fmt.Errorf("%w: tag name %q contains whitespace", dberr.ErrInvalidArgument, name)
	}
	if strings.Contains(name, "|") {
		return fmt.Errorf("%w: tag name %q contains '|'", dberr.ErrInvalidArgument, name)
	}
	return nil
}

// Len returns the number of tags.
func (d *Dictionary) Len() int {
	return len(d.byID)
}

// ID returns the id bound to name.
func (d *Dictionary) ID(name string) (uint16, error) {
	id, ok := d.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", dberr.ErrUnknownTag, name)
	}
	return id, nil
}

// Name returns the name bound to id.
func (d *Dictionary) Name(id uint16) (string, error) {
	name, ok := d.byID[id]
	if !ok {
		return "", fmt.Errorf("%w: %d", dberr.ErrUnknownID, id)
	}
	return name, nil
}

// Rename rebinds old's id to newName. The dictionary is unchanged on error.
func (d *Dictionary) Rename(old, newName string) error {
	if err := ValidateName(newName); err != nil {
		return err
	}
	id, ok := d.byName[old]
	if !ok {
		return fmt.Errorf("%w: %q", dberr.ErrUnknownTag, old)
	}
	if old == newName {
		return nil
	}
	if other, exists := d.byName[newName]; exists && other != id {
		return fmt.Errorf("%w: %q", dberr.ErrTagAlreadyExists, newName)
	}
	delete(d.byName, old)
	d.byName[newName] = id
	d.byID[id] = newName
	return nil
}

// Insert returns the id bound to name, binding the lowest free id first if
// name is new.
func (d *Dictionary) Insert(name string) (uint16, error) {
	if id, ok := d.byName[name]; ok {
		return id, nil
	}
	if err := ValidateName(name); err != nil {
		return 0, err
	}
	for id := uint32(0); id <= uint32(entry.MaxTagID); id++ {
		if _, used := d.byID[uint16(id)]; !used {
			d.byID[uint16(id)] = name
			d.byName[name] = uint16(id)
			return uint16(id), nil
		}
	}
	return 0, fmt.Errorf("%w: tag id space exhausted", dberr.ErrInvalidArgument)
}

// Remove unbinds id.
func (d *Dictionary) Remove(id uint16) error {
	name, ok := d.byID[id]
	if !ok {
		return fmt.Errorf("%w: %d", dberr.ErrUnknownID, id)
	}
	delete(d.byID, id)
	delete(d.byName, name)
	return nil
}

// Tag is one dictionary binding.
type Tag struct {
	ID   uint16
	Name string
}

// Tags returns all bindings ordered by id.
func (d *Dictionary) Tags() []Tag {
	out := make([]Tag, 0, len(d.byID))
	for id, name := range d.byID {
		out = append(out, Tag{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Save rewrites root/tags.txt with the full dictionary, one "<id> <name>"
// line per tag ordered by id.
func (d *Dictionary) Save(root string) error {
	var buf bytes.Buffer
	for _, t := range d.Tags() {
		fmt.Fprintf(&buf, "%d %s\n", t.ID, t.Name)
	}
	if err := atomic.WriteFile(Path(root), &buf); err != nil {
		return fmt.Errorf("save tags: %w", err)
	}
	return nil
}
