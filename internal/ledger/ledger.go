// Package ledger implements the status file that marks a maintenance task as
// in flight. At most one task may be recorded per database root; a task left
// behind by a crash is picked up again by resume.
package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/freeeve/statdiary/internal/dberr"
)

// StatusFileName is the ledger file inside the database root.
const StatusFileName = ".status.txt"

// ErrLedgerReleased is returned when a ledger is used after Deactivate.
var ErrLedgerReleased = errors.New("ledger already released")

// Kind identifies a maintenance task. The values are the ids written to the
// status file.
type Kind uint8

const (
	KindNone    Kind = 0
	KindRebuild Kind = 1
	KindMerge   Kind = 2
	KindRename  Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindRebuild:
		return "rebuild"
	case KindMerge:
		return "merge"
	case KindRename:
		return "rename"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Task is the descriptor recorded in the status file. Merge carries the two
// tag names, rename carries old and new name; the other kinds carry nothing.
type Task struct {
	Kind Kind
	Args [2]string
}

func NoTask() Task      { return Task{Kind: KindNone} }
func RebuildTask() Task { return Task{Kind: KindRebuild} }

func MergeTask(a, b string) Task {
	return Task{Kind: KindMerge, Args: [2]string{a, b}}
}

func RenameTask(oldName, newName string) Task {
	return Task{Kind: KindRename, Args: [2]string{oldName, newName}}
}

func (t Task) arity() int {
	if t.Kind == KindMerge || t.Kind == KindRename {
		return 2
	}
	return 0
}

// Validate checks that the task can be written and read back unchanged.
func (t Task) Validate() error {
	switch t.Kind {
	case KindNone, KindRebuild, KindMerge, KindRename:
	default:
		return fmt.Errorf("%w: unknown task kind %d", dberr.ErrFormat, t.Kind)
	}
	for i, arg := range t.Args {
		if i >= t.arity() {
			if arg != "" {
				return fmt.Errorf("%w: %s task takes no arguments", dberr.ErrFormat, t.Kind)
			}
			continue
		}
		if arg == "" || strings.ContainsAny(arg, " \t\r\n|") {
			return fmt.Errorf("%w: task argument %q", dberr.ErrFormat, arg)
		}
	}
	return nil
}

// String renders the status file content: "<id>|<arg1> <arg2>".
func (t Task) String() string {
	s := strconv.Itoa(int(t.Kind)) + "|"
	if t.arity() == 2 {
		s += t.Args[0] + " " + t.Args[1]
	}
	return s
}

// Parse reads a status file line written by Task.String.
func Parse(s string) (Task, error) {
	s = strings.TrimRight(s, "\r\n")
	idStr, rest, ok := strings.Cut(s, "|")
	if !ok {
		return Task{}, fmt.Errorf("%w: status %q: missing separator", dberr.ErrFormat, s)
	}
	id, err := strconv.ParseUint(idStr, 10, 8)
	if err != nil {
		return Task{}, fmt.Errorf("%w: status %q: bad task id", dberr.ErrFormat, s)
	}
	t := Task{Kind: Kind(id)}
	if t.arity() == 2 {
		args := strings.Split(rest, " ")
		if len(args) != 2 {
			return Task{}, fmt.Errorf("%w: status %q: want 2 arguments", dberr.ErrFormat, s)
		}
		t.Args = [2]string{args[0], args[1]}
	} else if rest != "" {
		return Task{}, fmt.Errorf("%w: status %q: unexpected arguments", dberr.ErrFormat, s)
	}
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	return t, nil
}

// Ledger is a live claim on a database root for one task.
type Ledger struct {
	root     string
	task     Task
	released bool
}

// Task returns the task this ledger was activated for.
func (l *Ledger) Task() Task { return l.task }

// BusyError reports that another task already holds the database. Ledger is
// a handle on that existing state so the caller can resume and release it.
type BusyError struct {
	Task   Task
	Ledger *Ledger
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("%v: task %q in progress", dberr.ErrDatabaseBusy, e.Task.String())
}

func (e *BusyError) Is(target error) bool {
	return target == dberr.ErrDatabaseBusy
}

const tempPattern = ".status-*.tmp"

// IsLedgerFile reports whether name, relative to the database root, is the
// status file or a temp file left while writing it.
func IsLedgerFile(name string) bool {
	if name == StatusFileName {
		return true
	}
	ok, _ := filepath.Match(tempPattern, name)
	return ok
}

// StatusPath returns root/.status.txt.
func StatusPath(root string) string {
	return filepath.Join(root, StatusFileName)
}

// Activate records task as in flight. The content is written and synced to
// a temp file which is then hard-linked to the status path, so the status
// file either does not exist or holds the complete task. Linking fails when
// the status file exists; the recorded task is then returned in a
// *BusyError.
func Activate(root string, task Task) (*Ledger, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", dberr.ErrInvalidPath, root)
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(root, tempPattern)
	if err != nil {
		return nil, fmt.Errorf("create status file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(task.String()); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write status file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("sync status file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close status file: %w", err)
	}

	path := StatusPath(root)
	err = os.Link(tmp.Name(), path)
	if errors.Is(err, os.ErrExist) {
		existing, readErr := read(path)
		if readErr != nil {
			return nil, readErr
		}
		return nil, &BusyError{Task: existing, Ledger: &Ledger{root: root, task: existing}}
	}
	if err != nil {
		return nil, fmt.Errorf("publish status file: %w", err)
	}
	return &Ledger{root: root, task: task}, nil
}

// Deactivate removes the status file. A ledger can be deactivated once.
func (l *Ledger) Deactivate() error {
	if l.released {
		return ErrLedgerReleased
	}
	l.released = true
	if err := os.Remove(StatusPath(l.root)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove status file: %w", err)
	}
	return nil
}

// Peek returns the recorded task without claiming the database. ok is false
// when the database is idle.
func Peek(root string) (task Task, ok bool, err error) {
	task, err = read(StatusPath(root))
	if errors.Is(err, os.ErrNotExist) {
		return Task{}, false, nil
	}
	if err != nil {
		return Task{}, false, err
	}
	return task, true, nil
}

// read parses the status file at path. An empty file is a marker whose
// content never reached the disk and reads as NoTask.
func read(path string) (Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Task{}, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return NoTask(), nil
	}
	task, err := Parse(string(data))
	if err != nil {
		return Task{}, fmt.Errorf("%s: %w", path, err)
	}
	return task, nil
}
