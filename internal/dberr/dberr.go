// Package dberr defines the error kinds shared by the diary database tools
// and the integer status codes reported to external callers.
package dberr

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPath        = errors.New("invalid database path")
	ErrFormat             = errors.New("malformed data")
	ErrCorruptedTagsFile  = errors.New("corrupted tags file")
	ErrFoundUnknownFile   = errors.New("found unknown file")
	ErrFoundUnknownFolder = errors.New("found unknown folder")
	ErrDatabaseBusy       = errors.New("database busy")
	ErrUnknownTag         = errors.New("unknown tag")
	ErrUnknownID          = errors.New("unknown tag id")
	ErrTagAlreadyExists   = errors.New("tag already exists")
	ErrEmptyDayFile       = errors.New("empty day file")
	ErrDayFileExists      = errors.New("day file already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
)

// PathError ties an error kind to the file or folder that triggered it.
type PathError struct {
	Kind error
	Path string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Path)
}

func (e *PathError) Unwrap() error {
	return e.Kind
}

// UnknownFile reports a file that does not belong in the data tree.
func UnknownFile(path string) error {
	return &PathError{Kind: ErrFoundUnknownFile, Path: path}
}

// UnknownFolder reports a folder that does not belong in the data tree.
func UnknownFolder(path string) error {
	return &PathError{Kind: ErrFoundUnknownFolder, Path: path}
}

// EmptyDayFile reports a day file holding zero entries.
func EmptyDayFile(path string) error {
	return &PathError{Kind: ErrEmptyDayFile, Path: path}
}

// IsStructural reports whether err means the data tree broke the closed-world layout.
func IsStructural(err error) bool {
	return errors.Is(err, ErrFoundUnknownFile) || errors.Is(err, ErrFoundUnknownFolder)
}

// Status codes returned by the entry points. 0 is success.
const (
	CodeOK              = 0
	CodeInvalidPath     = 1
	CodeIO              = 2
	CodeFormat          = 3
	CodeCorruptedTags   = 4
	CodeUnknownFile     = 5
	CodeUnknownFolder   = 6
	CodeBusy            = 7
	CodeUnknownTag      = 8
	CodeUnknownID       = 9
	CodeTagExists       = 10
	CodeEmptyDayFile    = 11
	CodeDayFileExists   = 12
	CodeInvalidArgument = 13
)

var codes = []struct {
	kind error
	code int
}{
	{ErrInvalidPath, CodeInvalidPath},
	{ErrDatabaseBusy, CodeBusy},
	{ErrCorruptedTagsFile, CodeCorruptedTags},
	{ErrFormat, CodeFormat},
	{ErrFoundUnknownFile, CodeUnknownFile},
	{ErrFoundUnknownFolder, CodeUnknownFolder},
	{ErrUnknownTag, CodeUnknownTag},
	{ErrUnknownID, CodeUnknownID},
	{ErrTagAlreadyExists, CodeTagExists},
	{ErrEmptyDayFile, CodeEmptyDayFile},
	{ErrDayFileExists, CodeDayFileExists},
	{ErrInvalidArgument, CodeInvalidArgument},
}

// Code maps err onto its status code. Errors of no known kind are treated
// as I/O failures.
func Code(err error) int {
	if err == nil {
		return CodeOK
	}
	for _, c := range codes {
		if errors.Is(err, c.kind) {
			return c.code
		}
	}
	return CodeIO
}
