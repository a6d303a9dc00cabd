package entry

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/freeeve/statdiary/internal/dberr"
)

// Entry layout: 3 + 2*len(Tags) + 2 bytes
// - Hour (uint8): 0-23
// - Mental (uint8)
// - Physical (uint8)
// - Tags (uint16 big-endian each)
// - Sentinel (uint16): 0xFFFF terminates the entry
const (
	headerSize = 3
	tagSize    = 2
)

// Sentinel terminates every entry. It is never a valid tag id.
const Sentinel uint16 = 0xFFFF

// MaxTagID is the largest usable tag id.
const MaxTagID uint16 = Sentinel - 1

// MaxHour is the largest valid hour of day.
const MaxHour = 23

// Entry is one timestamped wellbeing observation.
type Entry struct {
	Hour     uint8
	Mental   uint8
	Physical uint8
	Tags     []uint16
}

// Validate checks the field ranges the binary format cannot represent.
func (e Entry) Validate() error {
	if e.Hour > MaxHour {
		return fmt.Errorf("%w: hour %d out of range", dberr.ErrFormat, e.Hour)
	}
	for _, t := range e.Tags {
		if t == Sentinel {
			return fmt.Errorf("%w: tag id %#x is reserved", dberr.ErrFormat, t)
		}
	}
	return nil
}

// Equal reports whether two entries hold the same values.
func (e Entry) Equal(o Entry) bool {
	return e.Hour == o.Hour && e.Mental == o.Mental && e.Physical == o.Physical &&
		slices.Equal(e.Tags, o.Tags)
}

// HasTag reports whether the entry references id.
func (e Entry) HasTag(id uint16) bool {
	return slices.Contains(e.Tags, id)
}

// EncodedSize returns the number of bytes Encode writes for e.
func (e Entry) EncodedSize() int {
	return headerSize + tagSize*len(e.Tags) + tagSize
}

// Encode serializes entries in file-append order.
func Encode(entries []Entry) ([]byte, error) {
	size := 0
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		size += e.EncodedSize()
	}

	buf := make([]byte, 0, size)
	for _, e := range entries {
		buf = append(buf, e.Hour, e.Mental, e.Physical)
		for _, t := range e.Tags {
			buf = binary.BigEndian.AppendUint16(buf, t)
		}
		buf = binary.BigEndian.AppendUint16(buf, Sentinel)
	}
	return buf, nil
}

// Decode parses a day file. Truncated input is an error; no partial result
// is returned.
func Decode(data []byte) ([]Entry, error) {
	var entries []Entry
	pos := 0
	for pos < len(data) {
		start := pos
		if len(data)-pos < headerSize {
			return nil, fmt.Errorf("%w: truncated entry header at offset %d", dberr.ErrFormat, start)
		}
		e := Entry{
			Hour:     data[pos],
			Mental:   data[pos+1],
			Physical: data[pos+2],
		}
		pos += headerSize
		if e.Hour > MaxHour {
			return nil, fmt.Errorf("%w: hour %d out of range at offset %d", dberr.ErrFormat, e.Hour, start)
		}

		terminated := false
		for len(data)-pos >= tagSize {
			t := binary.BigEndian.Uint16(data[pos : pos+tagSize])
			pos += tagSize
			if t == Sentinel {
				terminated = true
				break
			}
			e.Tags = append(e.Tags, t)
		}
		if !terminated {
			return nil, fmt.Errorf("%w: entry at offset %d is missing its terminator", dberr.ErrFormat, start)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ReplaceTag rewrites every occurrence of from into to. An entry never ends
// up holding the same id twice; the first occurrence keeps its position.
// changed reports whether any entry was modified, so applying the same
// replacement twice leaves the second call a no-op.
func ReplaceTag(entries []Entry, from, to uint16) (out []Entry, changed bool) {
	out = make([]Entry, len(entries))
	for i, e := range entries {
		if !e.HasTag(from) {
			out[i] = e
			continue
		}
		changed = true
		tags := make([]uint16, 0, len(e.Tags))
		for _, t := range e.Tags {
			if t == from {
				t = to
			}
			if t == to && slices.Contains(tags, to) {
				continue
			}
			tags = append(tags, t)
		}
		e.Tags = tags
		out[i] = e
	}
	return out, changed
}
