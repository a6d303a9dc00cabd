// Package entry encodes and decodes day files, the canonical binary storage
// for diary observations.
//
// File Format:
//   - One day file per calendar day: data/<year>/<month>/<day>-<weekday>.dat
//   - A day file is a plain concatenation of entries, no header
//   - Entry: hour (1), mental score (1), physical score (1), zero or more
//     big-endian uint16 tag ids, then the 0xFFFF sentinel
//
// Entries keep the order they were appended in. Decoding is strict: any
// trailing bytes that do not form a complete, terminated entry fail the
// whole file.
package entry
