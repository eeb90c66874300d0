// Package archive builds a store-only ZIP container from named byte blobs.
// The output is byte-for-byte reproducible for identical entries and
// timestamps: no compression, no data descriptors, no extra fields.
package archive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	localHeaderSig   = 0x04034B50
	centralDirSig    = 0x02014B50
	endOfCentralSig  = 0x06054B50
	zipVersion       = 20 // 2.0
	localHeaderLen   = 30
	centralHeaderLen = 46
	endOfCentralLen  = 22
	maxNameLen       = 0xFFFF
)

// ErrNoEntries is returned when Build is called with nothing to pack.
var ErrNoEntries = errors.New("archive: no entries")

// Entry is one named blob to be stored in the archive.
type Entry struct {
	Name string
	Data []byte
}

// crcTable is the 256-entry lookup table for the reflected polynomial
// 0xEDB88320.
var crcTable = makeCRCTable()

func makeCRCTable() [256]uint32 {
	var table [256]uint32
	for i := range table {
		c := uint32(i)
		for k := 0; k < 8; k++ {
			if c&1 != 0 {
				c = 0xEDB88320 ^ (c >> 1)
			} else {
				c >>= 1
			}
		}
		table[i] = c
	}
	return table
}

// Checksum computes the CRC-32 of data, one byte at a time, with the
// standard 0xFFFFFFFF initial and final XOR.
func Checksum(data []byte) uint32 {
	c := uint32(0xFFFFFFFF)
	for _, b := range data {
		c = crcTable[(c^uint32(b))&0xFF] ^ (c >> 8)
	}
	return c ^ 0xFFFFFFFF
}

// dosTime packs t into MS-DOS time and date words. The DOS epoch cannot
// express years outside [1980,2107]; out-of-range years are clamped.
func dosTime(t time.Time) (timeWord, dateWord uint16) {
	year := t.Year()
	if year < 1980 {
		year = 1980
	}
	if year > 2107 {
		year = 2107
	}
	dateWord = uint16((year-1980)<<9 | int(t.Month())<<5 | t.Day())
	timeWord = uint16(t.Hour()<<11 | t.Minute()<<5 | t.Second()/2)
	return timeWord, dateWord
}

// Build serializes entries, in order, into a single archive blob stamped
// with mod. Every entry is stored uncompressed.
func Build(entries []Entry, mod time.Time) ([]byte, error) {
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}

	timeWord, dateWord := dosTime(mod)

	type meta struct {
		crc    uint32
		offset uint32
	}
	metas := make([]meta, len(entries))

	var out []byte
	for i, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("archive: entry %d has an empty name", i)
		}
		if len(e.Name) > maxNameLen {
			return nil, fmt.Errorf("archive: entry name %q too long", e.Name[:32])
		}

		metas[i] = meta{crc: Checksum(e.Data), offset: uint32(len(out))}

		out = appendUint32(out, localHeaderSig)
		out = appendUint16(out, zipVersion) // version needed to extract
		out = appendUint16(out, 0)          // general purpose flags
		out = appendUint16(out, 0)          // method: store
		out = appendUint16(out, timeWord)
		out = appendUint16(out, dateWord)
		out = appendUint32(out, metas[i].crc)
		out = appendUint32(out, uint32(len(e.Data))) // compressed size
		out = appendUint32(out, uint32(len(e.Data))) // uncompressed size
		out = appendUint16(out, uint16(len(e.Name)))
		out = appendUint16(out, 0) // extra field length
		out = append(out, e.Name...)
		out = append(out, e.Data...)
	}

	centralStart := uint32(len(out))
	for i, e := range entries {
		out = appendUint32(out, centralDirSig)
		out = appendUint16(out, zipVersion) // version made by
		out = appendUint16(out, zipVersion) // version needed to extract
		out = appendUint16(out, 0)          // general purpose flags
		out = appendUint16(out, 0)          // method: store
		out = appendUint16(out, timeWord)
		out = appendUint16(out, dateWord)
		out = appendUint32(out, metas[i].crc)
		out = appendUint32(out, uint32(len(e.Data)))
		out = appendUint32(out, uint32(len(e.Data)))
		out = appendUint16(out, uint16(len(e.Name)))
		out = appendUint16(out, 0) // extra field length
		out = appendUint16(out, 0) // comment length
		out = appendUint16(out, 0) // disk number start
		out = appendUint16(out, 0) // internal attributes
		out = appendUint32(out, 0) // external attributes
		out = appendUint32(out, metas[i].offset)
		out = append(out, e.Name...)
	}
	centralSize := uint32(len(out)) - centralStart

	out = appendUint32(out, endOfCentralSig)
	out = appendUint16(out, 0) // disk number
	out = appendUint16(out, 0) // central directory start disk
	out = appendUint16(out, uint16(len(entries)))
	out = appendUint16(out, uint16(len(entries)))
	out = appendUint32(out, centralSize)
	out = appendUint32(out, centralStart)
	out = appendUint16(out, 0) // comment length

	return out, nil
}

func appendUint16(b []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(b, v)
}

func appendUint32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}
