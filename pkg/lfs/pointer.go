package lfs

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// Version is the first line of every LFS pointer.
	Version = "version https://git-lfs.github.com/spec/v1\n"

	// MaxPointerSize is how many leading bytes are inspected for a pointer.
	MaxPointerSize = 256
)

// Pointer is the object described by an LFS pointer file.
type Pointer struct {
	HashAlgo string
	Oid      string
	Size     int64
}

// DecodePointer parses an LFS pointer from the leading bytes of a file.
// It reports false for anything that is not a complete pointer.
func DecodePointer(data []byte) (*Pointer, bool) {
	if !utf8.Valid(data) {
		return nil, false
	}

	rest, ok := strings.CutPrefix(string(data), Version)
	if !ok {
		return nil, false
	}

	var p Pointer
	for _, line := range strings.Split(rest, "\n") {
		if line == "" {
			continue
		}

		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, false
		}

		switch key {
		case "oid":
			p.HashAlgo, p.Oid, ok = strings.Cut(val, ":")
			if !ok {
				return nil, false
			}
		case "size":
			size, err := strconv.ParseInt(val, 10, 64)
			if err != nil || size < 0 {
				return nil, false
			}
			p.Size = size
		}
	}

	// A zero size counts as missing.
	if p.HashAlgo == "" || p.Oid == "" || p.Size == 0 {
		return nil, false
	}
	return &p, true
}
