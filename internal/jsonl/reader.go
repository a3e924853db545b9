// Package jsonl provides a streaming JSONL line reader with line size limits.
package jsonl

import (
	"bufio"
	"bytes"
	"io"
)

// Line represents a single JSONL line read from a stream.
// Data excludes trailing newline characters. BytesRead includes any newline
// bytes consumed. Terminated reports whether a newline was seen: an
// unterminated line is a partial tail that a later read may complete.
type Line struct {
	Data       []byte
	BytesRead  int
	TooLong    bool
	Terminated bool
}

// Reader streams JSONL lines from an io.Reader. Lines larger than
// maxLineBytes are consumed but returned with TooLong set and no data, so
// callers can account for skipped oversized lines without unbounded buffers.
type Reader struct {
	br           *bufio.Reader
	maxLineBytes int
}

// NewReader creates a new JSONL streaming reader.
// maxLineBytes of 0 disables the line size limit.
func NewReader(r io.Reader, maxLineBytes int) *Reader {
	return &Reader{
		br:           bufio.NewReaderSize(r, 64*1024),
		maxLineBytes: maxLineBytes,
	}
}

// Next reads the next JSONL line. It returns io.EOF when no more data
// remains. A line that hits EOF before a newline is returned with
// Terminated=false.
func (r *Reader) Next() (Line, error) {
	var (
		buf       []byte
		bytesRead int
		tooLong   bool
	)

	for {
		part, err := r.br.ReadSlice('\n')
		bytesRead += len(part)

		if !tooLong {
			if r.maxLineBytes > 0 && len(buf)+len(part) > r.maxLineBytes {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, part...)
			}
		}

		if err == bufio.ErrBufferFull {
			continue
		}

		if err == io.EOF {
			if bytesRead == 0 {
				return Line{}, io.EOF
			}
			if tooLong {
				return Line{BytesRead: bytesRead, TooLong: true}, nil
			}
			return Line{Data: buf, BytesRead: bytesRead}, nil
		}
		if err != nil {
			return Line{}, err
		}

		if tooLong {
			return Line{BytesRead: bytesRead, TooLong: true, Terminated: true}, nil
		}
		return Line{Data: trimLine(buf), BytesRead: bytesRead, Terminated: true}, nil
	}
}

func trimLine(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte{'\n'})
	b = bytes.TrimSuffix(b, []byte{'\r'})
	return b
}
