package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

const compareChunkSize = 64 * 1024

// Comparator decides whether two files hold identical bytes.
type Comparator interface {
	Compare(ctx context.Context, pathA, pathB string) (bool, error)
}

// ByteComparator streams both files side by side and compares every byte.
// Files of different length are reported as different without reading them.
//
// A comparison interrupted by ctx is inconclusive: it returns false together
// with the context error, and callers must not act on the boolean.
type ByteComparator struct {
	fs        afero.Fs
	chunkSize int
}

func NewByteComparator(fs afero.Fs) *ByteComparator {
	return &ByteComparator{fs: fs, chunkSize: compareChunkSize}
}

func (c *ByteComparator) Compare(ctx context.Context, pathA, pathB string) (bool, error) {
	fa, err := c.fs.Open(pathA)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", pathA, err)
	}
	defer fa.Close()

	fb, err := c.fs.Open(pathB)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", pathB, err)
	}
	defer fb.Close()

	infoA, err := fa.Stat()
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", pathA, err)
	}
	infoB, err := fb.Stat()
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", pathB, err)
	}
	if infoA.Size() != infoB.Size() {
		return false, nil
	}

	bufA := make([]byte, c.chunkSize)
	bufB := make([]byte, c.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		na, errA := io.ReadFull(fa, bufA)
		nb, errB := io.ReadFull(fb, bufB)

		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}

		eofA, err := endOfStream(errA, pathA)
		if err != nil {
			return false, err
		}
		eofB, err := endOfStream(errB, pathB)
		if err != nil {
			return false, err
		}
		if eofA || eofB {
			return eofA && eofB, nil
		}
	}
}

// endOfStream classifies an io.ReadFull error.
func endOfStream(err error, path string) (bool, error) {
	switch err {
	case nil:
		return false, nil
	case io.EOF, io.ErrUnexpectedEOF:
		return true, nil
	default:
		return false, fmt.Errorf("read %s: %w", path, err)
	}
}
