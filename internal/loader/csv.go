package loader

import (
	"encoding/csv"
	"errors"
	"io"
)

// chunkReader yields CSV records in groups of at most size. Lines that fail
// to parse are counted and skipped.
type chunkReader struct {
	r         *csv.Reader
	size      int
	malformed int
}

func newChunkReader(r io.Reader, size int) *chunkReader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false
	return &chunkReader{r: cr, size: size}
}

// header reads the first record.
func (c *chunkReader) header() ([]string, error) {
	return c.r.Read()
}

// next returns io.EOF once no records remain.
func (c *chunkReader) next() ([][]string, error) {
	rows := make([][]string, 0, min(c.size, 4096))
	for len(rows) < c.size {
		rec, err := c.r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				c.malformed++
				continue
			}
			return nil, err
		}
		rows = append(rows, rec)
	}
	if len(rows) == 0 {
		return nil, io.EOF
	}
	return rows, nil
}
