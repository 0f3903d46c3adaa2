package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// maxLine bounds one serialised entry.
const maxLine = 16 << 20

// Verify checks the hash chain of the journal at path. A missing or empty
// journal is valid.
func Verify(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	defer f.Close()
	return Check(f)
}

// Check reads a journal from r and reports the first entry that does not
// chain onto its predecessor.
func Check(r io.Reader) error {
	head := genesis()
	n := 0
	err := scan(r, func(e Entry) error {
		n++
		switch {
		case e.Seq != head.seq+1:
			return fmt.Errorf("entry %d: seq %d follows %d", n, e.Seq, head.seq)
		case e.PrevHash != head.hash:
			return fmt.Errorf("entry %d (seq %d): prev_hash %.16s does not match %.16s", n, e.Seq, e.PrevHash, head.hash)
		case e.Hash != e.digest():
			return fmt.Errorf("entry %d (seq %d): content does not match hash %.16s", n, e.Seq, e.Hash)
		}
		head = after(e)
		return nil
	})
	return err
}

// Tail returns up to the last n entries of the journal at path. Lines that
// do not decode are skipped.
func Tail(path string, n int) ([]Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	defer f.Close()

	if n <= 0 {
		return nil, nil
	}
	ring := make([]Entry, 0, n)
	err = scanLines(f, func(line []byte) error {
		var e Entry
		if json.Unmarshal(line, &e) != nil {
			return nil
		}
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, e)
		return nil
	})
	return ring, err
}

// scan decodes every non-blank line of r as an Entry.
func scan(r io.Reader, fn func(Entry) error) error {
	n := 0
	return scanLines(r, func(line []byte) error {
		n++
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("entry %d: invalid JSON: %w", n, err)
		}
		return fn(e)
	})
}

func scanLines(r io.Reader, fn func([]byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), maxLine)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		if err := fn(sc.Bytes()); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	return nil
}
