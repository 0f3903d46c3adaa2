// Package journal keeps an append-only, hash-chained record of the lines
// the shell has executed. Several shells may share one journal file.
package journal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Entry is one executed line.
type Entry struct {
	Seq      uint64    `json:"seq"`
	Time     time.Time `json:"ts"`
	PrevHash string    `json:"prev_hash"`
	Line     string    `json:"line"`
	Pid      int       `json:"pid"`
	ExitCode int       `json:"exit_code"`
	Error    string    `json:"error,omitempty"`
	Duration float64   `json:"duration_ms"`
	Cwd      string    `json:"cwd"`
	Hash     string    `json:"hash"` // SHA-256 of the entry with this field empty
}

// digest hashes e as serialised with an empty Hash.
func (e Entry) digest() string {
	e.Hash = ""
	data, _ := json.Marshal(e)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// link is the position an entry attaches to: the sequence number and hash
// of its predecessor.
type link struct {
	seq  uint64
	hash string
}

func genesis() link {
	sum := sha256.Sum256([]byte("psh-genesis"))
	return link{hash: hex.EncodeToString(sum[:])}
}

// after returns the link that follows e.
func after(e Entry) link {
	return link{seq: e.Seq, hash: e.Hash}
}
