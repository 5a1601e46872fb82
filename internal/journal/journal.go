// Package journal is an append-only, snappy-compressed log of the graph
// mutations made during a run.
package journal

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	"github.com/agenthands/ptgbot/internal/core/event"
)

var ErrCorrupt = errors.New("corrupt journal entry")

const (
	// headerSize counts every fixed-width field of an entry.
	headerSize = 8 + 1 + 4 + 4 + 8
	// maxEntrySize bounds the compressed payload of one entry.
	maxEntrySize = 16 << 20
)

type Kind uint8

const (
	KindNewPage Kind = iota + 1
	KindKnownPage
	KindIneffective
	KindOutcome
)

func (k Kind) String() string {
	switch k {
	case KindNewPage:
		return "new_page"
	case KindKnownPage:
		return "known_page"
	case KindIneffective:
		return "ineffective"
	case KindOutcome:
		return "outcome"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Record is the payload of one entry.
type Record struct {
	RunID     string     `json:"run_id"`
	Src       int        `json:"src"`
	Dst       int        `json:"dst"`
	Operation string     `json:"operation,omitempty"`
	Outcome   string     `json:"outcome,omitempty"`
	Ability   string     `json:"ability,omitempty"`
	Events    event.List `json:"events,omitempty"`
}

type Entry struct {
	Seq       uint64
	Kind      Kind
	Record    Record
	Timestamp int64
}

// Journal appends entries to a single file. It is safe for concurrent use.
type Journal struct {
	file   *os.File
	writer *bufio.Writer
	path   string
	runID  string
	seq    uint64
	mu     sync.Mutex

	dropped int64
	damage  error
}

// Open opens or creates the journal at path. Entries are tagged with runID;
// an empty runID gets a fresh one. A damaged tail, such as an entry torn by
// a crash mid-append, is cut off and the intact prefix is kept.
func Open(path, runID string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	entries, valid, scanErr := scan(file)
	var dropped int64
	if scanErr != nil {
		info, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to recover journal: %w", err)
		}
		dropped = info.Size() - valid
		if err := file.Truncate(valid); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to truncate damaged journal tail: %w", err)
		}
	}
	if _, err := file.Seek(valid, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to recover journal: %w", err)
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	j := &Journal{
		file:    file,
		writer:  bufio.NewWriter(file),
		path:    path,
		runID:   runID,
		dropped: dropped,
		damage:  scanErr,
	}
	if len(entries) > 0 {
		j.seq = entries[len(entries)-1].Seq
	}
	return j, nil
}

// Recovered reports the bytes cut from a damaged tail by Open and why.
func (j *Journal) Recovered() (int64, error) { return j.dropped, j.damage }

func (j *Journal) RunID() string { return j.runID }

// Append writes one entry and returns its sequence number.
func (j *Journal) Append(kind Kind, rec Record) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rec.RunID = j.runID
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("failed to encode journal record: %w", err)
	}
	j.seq++
	e := Entry{Seq: j.seq, Kind: kind, Record: rec, Timestamp: time.Now().Unix()}
	return e.Seq, j.write(&e, snappy.Encode(nil, data))
}

// write uses the layout [Seq:8][Kind:1][Len:4][Data:N][Checksum:4][Timestamp:8].
func (j *Journal) write(e *Entry, compressed []byte) error {
	w := j.writer
	if err := binary.Write(w, binary.BigEndian, e.Seq); err != nil {
		return err
	}
	if err := w.WriteByte(byte(e.Kind)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(compressed))); err != nil {
		return err
	}
	if _, err := w.Write(compressed); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, crc32.ChecksumIEEE(compressed)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, e.Timestamp); err != nil {
		return err
	}
	return w.Flush()
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Flush(); err != nil {
		return err
	}
	if err := j.file.Sync(); err != nil {
		return err
	}
	return j.file.Close()
}

// ReadAll reads every entry of the journal at path. A missing file is empty.
func ReadAll(path string) ([]*Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()
	return Read(file)
}

// Read decodes every entry of r. Any truncated or damaged entry is an
// ErrCorrupt.
func Read(r io.Reader) ([]*Entry, error) {
	entries, _, err := scan(r)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// scan decodes entries until EOF or the first damaged entry. valid is the
// byte length of the intact prefix.
func scan(r io.Reader) (entries []*Entry, valid int64, err error) {
	reader := bufio.NewReader(r)
	for {
		e := &Entry{}
		if err := binary.Read(reader, binary.BigEndian, &e.Seq); err != nil {
			if err == io.EOF {
				return entries, valid, nil
			}
			return entries, valid, fmt.Errorf("%w: after entry %d: %v", ErrCorrupt, len(entries), err)
		}
		kind, err := reader.ReadByte()
		if err != nil {
			return entries, valid, fmt.Errorf("%w: entry %d: %v", ErrCorrupt, e.Seq, err)
		}
		e.Kind = Kind(kind)

		var n uint32
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return entries, valid, fmt.Errorf("%w: entry %d: %v", ErrCorrupt, e.Seq, err)
		}
		if n > maxEntrySize {
			return entries, valid, fmt.Errorf("%w: entry %d: length %d exceeds %d", ErrCorrupt, e.Seq, n, maxEntrySize)
		}
		compressed := make([]byte, n)
		if _, err := io.ReadFull(reader, compressed); err != nil {
			return entries, valid, fmt.Errorf("%w: entry %d: %v", ErrCorrupt, e.Seq, err)
		}
		var sum uint32
		if err := binary.Read(reader, binary.BigEndian, &sum); err != nil {
			return entries, valid, fmt.Errorf("%w: entry %d: %v", ErrCorrupt, e.Seq, err)
		}
		if crc32.ChecksumIEEE(compressed) != sum {
			return entries, valid, fmt.Errorf("%w: checksum mismatch for entry %d", ErrCorrupt, e.Seq)
		}
		if err := binary.Read(reader, binary.BigEndian, &e.Timestamp); err != nil {
			return entries, valid, fmt.Errorf("%w: entry %d: %v", ErrCorrupt, e.Seq, err)
		}

		data, err := snappy.Decode(nil, compressed)
		if err != nil {
			return entries, valid, fmt.Errorf("%w: entry %d: %v", ErrCorrupt, e.Seq, err)
		}
		if err := json.Unmarshal(data, &e.Record); err != nil {
			return entries, valid, fmt.Errorf("%w: entry %d: %v", ErrCorrupt, e.Seq, err)
		}
		entries = append(entries, e)
		valid += headerSize + int64(n)
	}
}
