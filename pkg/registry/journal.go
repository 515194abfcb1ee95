package registry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// journalOp names the mutation an entry replays.
type journalOp string

const (
	opPutRange   journalOp = "put_range"
	opPutHost    journalOp = "put_host"
	opPutGuest   journalOp = "put_guest"
	opPutNetwork journalOp = "put_network"
	opPutTask    journalOp = "put_task"
)

// journalEntry is one append-only NDJSON line in journal.log. Payload
// carries the JSON-encoded entity being written; Op says which map it goes
// into on replay.
type journalEntry struct {
	Op      journalOp       `json:"op"`
	Payload json.RawMessage `json:"payload"`
}

// journal wraps the append-only journal.log file. Every write is fsynced
// before the in-memory state is considered durable, per the registry's
// durability-before-acknowledgment contract.
type journal struct {
	f *os.File
}

func openJournal(path string) (*journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return &journal{f: f}, nil
}

func (j *journal) append(op journalOp, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal journal payload: %w", err)
	}

	entry := journalEntry{Op: op, Payload: data}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	line = append(line, '\n')

	if _, err := j.f.Write(line); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	return j.f.Sync()
}

func (j *journal) close() error {
	return j.f.Close()
}

// replayJournal reads every entry in path (if it exists) and invokes apply
// for each, in file order, reconstructing state written since the last
// snapshot.
func replayJournal(path string, apply func(op journalOp, payload json.RawMessage) error) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open journal %s for replay: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry journalEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			// A torn final write (crash mid-append) truncates cleanly here:
			// stop replay rather than fail the whole open.
			break
		}
		if err := apply(entry.Op, entry.Payload); err != nil {
			return fmt.Errorf("apply journal entry: %w", err)
		}
	}
	return scanner.Err()
}
