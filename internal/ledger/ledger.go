package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/apscustody/labcustody/internal/primitives"
)

// Ledger is a single-writer, append-only event log backed by a
// newline-delimited JSON file. Many readers and (per process) one writer
// may use it concurrently; appends are serialised by writerMu and each
// append is flushed before the lock is released, so a concurrent read
// never observes a partial line.
type Ledger struct {
	path string

	writerMu sync.Mutex

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// Open opens (creating if absent) the ledger file at path.
func Open(path string) (*Ledger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	return &Ledger{path: path, subs: make(map[int]chan Event)}, nil
}

// nowFunc is overridable in tests so append ordering can be asserted
// deterministically without sleeping between events.
var nowFunc = func() int64 { return time.Now().Unix() }

// Append assigns ts, computes the content-addressed txId over the
// canonical JSON of the event (ts included, txId excluded), writes one
// canonical-JSON line, and flushes before returning. The fully-formed
// event (with Ts and TxID set) is returned and broadcast to subscribers.
func (l *Ledger) Append(ev Event) (Event, error) {
	l.writerMu.Lock()
	defer l.writerMu.Unlock()

	ev.Ts = nowFunc()
	ev.TxID = ""

	withoutTx, err := primitives.CanonicalJSON(ev)
	if err != nil {
		return Event{}, fmt.Errorf("ledger append: canonicalize: %w", err)
	}
	ev.TxID = fmt.Sprintf("%x", primitives.SHA256(withoutTx))

	line, err := primitives.CanonicalJSON(ev)
	if err != nil {
		return Event{}, fmt.Errorf("ledger append: canonicalize final: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return Event{}, fmt.Errorf("ledger append: open: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return Event{}, fmt.Errorf("ledger append: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		return Event{}, fmt.Errorf("ledger append: flush: %w", err)
	}

	l.broadcast(ev)
	return ev, nil
}

// All returns every well-formed event in append order. Malformed lines are
// silently skipped; use Audit for the hard-failing variant.
func (l *Ledger) All() ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger read: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ledger read: %w", err)
	}
	return events, nil
}

// Audit returns every event like All, but fails hard on the first
// malformed line instead of skipping it — for integrity-audit callers
// that must not silently tolerate a corrupted log.
func (l *Ledger) Audit() ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger audit: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("ledger audit: malformed event at line %d: %w", lineNo, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ledger audit: %w", err)
	}
	return events, nil
}

// Subscribe returns a channel that receives every event appended after
// this call, and an unsubscribe function. The channel is buffered and
// dropped from (never blocked on) if the subscriber falls behind — a slow
// reader must never be able to stall the ledger writer.
func (l *Ledger) Subscribe() (<-chan Event, func()) {
	l.subMu.Lock()
	defer l.subMu.Unlock()

	id := l.nextSub
	l.nextSub++
	ch := make(chan Event, 64)
	l.subs[id] = ch

	unsubscribe := func() {
		l.subMu.Lock()
		defer l.subMu.Unlock()
		if existing, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(existing)
		}
	}
	return ch, unsubscribe
}

func (l *Ledger) broadcast(ev Event) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	for _, ch := range l.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber — drop rather than block the writer.
		}
	}
}
