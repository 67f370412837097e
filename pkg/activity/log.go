package activity

import (
	"context"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/localbridge/localbridged/pkg/log"
)

// RingSize is the in-memory ring's capacity (spec.md §3: "N ≈ 1000").
const RingSize = 1000

// writerQueueSize bounds the channel feeding the dedicated mirror-writer
// task (spec.md §5: "the file mirror is append-only with a dedicated
// writer task fed by a bounded channel").
const writerQueueSize = 256

// Log is the activity ring plus its sqlite mirror. The ring is guarded
// by a mutex over its tail pointer; persistence happens off the caller's
// goroutine.
type Log struct {
	mu   sync.Mutex
	ring []Event
	head int
	size int

	db     *sqlx.DB
	writes chan Event
	done   chan struct{}
}

// Open opens (or creates) the sqlite mirror at dbFile and starts its
// writer task. Call Close to drain and stop it.
func Open(dbFile string) (*Log, error) {
	db, err := openDB(dbFile)
	if err != nil {
		return nil, err
	}

	l := &Log{
		ring:   make([]Event, RingSize),
		db:     db,
		writes: make(chan Event, writerQueueSize),
		done:   make(chan struct{}),
	}
	go l.runWriter()
	return l, nil
}

// Append records an event in the ring immediately and enqueues it for
// durable persistence.
func (l *Log) Append(e Event) {
	l.mu.Lock()
	l.ring[(l.head+l.size)%RingSize] = e
	if l.size < RingSize {
		l.size++
	} else {
		l.head = (l.head + 1) % RingSize
	}
	l.mu.Unlock()

	select {
	case l.writes <- e:
	default:
		log.Logf("- activity mirror queue full, dropping event %s", e.ID)
	}
}

// Recent returns the last k events, newest first.
func (l *Log) Recent(k int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	if k > l.size {
		k = l.size
	}
	out := make([]Event, k)
	for i := 0; i < k; i++ {
		idx := (l.head + l.size - 1 - i + RingSize) % RingSize
		out[i] = l.ring[idx]
	}
	return out
}

// RecentFromMirror reads the last k events from the durable sqlite
// mirror, newest first. Use Recent for the fast in-memory path; this is
// for recovery after a restart.
func (l *Log) RecentFromMirror(ctx context.Context, k int) ([]Event, error) {
	var rows []row
	if err := l.db.SelectContext(ctx, &rows, selectRecentQuery, k); err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(rows))
	for _, r := range rows {
		e, err := rowToEvent(r)
		if err != nil {
			log.Logf("- skipping unparseable activity row %s: %v", r.ID, err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (l *Log) runWriter() {
	defer close(l.done)
	for e := range l.writes {
		r, err := e.toRow()
		if err != nil {
			log.Logf("- activity event %s could not be serialized: %v", e.ID, err)
			continue
		}
		if _, err := l.db.NamedExec(insertQuery, r); err != nil {
			log.Logf("- activity event %s could not be persisted: %v", e.ID, err)
		}
	}
}

// Close stops accepting new events, drains the writer, and closes the
// underlying database.
func (l *Log) Close() error {
	close(l.writes)
	<-l.done
	return l.db.Close()
}
