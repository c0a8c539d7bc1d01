package portalauth

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

// blockingSink holds the worker inside Emit until release is called.
type blockingSink struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSink) Emit(context.Context, AuditEvent) {
	s.entered <- struct{}{}
	<-s.release
}

// startStalled returns a dispatcher whose worker is stuck on the first event and
// whose queue of size one is full.
func startStalled(t *testing.T, dropIfFull bool) (*auditDispatcher, *blockingSink) {
	t.Helper()
	sink := &blockingSink{entered: make(chan struct{}, 8), release: make(chan struct{})}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: dropIfFull}, sink)
	t.Cleanup(func() {
		close(sink.release)
		d.Close()
	})
	d.Emit(context.Background(), AuditEvent{EventType: AuditLogin})
	<-sink.entered
	d.Emit(context.Background(), AuditEvent{EventType: AuditLogout})
	return d, sink
}

func TestNilDispatcherIsInert(t *testing.T) {
	sink := &countingSink{}
	d := newAuditDispatcher(AuditConfig{}, sink)
	if d != nil {
		t.Fatal("disabled audit must not start a dispatcher")
	}
	d.Emit(context.Background(), AuditEvent{EventType: AuditLogin})
	d.Close()
	if sink.Count() != 0 || d.Dropped() != 0 || d.Emitted() != 0 {
		t.Fatal("nil dispatcher recorded activity")
	}
}

func TestDropIfFullNeverWaits(t *testing.T) {
	d, _ := startStalled(t, true)

	returned := make(chan struct{})
	go func() {
		d.Emit(context.Background(), AuditEvent{EventType: AuditRegister})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("emit waited on a full queue")
	}
	if d.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", d.Dropped())
	}
}

func TestFullQueueWaitsForRoom(t *testing.T) {
	d, sink := startStalled(t, false)

	returned := make(chan struct{})
	go func() {
		d.Emit(context.Background(), AuditEvent{EventType: AuditRegister})
		close(returned)
	}()
	select {
	case <-returned:
		t.Fatal("emit returned while the queue was full")
	case <-time.After(100 * time.Millisecond):
	}

	sink.release <- struct{}{}
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("emit still waiting after the worker made room")
	}
}

func TestFullQueueGivesUpWithContext(t *testing.T) {
	d, _ := startStalled(t, false)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Emit(ctx, AuditEvent{EventType: AuditRegister})
	if d.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", d.Dropped())
	}
}

func TestCloseDeliversQueuedEvents(t *testing.T) {
	sink := &countingSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16}, sink)

	for range 10 {
		d.Emit(context.Background(), AuditEvent{EventType: AuditLogout})
	}
	d.Close()
	d.Close()
	d.Emit(context.Background(), AuditEvent{EventType: AuditLogin})

	if sink.Count() != 10 || d.Emitted() != 10 {
		t.Fatalf("delivered sink=%d emitted=%d, want 10", sink.Count(), d.Emitted())
	}
}

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: AuditSessionInvalidated,
		UserID:    "u1",
		RequestID: "req-1",
		Success:   true,
	})

	if !buf.Contains(`"event_type":"session_invalidated"`) {
		t.Fatal("expected JSON log line to contain event type")
	}
	if !buf.Contains(`"request_id":"req-1"`) {
		t.Fatal("expected JSON log line to contain request id")
	}
}

func TestAuditZerologSinkLevels(t *testing.T) {
	var out bytes.Buffer
	sink := NewZerologSink(zerolog.New(&out))

	sink.Emit(context.Background(), AuditEvent{EventType: AuditLogin, UserID: "u1", Success: true})
	sink.Emit(context.Background(), AuditEvent{
		EventType: AuditVerificationFailed,
		Error:     string(auditErrNetwork),
		Metadata:  map[string]string{"action": "resend"},
	})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %q", len(lines), out.String())
	}
	if !strings.Contains(lines[0], `"level":"info"`) || !strings.Contains(lines[0], `"user_id":"u1"`) {
		t.Fatalf("unexpected success line: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"level":"warn"`) || !strings.Contains(lines[1], `"action":"resend"`) {
		t.Fatalf("unexpected failure line: %s", lines[1])
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) Contains(v string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Contains(string(b.buf), v)
}
