package nats

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/ascension-labs/govcore/internal/domain/federation"
	"github.com/ascension-labs/govcore/internal/logger"
	"github.com/ascension-labs/govcore/internal/port/messagequeue"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

// uniqueSubject returns a subject the GOVCORE stream captures but the
// validator treats as unknown, so any JSON passes.
func uniqueSubject(t *testing.T) string {
	t.Helper()
	return "federation.test." + t.Name()
}

// dlqCollector consumes <subject>.dlq directly, bypassing validation.
func dlqCollector(t *testing.T, q *Queue, subject string) <-chan []byte {
	t.Helper()
	ctx := context.Background()
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject + ".dlq",
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		t.Fatalf("create DLQ consumer: %v", err)
	}
	out := make(chan []byte, 1)
	var once sync.Once
	sub, err := consumer.Consume(func(msg jetstream.Msg) {
		once.Do(func() { out <- msg.Data() })
		_ = msg.Ack()
	})
	if err != nil {
		t.Fatalf("consume DLQ: %v", err)
	}
	t.Cleanup(sub.Stop)
	return out
}

func TestQueue_PublishSubscribe(t *testing.T) {
	q := testConnect(t)
	subject := uniqueSubject(t)

	type payload struct {
		Msg string `json:"msg"`
	}
	want := payload{Msg: "hello-nats"}
	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got := make(chan payload, 1)
	stop, err := q.Subscribe(context.Background(), subject, func(_ context.Context, _ string, d []byte) error {
		var p payload
		if err := json.Unmarshal(d, &p); err != nil {
			return err
		}
		select {
		case got <- p:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case p := <-got:
		if p.Msg != want.Msg {
			t.Errorf("got %q, want %q", p.Msg, want.Msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestQueue_SignedVoteRoundTrip(t *testing.T) {
	q := testConnect(t)

	key, err := federation.DeriveClusterKey([]byte("test-secret"), "c1")
	if err != nil {
		t.Fatal(err)
	}
	pkt, err := federation.NewPacket(federation.KindVote, "c1", federation.Broadcast,
		federation.VotePayload{ProposalID: "p-" + t.Name(), ClusterID: "c1", Vote: true}, key, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	data, _ := json.Marshal(pkt)

	got := make(chan federation.Packet, 4)
	stop, err := q.Subscribe(context.Background(), messagequeue.SubjectVotes, func(_ context.Context, _ string, d []byte) error {
		var p federation.Packet
		if err := json.Unmarshal(d, &p); err != nil {
			return err
		}
		got <- p
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), messagequeue.SubjectVotes, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case p := <-got:
			if p.Signature != pkt.Signature {
				continue
			}
			if err := p.Verify(key, time.Now(), time.Minute); err != nil {
				t.Fatalf("Verify after transport: %v", err)
			}
			return
		case <-deadline:
			t.Fatal("timed out waiting for vote packet")
		}
	}
}

func TestQueue_RequestIDPropagation(t *testing.T) {
	q := testConnect(t)
	subject := uniqueSubject(t)

	const wantReqID = "req-abc-123"

	got := make(chan string, 1)
	stop, err := q.Subscribe(context.Background(), subject, func(ctx context.Context, _ string, _ []byte) error {
		select {
		case got <- logger.RequestID(ctx):
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	ctx := logger.WithRequestID(context.Background(), wantReqID)
	if err := q.Publish(ctx, subject, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case id := <-got:
		if id != wantReqID {
			t.Errorf("request ID = %q, want %q", id, wantReqID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestQueue_InvalidPacketGoesToDLQ(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()
	subject := messagequeue.SubjectTelemetry

	dlq := dlqCollector(t, q, subject)
	stop, err := q.Subscribe(ctx, subject, func(_ context.Context, _ string, _ []byte) error { return nil })
	if err != nil {
		t.Fatalf("Subscribe main: %v", err)
	}
	defer stop()

	if err := q.Publish(ctx, subject, []byte("not-json")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case data := <-dlq:
		if string(data) != "not-json" {
			t.Errorf("DLQ data = %q, want %q", data, "not-json")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for DLQ message")
	}
}

func TestQueue_DLQ_RetryExhaustion(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()
	subject := uniqueSubject(t)

	dlq := dlqCollector(t, q, subject)
	stop, err := q.Subscribe(ctx, subject, func(_ context.Context, _ string, _ []byte) error {
		return errAlwaysFail
	})
	if err != nil {
		t.Fatalf("Subscribe main: %v", err)
	}
	defer stop()

	msg := &nats.Msg{Subject: subject, Data: []byte(`{"exhausted":true}`), Header: nats.Header{}}
	msg.Header.Set(headerRetryCount, "3")
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		t.Fatalf("PublishMsg: %v", err)
	}

	select {
	case data := <-dlq:
		if string(data) != `{"exhausted":true}` {
			t.Errorf("DLQ data = %q", data)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for DLQ message after retry exhaustion")
	}
}

func TestQueue_KeyValue(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()

	kv, err := q.KeyValue(ctx, "test-kv-"+t.Name(), 30*time.Second)
	if err != nil {
		t.Fatalf("KeyValue: %v", err)
	}

	if _, err := kv.Put(ctx, "greeting", []byte("hello")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry, err := kv.Get(ctx, "greeting")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(entry.Value()) != "hello" {
		t.Errorf("value = %q, want %q", entry.Value(), "hello")
	}
	if err := kv.Delete(ctx, "greeting"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := kv.Get(ctx, "greeting"); err == nil {
		t.Error("expected error after delete, got nil")
	}
}

func TestQueue_IsConnected(t *testing.T) {
	q := testConnect(t)
	if !q.IsConnected() {
		t.Error("IsConnected() = false after Connect, want true")
	}
}

func TestRetryCount(t *testing.T) {
	h := nats.Header{}
	if got := retryCount(h); got != 0 {
		t.Errorf("empty header = %d, want 0", got)
	}
	h.Set(headerRetryCount, "2")
	if got := retryCount(h); got != 2 {
		t.Errorf("retryCount = %d, want 2", got)
	}
	h.Set(headerRetryCount, "x")
	if got := retryCount(h); got != 0 {
		t.Errorf("malformed header = %d, want 0", got)
	}
}

// errAlwaysFail is a sentinel error used by handlers that should always fail.
var errAlwaysFail = errSentinel("handler always fails")

type errSentinel string

func (e errSentinel) Error() string { return string(e) }
