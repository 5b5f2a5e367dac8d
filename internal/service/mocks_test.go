package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ascension-labs/govcore/internal/domain"
	"github.com/ascension-labs/govcore/internal/domain/experiment"
	"github.com/ascension-labs/govcore/internal/domain/federation"
	"github.com/ascension-labs/govcore/internal/domain/governance"
	"github.com/ascension-labs/govcore/internal/port/broadcast"
	"github.com/ascension-labs/govcore/internal/port/ledger"
	"github.com/ascension-labs/govcore/internal/port/messagequeue"
	"github.com/ascension-labs/govcore/internal/port/reasoning"
)

// Ensure mock types implement their interfaces at compile time.
var (
	_ broadcast.Broadcaster = (*mockBroadcaster)(nil)
	_ reasoning.Provider    = (*mockProvider)(nil)
	_ ledger.Store          = (*mockStore)(nil)
	_ messagequeue.Queue    = (*mockQueue)(nil)
)

type mockBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (m *mockBroadcaster) BroadcastEvent(_ context.Context, eventType string, _ any) {
	m.mu.Lock()
	m.events = append(m.events, eventType)
	m.mu.Unlock()
}

func (m *mockBroadcaster) count(eventType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e == eventType {
			n++
		}
	}
	return n
}

// mockProvider answers with fn and records every request.
type mockProvider struct {
	mu       sync.Mutex
	requests []reasoning.Request
	fn       func(req reasoning.Request) (*reasoning.Response, error)
}

func (m *mockProvider) Generate(_ context.Context, req reasoning.Request) (*reasoning.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	fn := m.fn
	m.mu.Unlock()
	if fn == nil {
		return &reasoning.Response{Text: "ok"}, nil
	}
	return fn(req)
}

func (m *mockProvider) calls() []reasoning.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]reasoning.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// echoRole answers each builtin role with "<Role> done", taking the role
// from the "You are the <Role>." opening of its prompt.
func echoRole(req reasoning.Request) (*reasoning.Response, error) {
	_, rest, _ := strings.Cut(req.SystemPrompt, "You are the ")
	role, _, _ := strings.Cut(rest, ".")
	return &reasoning.Response{Text: role + " done"}, nil
}

type mockStore struct {
	mu          sync.Mutex
	changes     []governance.PolicyChange
	proposals   map[string]federation.Proposal
	saves       []federation.Proposal
	experiments map[string]experiment.Experiment
	err         error
}

func newMockStore() *mockStore {
	return &mockStore{
		proposals:   make(map[string]federation.Proposal),
		experiments: make(map[string]experiment.Experiment),
	}
}

func (m *mockStore) AppendPolicyChange(_ context.Context, c *governance.PolicyChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.changes = append(m.changes, *c)
	return nil
}

func (m *mockStore) ListPolicyChanges(_ context.Context, parameter string) ([]governance.PolicyChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []governance.PolicyChange
	for _, c := range m.changes {
		if parameter == "" || c.Parameter == parameter {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockStore) SaveProposal(_ context.Context, p *federation.Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.proposals[p.ID] = p.Clone()
	m.saves = append(m.saves, p.Clone())
	return nil
}

func (m *mockStore) GetProposal(_ context.Context, id string) (*federation.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[id]
	if !ok {
		return nil, fmt.Errorf("proposal %s: %w", id, domain.ErrNotFound)
	}
	cp := p.Clone()
	return &cp, nil
}

func (m *mockStore) SaveExperiment(_ context.Context, e *experiment.Experiment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.experiments[e.ID] = *e
	return nil
}

func (m *mockStore) GetExperiment(_ context.Context, id string) (*experiment.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.experiments[id]
	if !ok {
		return nil, fmt.Errorf("experiment %s: %w", id, domain.ErrNotFound)
	}
	return &e, nil
}

func (m *mockStore) Close() error { return nil }

// mockQueue delivers published messages synchronously to every handler
// subscribed on any queue sharing the same mockNetwork.
type mockQueue struct {
	net *mockNetwork
}

type mockNetwork struct {
	mu       sync.Mutex
	handlers map[string][]messagequeue.Handler
	sent     []string
}

func newMockNetwork() *mockNetwork {
	return &mockNetwork{handlers: make(map[string][]messagequeue.Handler)}
}

func (n *mockNetwork) queue() *mockQueue { return &mockQueue{net: n} }

func (q *mockQueue) Publish(ctx context.Context, subject string, data []byte) error {
	q.net.mu.Lock()
	hs := append([]messagequeue.Handler(nil), q.net.handlers[subject]...)
	q.net.sent = append(q.net.sent, subject)
	q.net.mu.Unlock()
	for _, h := range hs {
		if err := h(ctx, subject, data); err != nil {
			return err
		}
	}
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	q.net.mu.Lock()
	q.net.handlers[subject] = append(q.net.handlers[subject], handler)
	q.net.mu.Unlock()
	return func() {}, nil
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }
