package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ascension-labs/govcore/internal/domain"
	"github.com/ascension-labs/govcore/internal/domain/federation"
	"github.com/ascension-labs/govcore/internal/logger"
	"github.com/ascension-labs/govcore/internal/port/messagequeue"
)

// FederationBus carries proposals, votes and fitness telemetry between
// clusters as signed packets, and applies verified remote packets to the
// local consensus engine.
type FederationBus struct {
	self      string
	secret    []byte
	key       []byte
	maxAge    time.Duration
	queue     messagequeue.Queue
	consensus *ConsensusEngine
	now       func() time.Time

	mu      sync.RWMutex
	keys    map[string][]byte
	fitness map[string]float64
	stops   []func()
}

// NewFederationBus creates a bus for cluster self. Packets older than
// maxAge are dropped.
func NewFederationBus(self string, secret []byte, maxAge time.Duration, queue messagequeue.Queue, consensus *ConsensusEngine) (*FederationBus, error) {
	if self == "" {
		return nil, domain.Validationf("federation bus: cluster id is required")
	}
	key, err := federation.DeriveClusterKey(secret, self)
	if err != nil {
		return nil, domain.Validationf("federation bus: %v", err)
	}
	if maxAge <= 0 {
		maxAge = time.Minute
	}
	return &FederationBus{
		self:      self,
		secret:    secret,
		key:       key,
		maxAge:    maxAge,
		queue:     queue,
		consensus: consensus,
		now:       time.Now,
		keys:      map[string][]byte{self: key},
		fitness:   make(map[string]float64),
	}, nil
}

// Self returns this cluster's id.
func (b *FederationBus) Self() string { return b.self }

// Start subscribes to the federation subjects.
func (b *FederationBus) Start(ctx context.Context) error {
	for _, subject := range []string{messagequeue.SubjectProposals, messagequeue.SubjectVotes, messagequeue.SubjectTelemetry} {
		stop, err := b.queue.Subscribe(ctx, subject, b.handle)
		if err != nil {
			b.Stop()
			return fmt.Errorf("federation bus subscribe %s: %w", subject, err)
		}
		b.mu.Lock()
		b.stops = append(b.stops, stop)
		b.mu.Unlock()
	}
	slog.Info("federation bus started", "cluster_id", b.self)
	return nil
}

// Stop cancels all subscriptions.
func (b *FederationBus) Stop() {
	b.mu.Lock()
	stops := b.stops
	b.stops = nil
	b.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
}

// Propose submits a proposal originating from this cluster and announces
// it with its fixed quorum threshold.
func (b *FederationBus) Propose(ctx context.Context, id, summary string) (federation.Proposal, error) {
	p, err := b.consensus.SubmitProposal(ctx, id, b.self, summary)
	if err != nil {
		return federation.Proposal{}, err
	}
	err = b.publish(ctx, messagequeue.SubjectProposals, federation.KindProposal, federation.ProposalPayload{
		ID:              p.ID,
		OriginCluster:   p.OriginCluster,
		Summary:         p.Summary,
		QuorumThreshold: p.QuorumThreshold,
	})
	return p, err
}

// Vote casts this cluster's vote locally and broadcasts it.
func (b *FederationBus) Vote(ctx context.Context, proposalID string, vote bool) (bool, error) {
	executed, err := b.consensus.CastVote(ctx, proposalID, b.self, vote)
	if err != nil {
		return false, err
	}
	err = b.publish(ctx, messagequeue.SubjectVotes, federation.KindVote, federation.VotePayload{
		ProposalID: proposalID,
		ClusterID:  b.self,
		Vote:       vote,
	})
	return executed, err
}

// ReportFitness records this cluster's fitness and broadcasts it.
func (b *FederationBus) ReportFitness(ctx context.Context, fitness float64) error {
	b.recordFitness(b.self, fitness)
	return b.publish(ctx, messagequeue.SubjectTelemetry, federation.KindTelemetry, federation.TelemetryPayload{
		ClusterID: b.self,
		Fitness:   fitness,
	})
}

// AggregateFitness is the mean of the latest fitness reported by each
// cluster. ok is false before any report.
func (b *FederationBus) AggregateFitness() (fitness float64, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.fitness) == 0 {
		return 0, false
	}
	var sum float64
	for _, f := range b.fitness {
		sum += f
	}
	return sum / float64(len(b.fitness)), true
}

// Fitness returns a copy of the latest fitness per cluster.
func (b *FederationBus) Fitness() map[string]float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]float64, len(b.fitness))
	for k, v := range b.fitness {
		out[k] = v
	}
	return out
}

func (b *FederationBus) recordFitness(clusterID string, f float64) {
	b.mu.Lock()
	b.fitness[clusterID] = f
	b.mu.Unlock()
}

func (b *FederationBus) publish(ctx context.Context, subject string, kind federation.PacketKind, payload any) error {
	pkt, err := federation.NewPacket(kind, b.self, federation.Broadcast, payload, b.key, b.now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(pkt)
	if err != nil {
		return fmt.Errorf("marshal %s packet: %w", kind, err)
	}
	if err := b.queue.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	return nil
}

// keyFor returns the verification key for clusterID. Keys derived for an
// unknown source are cached only once a packet from it verifies.
func (b *FederationBus) keyFor(clusterID string) (key []byte, cached bool, err error) {
	b.mu.RLock()
	k, ok := b.keys[clusterID]
	b.mu.RUnlock()
	if ok {
		return k, true, nil
	}
	k, err = federation.DeriveClusterKey(b.secret, clusterID)
	if err != nil {
		return nil, false, err
	}
	return k, false, nil
}

func (b *FederationBus) rememberKey(clusterID string, key []byte) {
	b.mu.Lock()
	b.keys[clusterID] = key
	b.mu.Unlock()
}

// handle verifies and applies one packet. Returning an error asks the
// queue to redeliver, which is only useful for votes that arrive before
// their proposal.
func (b *FederationBus) handle(ctx context.Context, subject string, data []byte) error {
	var pkt federation.Packet
	if err := json.Unmarshal(data, &pkt); err != nil {
		slog.WarnContext(ctx, "dropping malformed packet", "subject", subject, "error", err)
		return nil
	}
	if pkt.Source == b.self {
		return nil
	}
	if pkt.Source == federation.SafetyOrchestrator {
		slog.WarnContext(ctx, "dropping packet claiming the safety orchestrator", "subject", subject)
		return nil
	}
	if pkt.Target != federation.Broadcast && pkt.Target != b.self {
		return nil
	}
	ctx = logger.WithClusterID(ctx, pkt.Source)

	key, cached, err := b.keyFor(pkt.Source)
	if err != nil {
		slog.WarnContext(ctx, "dropping packet", "subject", subject, "error", err)
		return nil
	}
	if err := pkt.Verify(key, b.now(), b.maxAge); err != nil {
		slog.WarnContext(ctx, "dropping unverified packet", "subject", subject, "kind", pkt.Kind, "error", err)
		return nil
	}
	if !cached {
		b.rememberKey(pkt.Source, key)
	}

	switch pkt.Kind {
	case federation.KindProposal:
		return b.applyProposal(ctx, &pkt)
	case federation.KindVote:
		return b.applyVote(ctx, &pkt)
	case federation.KindTelemetry:
		return b.applyTelemetry(ctx, &pkt)
	default:
		slog.WarnContext(ctx, "dropping packet of unknown kind", "kind", pkt.Kind)
		return nil
	}
}

func (b *FederationBus) applyProposal(ctx context.Context, pkt *federation.Packet) error {
	var p federation.ProposalPayload
	if err := json.Unmarshal(pkt.Payload, &p); err != nil {
		slog.WarnContext(ctx, "dropping proposal packet", "error", err)
		return nil
	}
	if p.OriginCluster != pkt.Source {
		slog.WarnContext(ctx, "dropping proposal with mismatched origin", "origin", p.OriginCluster)
		return nil
	}
	_, err := b.consensus.AdoptProposal(ctx, p.ID, p.OriginCluster, p.Summary, p.QuorumThreshold)
	switch {
	case err == nil, errors.Is(err, domain.ErrStateConflict):
		return nil
	case errors.Is(err, domain.ErrValidation):
		slog.WarnContext(ctx, "dropping invalid proposal", "proposal_id", p.ID, "error", err)
		return nil
	default:
		return err
	}
}

func (b *FederationBus) applyVote(ctx context.Context, pkt *federation.Packet) error {
	var v federation.VotePayload
	if err := json.Unmarshal(pkt.Payload, &v); err != nil {
		slog.WarnContext(ctx, "dropping vote packet", "error", err)
		return nil
	}
	if v.ClusterID != pkt.Source {
		slog.WarnContext(ctx, "dropping vote cast on behalf of another cluster", "voter", v.ClusterID)
		return nil
	}
	_, err := b.consensus.CastVote(logger.WithProposalID(ctx, v.ProposalID), v.ProposalID, v.ClusterID, v.Vote)
	if errors.Is(err, domain.ErrValidation) {
		return nil
	}
	return err
}

func (b *FederationBus) applyTelemetry(ctx context.Context, pkt *federation.Packet) error {
	var tm federation.TelemetryPayload
	if err := json.Unmarshal(pkt.Payload, &tm); err != nil || tm.ClusterID != pkt.Source {
		slog.WarnContext(ctx, "dropping telemetry packet", "error", err)
		return nil
	}
	b.recordFitness(tm.ClusterID, tm.Fitness)
	return nil
}
