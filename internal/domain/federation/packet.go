package federation

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"
)

// PacketKind tags the payload carried by a Packet.
type PacketKind string

const (
	KindProposal  PacketKind = "proposal"
	KindVote      PacketKind = "vote"
	KindTelemetry PacketKind = "telemetry"
)

// Broadcast is the target used for packets addressed to every cluster.
const Broadcast = "*"

var (
	// ErrPacketExpired means the packet is older than the freshness window.
	ErrPacketExpired = errors.New("packet expired")
	// ErrBadSignature means the HMAC did not match.
	ErrBadSignature = errors.New("invalid packet signature")
)

// Packet is a signed message exchanged between clusters.
type Packet struct {
	Kind      PacketKind      `json:"kind"`
	Source    string          `json:"source"`
	Target    string          `json:"target"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"` // unix nanoseconds
	Signature string          `json:"signature"`
}

// ProposalPayload announces a new proposal.
type ProposalPayload struct {
	ID              string `json:"id"`
	OriginCluster   string `json:"origin_cluster"`
	Summary         string `json:"summary"`
	QuorumThreshold int    `json:"quorum_threshold"`
}

// VotePayload carries one cluster's vote.
type VotePayload struct {
	ProposalID string `json:"proposal_id"`
	ClusterID  string `json:"cluster_id"`
	Vote       bool   `json:"vote"`
}

// TelemetryPayload reports a cluster's locally measured fitness.
type TelemetryPayload struct {
	ClusterID string  `json:"cluster_id"`
	Fitness   float64 `json:"fitness"`
}

// DeriveClusterKey derives a cluster's signing key from the shared
// federation secret so a leaked key only compromises one cluster.
func DeriveClusterKey(secret []byte, clusterID string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("federation secret is empty")
	}
	r := hkdf.New(sha256.New, secret, nil, []byte("govcore/cluster/"+clusterID))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key for %s: %w", clusterID, err)
	}
	return key, nil
}

// NewPacket marshals payload and signs the packet with key.
func NewPacket(kind PacketKind, source, target string, payload any, key []byte, now time.Time) (*Packet, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	p := &Packet{
		Kind:      kind,
		Source:    source,
		Target:    target,
		Payload:   data,
		Timestamp: now.UnixNano(),
	}
	p.Signature = p.sign(key)
	return p, nil
}

// Verify checks freshness first, then the signature in constant time.
func (p *Packet) Verify(key []byte, now time.Time, maxAge time.Duration) error {
	if now.Sub(time.Unix(0, p.Timestamp)) > maxAge {
		return fmt.Errorf("%w: from %s", ErrPacketExpired, p.Source)
	}
	expected, err := hex.DecodeString(p.sign(key))
	if err != nil {
		return err
	}
	got, err := hex.DecodeString(p.Signature)
	if err != nil || !hmac.Equal(expected, got) {
		return fmt.Errorf("%w: from %s", ErrBadSignature, p.Source)
	}
	return nil
}

func (p *Packet) sign(key []byte) string {
	mac := hmac.New(sha256.New, key)
	_, _ = fmt.Fprintf(mac, "%s:%s:%s:%d:", p.Kind, p.Source, p.Target, p.Timestamp)
	_, _ = mac.Write(p.Payload)
	return hex.EncodeToString(mac.Sum(nil))
}
