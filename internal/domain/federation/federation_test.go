package federation

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestQuorumThreshold(t *testing.T) {
	tests := []struct{ clusters, want int }{
		{0, 2}, {1, 2}, {2, 2}, {3, 2}, {4, 3}, {5, 3}, {6, 4}, {9, 5},
	}
	for _, tt := range tests {
		if got := QuorumThreshold(tt.clusters); got != tt.want {
			t.Errorf("QuorumThreshold(%d) = %d, want %d", tt.clusters, got, tt.want)
		}
	}
}

func TestProposalCloneIsDeep(t *testing.T) {
	p := Proposal{ID: "p", Votes: map[string]bool{"c1": true}}
	cp := p.Clone()
	cp.Votes["c2"] = true
	if len(p.Votes) != 1 {
		t.Error("clone shares vote map")
	}
	if cp.YesCount() != 2 || p.YesCount() != 1 {
		t.Errorf("unexpected yes counts: clone=%d orig=%d", cp.YesCount(), p.YesCount())
	}
}

func TestPacketSignVerify(t *testing.T) {
	key, err := DeriveClusterKey([]byte("federation-secret"), "c1")
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	p, err := NewPacket(KindVote, "c1", Broadcast, VotePayload{ProposalID: "p1", ClusterID: "c1", Vote: true}, key, now)
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Verify(key, now.Add(time.Second), time.Minute); err != nil {
		t.Fatalf("expected valid packet: %v", err)
	}

	var vote VotePayload
	if err := json.Unmarshal(p.Payload, &vote); err != nil || !vote.Vote {
		t.Fatalf("payload round trip failed: %v %+v", err, vote)
	}
}

func TestPacketRejectsTamperingAndAge(t *testing.T) {
	key, _ := DeriveClusterKey([]byte("federation-secret"), "c1")
	other, _ := DeriveClusterKey([]byte("federation-secret"), "c2")
	now := time.Now()
	p, _ := NewPacket(KindVote, "c1", Broadcast, VotePayload{ProposalID: "p1", ClusterID: "c1"}, key, now)

	if err := p.Verify(other, now, time.Minute); !errors.Is(err, ErrBadSignature) {
		t.Errorf("wrong key: got %v, want ErrBadSignature", err)
	}

	tampered := *p
	tampered.Payload = json.RawMessage(`{"proposal_id":"p1","cluster_id":"c1","vote":true}`)
	if err := tampered.Verify(key, now, time.Minute); !errors.Is(err, ErrBadSignature) {
		t.Errorf("tampered payload: got %v, want ErrBadSignature", err)
	}

	if err := p.Verify(key, now.Add(2*time.Minute), time.Minute); !errors.Is(err, ErrPacketExpired) {
		t.Errorf("stale packet: got %v, want ErrPacketExpired", err)
	}
}

func TestDeriveClusterKeyDistinct(t *testing.T) {
	a, _ := DeriveClusterKey([]byte("s"), "a")
	b, _ := DeriveClusterKey([]byte("s"), "b")
	if string(a) == string(b) {
		t.Error("expected distinct keys per cluster")
	}
	if _, err := DeriveClusterKey(nil, "a"); err == nil {
		t.Error("expected error for empty secret")
	}
}
