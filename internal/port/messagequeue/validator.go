package messagequeue

import (
	"encoding/json"
	"fmt"

	"github.com/ascension-labs/govcore/internal/domain/federation"
)

// kinds maps each federation subject to the packet kind it may carry.
var kinds = map[string]federation.PacketKind{
	SubjectProposals: federation.KindProposal,
	SubjectVotes:     federation.KindVote,
	SubjectTelemetry: federation.KindTelemetry,
}

// Validate checks that data is a packet envelope whose kind matches the
// subject and whose payload decodes into the kind's schema. Signatures are
// not checked here. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}
	want, ok := kinds[subject]
	if !ok {
		return nil
	}

	var pkt federation.Packet
	if err := json.Unmarshal(data, &pkt); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	if pkt.Kind != want {
		return fmt.Errorf("schema validation failed for %s: packet kind %q, want %q", subject, pkt.Kind, want)
	}
	if pkt.Source == "" {
		return fmt.Errorf("schema validation failed for %s: missing source", subject)
	}

	var target any
	switch want {
	case federation.KindProposal:
		target = &federation.ProposalPayload{}
	case federation.KindVote:
		target = &federation.VotePayload{}
	case federation.KindTelemetry:
		target = &federation.TelemetryPayload{}
	}
	if err := json.Unmarshal(pkt.Payload, target); err != nil {
		return fmt.Errorf("schema validation failed for %s payload: %w", subject, err)
	}
	return nil
}
