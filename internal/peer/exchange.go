// exchange.go - Commitment announcement between a hospital and a researcher.

package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"medproof/internal/commitment"
	"medproof/internal/store"
)

// Lookup reports whether a study with the given commitment is held locally.
type Lookup func(ctx context.Context, cm commitment.StudyCommitment) (bool, error)

// StoreLookup resolves commitments against a commitment store.
func StoreLookup(s store.CommitmentStore) Lookup {
	return func(ctx context.Context, cm commitment.StudyCommitment) (bool, error) {
		_, err := s.GetStudy(ctx, cm.String())
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
}

// EnableCommitmentExchange answers commitment_announce messages using lookup.
func (n *Node) EnableCommitmentExchange(lookup Lookup) {
	n.RegisterHandler(TypeCommitmentAnnounce, func(ctx context.Context, n *Node, msg Message) (any, error) {
		var p AnnouncePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid announce payload: %w", err)
		}
		cm, err := commitment.ParseStudyCommitment(p.Commitment)
		if err != nil {
			return nil, err
		}
		match, err := lookup(ctx, cm)
		if err != nil {
			return nil, err
		}
		n.log.Info().
			Str("from", msg.SenderID).
			Str("remoteStudyId", p.StudyID).
			Str("commitment", p.Commitment).
			Bool("match", match).
			Msg("commitment announced")
		return AnnounceReply{Match: match}, nil
	})
}

// AnnounceCommitment asks targetID whether it holds the same study.
func (n *Node) AnnounceCommitment(ctx context.Context, targetID, studyID string, cm commitment.StudyCommitment) (bool, error) {
	raw, err := n.SendMessage(ctx, targetID, TypeCommitmentAnnounce, AnnouncePayload{StudyID: studyID, Commitment: cm.String()})
	if err != nil {
		return false, err
	}
	var reply AnnounceReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return false, fmt.Errorf("invalid announce reply from %s: %w", targetID, err)
	}
	return reply.Match, nil
}
