// message.go - Wire envelopes and payloads exchanged between nodes.

package peer

import "encoding/json"

// Message types understood by every node.
const (
	TypePing               = "ping"
	TypeCommitmentAnnounce = "commitment_announce"
)

// Message is the envelope for any message sent over the network.
type Message struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	SenderID string          `json:"senderId"`
}

// Reply is returned in the HTTP response body for every handled message.
type Reply struct {
	SenderID string          `json:"senderId"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// AnnouncePayload announces a study commitment. StudyID is the sender's local identifier and
// is only used for logging on the receiving side.
type AnnouncePayload struct {
	StudyID    string `json:"studyId"`
	Commitment string `json:"commitment"`
}

// AnnounceReply tells the sender whether the receiver holds a study with the same commitment.
type AnnounceReply struct {
	Match bool `json:"match"`
}

// PingReply answers a ping.
type PingReply struct {
	NodeID string `json:"nodeId"`
}
