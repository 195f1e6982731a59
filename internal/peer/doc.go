// Package peer lets a hospital and a researcher confirm they hold the same study protocol.
//
// Overview:
//   - Nodes exchange JSON envelopes over HTTP POST /message
//   - commitment_announce asks a peer whether it has a study with the given commitment
//   - ping keeps a per-peer health view for the health endpoint
//
// Security Model:
//   - Only commitments cross the wire; protocols and statistics never do
//   - A match says both sides committed to byte-identical canonical protocols
//   - Peers are not authenticated; deploy behind a trusted network or TLS terminator
package peer
