// Package commitment implements the canonical commitment engine for study protocols.
//
// Overview:
//   - A StudyProtocol is reduced to its commitment surface (condition, treatment, comparator,
//     inclusion criteria, primary endpoint, design, enrollment, regulatory identifiers)
//   - The surface is serialized as compact JSON with object keys sorted at every level
//   - The serialized bytes are hashed with SHA-256; the lowercase hex digest is the StudyCommitment
//
// Two parties (a hospital and a researcher) that hold logically identical protocols compute the
// same StudyCommitment independently, and can compare digests instead of exchanging the protocol.
//
// Documented defaults: blinding "open-label", randomization "none". All other absent fields are
// omitted from the canonical form.
package commitment
