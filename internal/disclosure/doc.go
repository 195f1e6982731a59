// Package disclosure generates and verifies statistical-disclosure proofs.
//
// Overview:
//   - A hospital holds private aggregate MedicalStats for a study arm
//   - GenerateProof binds the stats to a single-use Salt in a DataCommitment and evaluates the
//     disclosure predicates (sample size, efficacy, significance) against public Thresholds
//   - The resulting Proof exposes only PublicSignals, a proof blob and derived Metadata
//   - Verify is callable by any third party and needs no secrets
//
// Backends:
//   - Placeholder ("placeholder-sha256"): SHA-256 DataCommitment and a hash-derived blob with the
//     Groth16 wire shape. It is a development stub and is NOT zero-knowledge or sound; anyone who
//     knows the public signals can recompute the blob
//   - Groth16 ("groth16-bn254"): a gnark circuit over BN254 with a MiMC DataCommitment; the proof
//     points are checked against a verifying key
//
// Security Model:
//   - Salts come from crypto/rand on the BN254 scalar field and are consumed on first use
//   - The verifier recomputes everything checkable from PublicSignals and rejects Metadata that
//     contradicts them
//   - PublicSignals order is a wire contract:
//     [minPatients, minEfficacyRatePercent, maxPValueScaled, dataCommitment,
//     validSampleSize, validEfficacy, validSignificance, overallValid]
package disclosure
