// placeholder.go - Hash-derived stand-in for a Groth16 proof.
//
// WARNING: the placeholder blob is a deterministic function of the public signals. It has the
// Groth16 wire shape and detects tampering with any signal, but it proves nothing and is not
// zero-knowledge. Use the Groth16 backend when soundness matters.

package disclosure

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
)

// MethodPlaceholder identifies the placeholder backend in VerificationResult.Method.
const MethodPlaceholder = "placeholder-sha256"

type placeholderBackend struct{}

// NewPlaceholder returns an Engine on the placeholder backend.
func NewPlaceholder(opts ...Option) *Engine {
	return newEngine(placeholderBackend{}, opts...)
}

var defaultEngine = NewPlaceholder()

// GenerateProof generates a placeholder proof with default options.
func GenerateProof(stats MedicalStats, salt *Salt, thresholds Thresholds) (*Proof, error) {
	return defaultEngine.GenerateProof(stats, salt, thresholds)
}

// Verify verifies a placeholder proof.
func Verify(p *Proof) VerificationResult {
	return defaultEngine.Verify(p)
}

func (placeholderBackend) method() string { return MethodPlaceholder }

func (placeholderBackend) commit(in commitmentInputs) *big.Int {
	return sha256Commitment(in)
}

func (placeholderBackend) prove(_ commitmentInputs, signals []string) (ProofBlob, error) {
	return deriveBlob(signals), nil
}

func (placeholderBackend) check(p *Proof, _ *statement) error {
	want := deriveBlob(p.PublicSignals)
	if !blobEqual(p.Blob, want) {
		return errors.New("proof blob does not match the public signals")
	}
	return checkProofHash(p)
}

func checkProofHash(p *Proof) error {
	hash, err := proofHash(p.Blob)
	if err != nil {
		return fmt.Errorf("proof hash: %w", err)
	}
	if hash != p.Metadata.ProofHash {
		return errors.New("proofHash does not match the proof blob")
	}
	return nil
}

// deriveBlob expands each component from SHA-256(tag || 0x00 || statement) by repeated
// hashing, one digest per coordinate, reduced into the BN254 base field.
func deriveBlob(signals []string) ProofBlob {
	statement := strings.Join(signals, ",")
	a := hashChain(tagPiA, statement, 2)
	b := hashChain(tagPiB, statement, 4)
	c := hashChain(tagPiC, statement, 2)
	return ProofBlob{
		PiA:      []string{a[0], a[1], "1"},
		PiB:      [][]string{{b[0], b[1]}, {b[2], b[3]}, {"1", "0"}},
		PiC:      []string{c[0], c[1], "1"},
		Protocol: ProtocolGroth16,
		Curve:    CurveBN128,
	}
}

func hashChain(tag, statement string, n int) []string {
	h := sha256.New()
	h.Write([]byte(tag))
	h.Write([]byte{0})
	h.Write([]byte(statement))
	digest := h.Sum(nil)

	out := make([]string, n)
	for i := range out {
		v := new(big.Int).SetBytes(digest)
		out[i] = v.Mod(v, fp.Modulus()).String()
		next := sha256.Sum256(digest)
		digest = next[:]
	}
	return out
}

func blobEqual(a, b ProofBlob) bool {
	if a.Protocol != b.Protocol || a.Curve != b.Curve {
		return false
	}
	if !slices.Equal(a.PiA, b.PiA) || !slices.Equal(a.PiC, b.PiC) {
		return false
	}
	return slices.EqualFunc(a.PiB, b.PiB, slices.Equal[[]string])
}
