// crypto.go - DataCommitment hashes and the proof hash.
//
// Both commitments land in the BN254 scalar field so the public signals are valid field
// elements for either backend. The SHA-256 variant stands in for a SNARK-friendly hash.

package disclosure

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// Domain separation tags. Each tag prefixes exactly one kind of hash input.
const (
	tagDataCommitment = "medproof.data.v1"
	tagProofHash      = "medproof.proof.v1"
	tagPiA            = "medproof.pi_a.v1"
	tagPiB            = "medproof.pi_b.v1"
	tagPiC            = "medproof.pi_c.v1"
)

// commitmentInputs is the ordered tuple bound by the DataCommitment.
type commitmentInputs struct {
	PatientCount     int64
	TreatmentSuccess int64
	ControlSuccess   int64
	ControlCount     int64
	PValueScaled     int64
	Salt             fr.Element
}

func newCommitmentInputs(s MedicalStats, salt fr.Element) commitmentInputs {
	return commitmentInputs{
		PatientCount:     s.PatientCount,
		TreatmentSuccess: s.TreatmentSuccess,
		ControlSuccess:   s.ControlSuccess,
		ControlCount:     s.ControlCount,
		PValueScaled:     PValueScaled(s.PValue),
		Salt:             salt,
	}
}

func (in commitmentInputs) counts() []int64 {
	return []int64{in.PatientCount, in.TreatmentSuccess, in.ControlSuccess, in.ControlCount, in.PValueScaled}
}

// sha256Commitment computes H(tag || 0x00 || u64be(count)... || salt) reduced modulo r.
func sha256Commitment(in commitmentInputs) *big.Int {
	h := sha256.New()
	h.Write([]byte(tagDataCommitment))
	h.Write([]byte{0})
	var buf [8]byte
	for _, v := range in.counts() {
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	saltBytes := in.Salt.Bytes()
	h.Write(saltBytes[:])
	n := new(big.Int).SetBytes(h.Sum(nil))
	return n.Mod(n, fr.Modulus())
}

// mimcTag is the domain tag as a field element, absorbed first by the MiMC commitment.
func mimcTag() *big.Int {
	return new(big.Int).SetBytes([]byte(tagDataCommitment))
}

// mimcCommitment computes MiMC(tag, counts..., salt) over BN254, matching DisclosureCircuit.
func mimcCommitment(in commitmentInputs) *big.Int {
	h := mimc.NewMiMC()
	var e fr.Element
	e.SetBigInt(mimcTag())
	writeElement(h, e)
	for _, v := range in.counts() {
		e.SetInt64(v)
		writeElement(h, e)
	}
	writeElement(h, in.Salt)
	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out.BigInt(new(big.Int))
}

func writeElement(h interface{ Write([]byte) (int, error) }, e fr.Element) {
	b := e.Bytes()
	h.Write(b[:])
}

// proofHash is the lowercase hex SHA-256 of the tagged blob encoding.
func proofHash(b ProofBlob) (string, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(tagProofHash))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
