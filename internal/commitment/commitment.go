// commitment.go - StudyCommitment computation.

package commitment

import (
	"crypto/sha256"
	"encoding/hex"

	"medproof/internal/apperr"
)

// DigestHexLen is the length of a StudyCommitment in hex characters.
const DigestHexLen = sha256.Size * 2

// StudyCommitment is the lowercase hex SHA-256 digest of a canonical StudyProtocol.
type StudyCommitment string

func (c StudyCommitment) String() string { return string(c) }

// ParseStudyCommitment accepts exactly 64 lowercase hex characters.
func ParseStudyCommitment(s string) (StudyCommitment, error) {
	if len(s) != DigestHexLen {
		return "", apperr.Newf(apperr.CodeInvalidArgument, "study commitment must be %d hex characters", DigestHexLen)
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return "", apperr.New(apperr.CodeInvalidArgument, "study commitment must be lowercase hex")
		}
	}
	return StudyCommitment(s), nil
}

// Canonicalize returns the canonical serialization of p's commitment surface.
func Canonicalize(p *StudyProtocol) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	data, err := marshalCanonical(canonicalObject(p))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "canonical serialization failed")
	}
	return data, nil
}

// Commit computes the StudyCommitment of p.
// Steps:
//  1. Validate required fields (condition, treatment, age range, gender)
//  2. Build the canonical object, applying documented defaults
//  3. Serialize with keys sorted at every level
//  4. SHA-256 the bytes and hex encode
func Commit(p *StudyProtocol) (StudyCommitment, error) {
	data, err := Canonicalize(p)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return StudyCommitment(hex.EncodeToString(sum[:])), nil
}

// CommitJSON parses a JSON protocol and commits to it.
func CommitJSON(data []byte) (StudyCommitment, error) {
	p, err := ParseProtocol(data)
	if err != nil {
		return "", err
	}
	return Commit(p)
}
