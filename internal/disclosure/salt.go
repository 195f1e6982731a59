// salt.go - Single-use blinding salts on the BN254 scalar field.

package disclosure

import (
	"math/big"
	"sync/atomic"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"medproof/internal/apperr"
)

var (
	ErrInvalidSalt = apperr.New(apperr.CodeInvalidSalt, "")
	ErrSaltReused  = apperr.New(apperr.CodeSaltReused, "")
)

// Salt is a random non-zero scalar consumed by exactly one proof. Pass it by pointer.
type Salt struct {
	v    fr.Element
	used atomic.Bool
}

// NewSalt draws a fresh salt from crypto/rand.
func NewSalt() (*Salt, error) {
	s := new(Salt)
	for s.v.IsZero() {
		if _, err := s.v.SetRandom(); err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, err, "salt generation failed")
		}
	}
	return s, nil
}

// ParseSalt reads a decimal salt in (0, r) where r is the BN254 scalar field modulus.
func ParseSalt(dec string) (*Salt, error) {
	n, ok := new(big.Int).SetString(dec, 10)
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidSalt, "salt must be a decimal integer")
	}
	if n.Sign() <= 0 || n.Cmp(fr.Modulus()) >= 0 {
		return nil, apperr.New(apperr.CodeInvalidSalt, "salt must be within (0, r)")
	}
	s := new(Salt)
	s.v.SetBigInt(n)
	return s, nil
}

// String returns the decimal value.
func (s *Salt) String() string {
	return s.v.BigInt(new(big.Int)).String()
}

// Used reports whether the salt has been consumed.
func (s *Salt) Used() bool { return s.used.Load() }

// consume marks the salt as used. It fails on nil and on a second call.
func (s *Salt) consume() (fr.Element, error) {
	if s == nil {
		return fr.Element{}, apperr.New(apperr.CodeInvalidSalt, "salt is required")
	}
	if !s.used.CompareAndSwap(false, true) {
		return fr.Element{}, apperr.New(apperr.CodeSaltReused, "salt has already been used for a proof")
	}
	return s.v, nil
}
