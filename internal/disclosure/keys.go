// keys.go - Circuit compilation and Groth16 key management.

package disclosure

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// Key file names inside a key directory.
const (
	ProvingKeyFile   = "disclosure_proving.key"
	VerifyingKeyFile = "disclosure_verifying.key"
)

// Keys bundles the compiled circuit with its Groth16 keys.
type Keys struct {
	CCS          constraint.ConstraintSystem
	ProvingKey   groth16.ProvingKey
	VerifyingKey groth16.VerifyingKey
}

// CompileCircuit compiles DisclosureCircuit to R1CS over BN254.
func CompileCircuit() (constraint.ConstraintSystem, error) {
	var circuit DisclosureCircuit
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
	if err != nil {
		return nil, fmt.Errorf("circuit compilation failed: %w", err)
	}
	return ccs, nil
}

// SetupKeys compiles the circuit and runs a fresh Groth16 setup in memory.
func SetupKeys() (*Keys, error) {
	ccs, err := CompileCircuit()
	if err != nil {
		return nil, err
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("groth16 setup failed: %w", err)
	}
	return &Keys{CCS: ccs, ProvingKey: pk, VerifyingKey: vk}, nil
}

// SetupOrLoadKeys loads the keys from dir, or generates and saves them when either file is
// missing. The circuit is always compiled since proving needs it.
func SetupOrLoadKeys(dir string) (*Keys, error) {
	ccs, err := CompileCircuit()
	if err != nil {
		return nil, err
	}
	pkPath := filepath.Join(dir, ProvingKeyFile)
	vkPath := filepath.Join(dir, VerifyingKeyFile)

	pk, pkErr := LoadProvingKey(pkPath)
	vk, vkErr := LoadVerifyingKey(vkPath)
	if pkErr == nil && vkErr == nil {
		return &Keys{CCS: ccs, ProvingKey: pk, VerifyingKey: vk}, nil
	}
	if !errors.Is(pkErr, fs.ErrNotExist) && pkErr != nil {
		return nil, fmt.Errorf("load proving key: %w", pkErr)
	}
	if !errors.Is(vkErr, fs.ErrNotExist) && vkErr != nil {
		return nil, fmt.Errorf("load verifying key: %w", vkErr)
	}

	pk, vk, err = groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("groth16 setup failed: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := SaveProvingKey(pkPath, pk); err != nil {
		return nil, fmt.Errorf("save proving key: %w", err)
	}
	if err := SaveVerifyingKey(vkPath, vk); err != nil {
		return nil, fmt.Errorf("save verifying key: %w", err)
	}
	return &Keys{CCS: ccs, ProvingKey: pk, VerifyingKey: vk}, nil
}

// LoadVerifierKeys loads only the verifying key, for third parties that never prove.
func LoadVerifierKeys(dir string) (*Keys, error) {
	vk, err := LoadVerifyingKey(filepath.Join(dir, VerifyingKeyFile))
	if err != nil {
		return nil, fmt.Errorf("load verifying key: %w", err)
	}
	return &Keys{VerifyingKey: vk}, nil
}

// SaveProvingKey saves a Groth16 proving key to disk.
func SaveProvingKey(path string, pk groth16.ProvingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = pk.WriteTo(f)
	return err
}

// SaveVerifyingKey saves a Groth16 verifying key to disk.
func SaveVerifyingKey(path string, vk groth16.VerifyingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = vk.WriteTo(f)
	return err
}

// LoadProvingKey loads a BN254 Groth16 proving key from disk.
func LoadProvingKey(path string) (groth16.ProvingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pk := groth16.NewProvingKey(ecc.BN254)
	if _, err := pk.ReadFrom(f); err != nil {
		return nil, err
	}
	return pk, nil
}

// LoadVerifyingKey loads a BN254 Groth16 verifying key from disk.
func LoadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(f); err != nil {
		return nil, err
	}
	return vk, nil
}
