package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"medproof/internal/disclosure"
)

const protocolJSON = `{
  "condition": {"code": "I10", "system": "ICD-10"},
  "treatment": {"code": "C09AA05", "display": "Ramipril"},
  "inclusionCriteria": {"ageRange": {"min": 40, "max": 80}, "gender": "all"}
}`

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.RunContext(context.Background(), append([]string{"medproofd"}, args...))
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCommitCommand(t *testing.T) {
	out, err := runApp(t, "commit", writeFile(t, "protocol.json", protocolJSON))
	require.NoError(t, err)
	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got["commitment"], 64)

	_, err = runApp(t, "commit")
	require.Error(t, err)
}

func TestProveAndVerifyCommands(t *testing.T) {
	stats := writeFile(t, "stats.json", `{"patientCount":1670,"treatmentSuccess":1303,"controlSuccess":428,"controlCount":823,"pValue":0.0001}`)
	out, err := runApp(t, "prove", "--min-patients", "1000", stats)
	require.NoError(t, err)

	var proof disclosure.Proof
	require.NoError(t, json.Unmarshal([]byte(out), &proof))
	require.Equal(t, "1000", proof.PublicSignals[disclosure.SignalMinPatients])
	require.Equal(t, "1", proof.PublicSignals[disclosure.SignalOverallValid])

	proofPath := writeFile(t, "proof.json", out)
	out, err = runApp(t, "verify", proofPath)
	require.NoError(t, err)
	require.Contains(t, out, `"valid": true`)

	proof.PublicSignals[disclosure.SignalMinPatients] = "1"
	tampered, err := json.Marshal(&proof)
	require.NoError(t, err)
	_, err = runApp(t, "verify", writeFile(t, "tampered.json", string(tampered)))
	require.Error(t, err)
}

func TestProveRejectsInvalidStats(t *testing.T) {
	stats := writeFile(t, "stats.json", `{"patientCount":0,"treatmentSuccess":0,"controlSuccess":0,"controlCount":0,"pValue":0.5}`)
	_, err := runApp(t, "prove", stats)
	require.Error(t, err)
}

func TestUnknownBackend(t *testing.T) {
	stats := writeFile(t, "stats.json", `{"patientCount":10,"treatmentSuccess":5,"controlSuccess":1,"controlCount":2,"pValue":0.5}`)
	_, err := runApp(t, "prove", "--backend", "plonk", stats)
	require.Error(t, err)
}
