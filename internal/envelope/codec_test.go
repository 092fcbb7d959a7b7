package envelope

import (
	"crypto/rsa"
	"testing"

	"github.com/apscustody/labcustody/internal/primitives"
	"github.com/stretchr/testify/require"
)

func genKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	priv, err := primitives.GenerateRSAKeyPair()
	require.NoError(t, err)
	return priv
}

func sampleAAD() AAD {
	return AAD{
		ReportID:   "R1",
		LabID:      "LAB-1",
		PatientRef: "PAT-1",
		IssuedAt:   "2026-01-01T00:00:00Z",
	}
}

func TestEncryptOpenRoundTrip(t *testing.T) {
	patient := genKey(t)
	hosp := genKey(t)
	lab := genKey(t)

	env, err := EncryptForRecipients([]byte("hello"), sampleAAD(), map[string]*rsa.PublicKey{
		"PAT-1": &patient.PublicKey,
		"HOSP-1": &hosp.PublicKey,
	})
	require.NoError(t, err)

	env, err = env.SignLab(lab)
	require.NoError(t, err)
	require.True(t, env.VerifyLab(&lab.PublicKey))

	for id, priv := range map[string]*rsa.PrivateKey{"PAT-1": patient, "HOSP-1": hosp} {
		pt, err := Open(env, priv, id)
		require.NoError(t, err, "recipient %s", id)
		require.Equal(t, []byte("hello"), pt)
	}
}

func TestOpen_NoKeyForRecipient(t *testing.T) {
	patient := genKey(t)
	other := genKey(t)

	env, err := EncryptForRecipients([]byte("hello"), sampleAAD(), map[string]*rsa.PublicKey{
		"PAT-1": &patient.PublicKey,
	})
	require.NoError(t, err)

	_, err = Open(env, other, "HOSP-1")
	require.ErrorIs(t, err, ErrNoKeyForRecipient)
}

func TestOpen_TamperedCiphertextFails(t *testing.T) {
	patient := genKey(t)
	env, err := EncryptForRecipients([]byte("hello"), sampleAAD(), map[string]*rsa.PublicKey{
		"PAT-1": &patient.PublicKey,
	})
	require.NoError(t, err)

	raw, err := primitives.B64Decode(env.Ciphertext)
	require.NoError(t, err)
	raw[0] ^= 0xFF
	env.Ciphertext = primitives.B64Encode(raw)

	_, err = Open(env, patient, "PAT-1")
	require.ErrorIs(t, err, primitives.ErrAeadFailure)
}

func TestOpen_TamperedAADFails(t *testing.T) {
	patient := genKey(t)
	env, err := EncryptForRecipients([]byte("hello"), sampleAAD(), map[string]*rsa.PublicKey{
		"PAT-1": &patient.PublicKey,
	})
	require.NoError(t, err)

	env.AAD.ExamType = "tampered"
	_, err = Open(env, patient, "PAT-1")
	require.ErrorIs(t, err, primitives.ErrAeadFailure)
}

func TestSignatureIndependence(t *testing.T) {
	lab := genKey(t)
	patient := genKey(t)

	env, err := EncryptForRecipients([]byte("hello"), sampleAAD(), map[string]*rsa.PublicKey{
		"PAT-1": &patient.PublicKey,
	})
	require.NoError(t, err)
	env, err = env.SignLab(lab)
	require.NoError(t, err)
	require.True(t, env.VerifyLab(&lab.PublicKey))

	mutated := env
	mutated.AAD.Note = "mutated"
	require.False(t, mutated.VerifyLab(&lab.PublicKey))
}
