package resolver

import (
	"crypto/rsa"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/apscustody/labcustody/internal/envelope"
	"github.com/apscustody/labcustody/internal/keystore"
	"github.com/apscustody/labcustody/internal/ledger"
	"github.com/apscustody/labcustody/internal/registry"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t    *testing.T
	r    *Resolver
	l    *ledger.Ledger
	reg  *registry.Registry
	keys *keystore.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	l, err := ledger.Open(filepath.Join(dir, "ledger.jsonl"))
	require.NoError(t, err)
	reg, err := registry.Open(filepath.Join(dir, "registry.json"))
	require.NoError(t, err)
	store, err := OpenStore(filepath.Join(dir, "store.json"))
	require.NoError(t, err)
	keys, err := keystore.Open(filepath.Join(dir, "keys"))
	require.NoError(t, err)

	log := zap.NewNop().Sugar()
	return &harness{t: t, r: New(log, l, reg, store, keys), l: l, reg: reg, keys: keys}
}

func (h *harness) enroll(actorID string) {
	h.t.Helper()
	_, err := h.keys.EnsureKeys(actorID)
	require.NoError(h.t, err)
	pem, err := h.keys.PublicKeyPEM(actorID)
	require.NoError(h.t, err)
	require.NoError(h.t, h.r.reg.Enroll(actorID, pem))
}

func (h *harness) emit(reportID, labID, patientRef string, plaintext []byte, recipients ...string) {
	h.t.Helper()
	recipientKeys := map[string]*rsa.PublicKey{}
	for _, id := range recipients {
		pub, err := h.keys.PublicKey(id)
		require.NoError(h.t, err)
		recipientKeys[id] = pub
	}

	aad := envelope.AAD{ReportID: reportID, LabID: labID, PatientRef: patientRef, IssuedAt: "2026-01-01T00:00:00Z"}
	env, err := envelope.EncryptForRecipients(plaintext, aad, recipientKeys)
	require.NoError(h.t, err)

	labPriv, err := h.keys.PrivateKey(labID)
	require.NoError(h.t, err)
	env, err = env.SignLab(labPriv)
	require.NoError(h.t, err)

	require.Nil(h.t, h.r.Emit(reportID, labID, patientRef, env, aad.IssuedAt))
}

func TestScenario1_EmitOpenNoGrant(t *testing.T) {
	h := newHarness(t)
	h.enroll("LAB-1")
	h.enroll("PAT-1")
	h.enroll("HOSP-1")

	h.emit("R1", "LAB-1", "PAT-1", []byte("hello"), "PAT-1")

	pt, rid, denyErr := h.r.Open("PAT-1", "R1")
	require.Nil(t, denyErr)
	require.Equal(t, "hello", string(pt))
	require.Equal(t, "R1", rid)

	_, _, denyErr = h.r.Open("HOSP-1", "R1")
	require.NotNil(t, denyErr)
	require.Equal(t, NoGrant, denyErr.Kind)
}

func TestScenario2_ShareUnshareReshare(t *testing.T) {
	h := newHarness(t)
	h.enroll("LAB-1")
	h.enroll("PAT-1")
	h.enroll("HOSP-1")
	h.emit("R1", "LAB-1", "PAT-1", []byte("hello"), "PAT-1")

	require.Nil(t, h.r.Share("PAT-1", "R1", "HOSP-1"))
	pt, _, denyErr := h.r.Open("HOSP-1", "R1")
	require.Nil(t, denyErr)
	require.Equal(t, "hello", string(pt))

	require.Nil(t, h.r.Unshare("PAT-1", "R1", "HOSP-1"))
	_, _, denyErr = h.r.Open("HOSP-1", "R1")
	require.NotNil(t, denyErr)
	require.Equal(t, SoftRevoked, denyErr.Kind)

	require.Nil(t, h.r.Share("PAT-1", "R1", "HOSP-1"))
	pt, _, denyErr = h.r.Open("HOSP-1", "R1")
	require.Nil(t, denyErr)
	require.Equal(t, "hello", string(pt))
}

func TestScenario3_RevokeDeniesAllReads(t *testing.T) {
	h := newHarness(t)
	h.enroll("LAB-1")
	h.enroll("PAT-1")
	h.enroll("HOSP-1")
	h.emit("R1", "LAB-1", "PAT-1", []byte("hello"), "PAT-1")
	require.Nil(t, h.r.Share("PAT-1", "R1", "HOSP-1"))

	require.Nil(t, h.r.Revoke("LAB-1", "R1", "bad sample"))

	_, _, denyErr := h.r.Open("PAT-1", "R1")
	require.NotNil(t, denyErr)
	require.Equal(t, ReportState, denyErr.Kind)
	require.Equal(t, string(ledger.StatusRevoked), denyErr.Reason)

	_, _, denyErr = h.r.Open("HOSP-1", "R1")
	require.NotNil(t, denyErr)
	require.Equal(t, ReportState, denyErr.Kind)

	denyErr = h.r.Share("PAT-1", "R1", "HOSP-1")
	require.NotNil(t, denyErr)
	require.Equal(t, ReportState, denyErr.Kind)
}

func TestScenario4_UpdateDoesNotCarryGrants(t *testing.T) {
	h := newHarness(t)
	h.enroll("LAB-1")
	h.enroll("PAT-1")
	h.enroll("HOSP-1")
	h.emit("R1", "LAB-1", "PAT-1", []byte("v1"), "PAT-1")

	recipientPub, err := h.keys.PublicKey("PAT-1")
	require.NoError(t, err)
	aad2 := envelope.AAD{ReportID: "R2", LabID: "LAB-1", PatientRef: "PAT-1", IssuedAt: "2026-01-02T00:00:00Z"}
	env2, err := envelope.EncryptForRecipients([]byte("v2"), aad2, map[string]*rsa.PublicKey{"PAT-1": recipientPub})
	require.NoError(t, err)
	labPriv, err := h.keys.PrivateKey("LAB-1")
	require.NoError(t, err)
	env2, err = env2.SignLab(labPriv)
	require.NoError(t, err)

	require.Nil(t, h.r.Update("LAB-1", "R1", "R2", env2))

	pt, rid, denyErr := h.r.Open("PAT-1", "R1")
	require.Nil(t, denyErr)
	require.Equal(t, "v2", string(pt))
	require.Equal(t, "R2", rid)

	pt, rid, denyErr = h.r.Open("PAT-1", "R2")
	require.Nil(t, denyErr)
	require.Equal(t, "v2", string(pt))
	require.Equal(t, "R2", rid)

	// A prior GRANT on R1 does not grant access to R2: HOSP-1 was never
	// shared on either id, so this should simply be NoGrant.
	_, _, denyErr = h.r.Open("HOSP-1", "R2")
	require.NotNil(t, denyErr)
	require.Equal(t, NoGrant, denyErr.Kind)
}

func TestScenario4b_UpdateDoesNotCarrySoftRevocations(t *testing.T) {
	h := newHarness(t)
	h.enroll("LAB-1")
	h.enroll("PAT-1")
	h.enroll("HOSP-1")
	h.emit("R1", "LAB-1", "PAT-1", []byte("v1"), "PAT-1")
	require.Nil(t, h.r.Share("PAT-1", "R1", "HOSP-1"))
	require.Nil(t, h.r.Unshare("PAT-1", "R1", "HOSP-1"))

	recipientPub, err := h.keys.PublicKey("PAT-1")
	require.NoError(t, err)
	aad2 := envelope.AAD{ReportID: "R2", LabID: "LAB-1", PatientRef: "PAT-1", IssuedAt: "2026-01-02T00:00:00Z"}
	env2, err := envelope.EncryptForRecipients([]byte("v2"), aad2, map[string]*rsa.PublicKey{"PAT-1": recipientPub})
	require.NoError(t, err)
	labPriv, err := h.keys.PrivateKey("LAB-1")
	require.NoError(t, err)
	env2, err = env2.SignLab(labPriv)
	require.NoError(t, err)
	require.Nil(t, h.r.Update("LAB-1", "R1", "R2", env2))

	require.Nil(t, h.r.Share("PAT-1", "R2", "HOSP-1"))
	pt, _, denyErr := h.r.Open("HOSP-1", "R2")
	require.Nil(t, denyErr)
	require.Equal(t, "v2", string(pt))
}

func TestScenario5_TamperedCiphertextOrLedgerHashMismatch(t *testing.T) {
	h := newHarness(t)
	h.enroll("LAB-1")
	h.enroll("PAT-1")
	h.emit("R1", "LAB-1", "PAT-1", []byte("hello"), "PAT-1")

	env, ok := h.r.store.Envelope("R1")
	require.True(t, ok)
	env.Ciphertext = env.Ciphertext[:len(env.Ciphertext)-4] + "AAAA"
	require.NoError(t, h.r.store.PutEnvelope("R1", env))

	_, _, denyErr := h.r.Open("PAT-1", "R1")
	require.NotNil(t, denyErr)
	require.Equal(t, LedgerMismatch, denyErr.Kind)
	require.Equal(t, "hash", denyErr.Reason)
}

func TestScenario6_CARevokesLab(t *testing.T) {
	h := newHarness(t)
	h.enroll("LAB-1")
	h.enroll("PAT-1")
	h.emit("R1", "LAB-1", "PAT-1", []byte("hello"), "PAT-1")

	require.NoError(t, h.r.reg.Revoke("LAB-1"))

	_, _, denyErr := h.r.Open("PAT-1", "R1")
	require.NotNil(t, denyErr)
	require.Equal(t, LabRevokedByCA, denyErr.Kind)
}

func TestGrantPrecedence_LastAppendedWins(t *testing.T) {
	h := newHarness(t)
	h.enroll("LAB-1")
	h.enroll("PAT-1")
	h.enroll("HOSP-1")
	h.emit("R1", "LAB-1", "PAT-1", []byte("hello"), "PAT-1")

	require.Nil(t, h.r.Share("PAT-1", "R1", "HOSP-1"))
	require.Nil(t, h.r.Share("PAT-1", "R1", "HOSP-1")) // re-share appends a second GRANT

	pt, _, denyErr := h.r.Open("HOSP-1", "R1")
	require.Nil(t, denyErr)
	require.Equal(t, "hello", string(pt))
}
