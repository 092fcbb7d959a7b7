package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/apscustody/labcustody/internal/primitives"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	dir := t.TempDir()
	l, err := Open(filepath.Join(dir, "ledger.jsonl"))
	require.NoError(t, err)
	return l
}

func TestAppend_AssignsTsAndTxID(t *testing.T) {
	l := newTestLedger(t)
	ev, err := l.Append(NewPublish("R1", "LAB-1", "PAT-1", "deadbeef", "sig", "2026-01-01T00:00:00Z"))
	require.NoError(t, err)
	require.NotZero(t, ev.Ts)
	require.NotEmpty(t, ev.TxID)
}

func TestTxID_IsPureFunctionOfCanonicalEventWithoutTxID(t *testing.T) {
	ev := Event{Ts: 1000, Type: EventPublish, ReportID: "R1", LabID: "L1", PatientRef: "P1", Hash: "h", SigLab: "s", IssuedAt: "t"}
	b1, err := primitives.CanonicalJSON(ev)
	require.NoError(t, err)
	b2, err := primitives.CanonicalJSON(ev)
	require.NoError(t, err)
	require.Equal(t, b1, b2)

	withTx := ev
	withTx.TxID = "anything"
	b3, err := primitives.CanonicalJSON(withTx)
	require.NoError(t, err)
	require.NotEqual(t, b1, b3, "txId must be excluded before hashing, or two events differing only by txId would hash identically")
}

func TestStateOf_PublishThenOpen(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Append(NewPublish("R1", "LAB-1", "PAT-1", "hash1", "sig", "2026-01-01T00:00:00Z"))
	require.NoError(t, err)

	st, err := l.StateOf("R1")
	require.NoError(t, err)
	require.Equal(t, StatusValid, st.Status)
	require.Equal(t, "R1", st.CurrentReportID)
}

func TestStateOf_UnknownReport(t *testing.T) {
	l := newTestLedger(t)
	st, err := l.StateOf("nope")
	require.NoError(t, err)
	require.Equal(t, StatusUnknown, st.Status)
}

func TestStateOf_RevokeIsTerminalAndMonotone(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Append(NewPublish("R1", "LAB-1", "PAT-1", "h", "s", "t"))
	require.NoError(t, err)
	_, err = l.Append(NewRevoke("R1", "LAB-1", "bad sample"))
	require.NoError(t, err)

	st, err := l.StateOf("R1")
	require.NoError(t, err)
	require.Equal(t, StatusRevoked, st.Status)

	// A later event referencing R1 cannot un-revoke it.
	_, err = l.Append(NewGrant("R1", "PAT-1", "HOSP-1", "ek", "sig"))
	require.NoError(t, err)
	st2, err := l.StateOf("R1")
	require.NoError(t, err)
	require.Equal(t, StatusRevoked, st2.Status)
}

func TestStateOf_UpdateChainNeverRegresses(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Append(NewPublish("R1", "LAB-1", "PAT-1", "h1", "s", "t"))
	require.NoError(t, err)
	_, err = l.Append(NewUpdate("R1", "R2", "LAB-1"))
	require.NoError(t, err)
	_, err = l.Append(NewPublish("R2", "LAB-1", "PAT-1", "h2", "s", "t"))
	require.NoError(t, err)
	_, err = l.Append(NewUpdate("R2", "R3", "LAB-1"))
	require.NoError(t, err)

	for _, queryID := range []string{"R1", "R2", "R3"} {
		st, err := l.StateOf(queryID)
		require.NoError(t, err)
		require.Equal(t, StatusUpdated, st.Status)
		require.Equal(t, "R3", st.CurrentReportID)
	}
}

func TestStateOf_SecondPublishOfSameIDIsIgnored(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Append(NewPublish("R1", "LAB-1", "PAT-1", "first-hash", "s", "t"))
	require.NoError(t, err)
	_, err = l.Append(NewPublish("R1", "LAB-1", "PAT-1", "second-hash", "s", "t"))
	require.NoError(t, err)

	pub, err := l.GetPublish("R1")
	require.NoError(t, err)
	require.NotNil(t, pub)
	require.Equal(t, "first-hash", pub.Hash)
}

func TestLookupGrants_PrecedenceIsLastAppended(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Append(NewPublish("R1", "LAB-1", "PAT-1", "h", "s", "t"))
	require.NoError(t, err)
	_, err = l.Append(NewGrant("R1", "PAT-1", "HOSP-1", "ek-old", "sig-old"))
	require.NoError(t, err)
	_, err = l.Append(NewGrant("R1", "PAT-1", "HOSP-1", "ek-new", "sig-new"))
	require.NoError(t, err)

	grants, err := l.LookupGrants("R1", "HOSP-1")
	require.NoError(t, err)
	require.Len(t, grants, 2)
	last := grants[len(grants)-1]
	require.Equal(t, "ek-new", last.EkTo)
}

func TestAll_SkipsMalformedLines_AuditFailsHard(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.jsonl")
	l, err := Open(path)
	require.NoError(t, err)

	_, err = l.Append(NewPublish("R1", "LAB-1", "PAT-1", "h", "s", "t"))
	require.NoError(t, err)

	appendRaw(t, path, "{not valid json")

	events, err := l.All()
	require.NoError(t, err)
	require.Len(t, events, 1)

	_, err = l.Audit()
	require.Error(t, err)
}

func appendRaw(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	require.NoError(t, err)
}
