package sync

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarteros/backend/internal/domain/shared"
)

func newTestRecord(t *testing.T) *SyncRecord {
	t.Helper()
	rec, err := NewSyncRecord(uuid.New(), EntityTypeOrder, "E-100")
	require.NoError(t, err)
	return rec
}

func TestNewSyncRecord(t *testing.T) {
	rec := newTestRecord(t)
	assert.Equal(t, SyncStatePending, rec.State)
	assert.Equal(t, 1, rec.Version)
	assert.Zero(t, rec.Revision)
}

func TestNewSyncRecord_Validation(t *testing.T) {
	_, err := NewSyncRecord(uuid.Nil, EntityTypeOrder, "E-1")
	assert.Error(t, err)

	_, err = NewSyncRecord(uuid.New(), EntityType("invoice"), "E-1")
	assert.Error(t, err)

	_, err = NewSyncRecord(uuid.New(), EntityTypeStock, "")
	assert.Error(t, err)
}

func TestSyncRecord_ApplyFlow(t *testing.T) {
	rec := newTestRecord(t)

	require.NoError(t, rec.BeginAttempt(1))
	require.NoError(t, rec.Apply(1, "O-55"))

	assert.Equal(t, SyncStateApplied, rec.State)
	assert.Equal(t, int64(1), rec.Revision)
	assert.Equal(t, "O-55", rec.ERPID)
}

func TestSyncRecord_StaleRevisionIsDuplicate(t *testing.T) {
	rec := newTestRecord(t)
	require.NoError(t, rec.BeginAttempt(2))
	require.NoError(t, rec.Apply(2, "O-55"))

	// revision 1 arrives after revision 2 was applied
	err := rec.BeginAttempt(1)
	assert.ErrorIs(t, err, shared.ErrDuplicateEvent)
	assert.Equal(t, SyncStateApplied, rec.State)
	assert.Equal(t, int64(2), rec.Revision)

	// same revision redelivered
	assert.ErrorIs(t, rec.BeginAttempt(2), shared.ErrDuplicateEvent)
}

func TestSyncRecord_HigherRevisionReopensApplied(t *testing.T) {
	rec := newTestRecord(t)
	require.NoError(t, rec.BeginAttempt(1))
	require.NoError(t, rec.Apply(1, "O-55"))

	require.NoError(t, rec.BeginAttempt(2))
	assert.Equal(t, SyncStatePending, rec.State)
	require.NoError(t, rec.Apply(2, "O-55"))
	assert.Equal(t, int64(2), rec.Revision)
}

func TestSyncRecord_FailThenRetry(t *testing.T) {
	rec := newTestRecord(t)
	require.NoError(t, rec.BeginAttempt(1))
	require.NoError(t, rec.Fail("erp unreachable"))

	assert.Equal(t, SyncStateFailed, rec.State)
	assert.Equal(t, 1, rec.RetryCount)
	assert.Equal(t, "erp unreachable", rec.LastError)

	// retry re-enters pending and can apply
	require.NoError(t, rec.BeginAttempt(1))
	require.NoError(t, rec.Apply(1, "O-55"))
	assert.Equal(t, SyncStateApplied, rec.State)
}

func TestSyncRecord_ConflictIsTerminal(t *testing.T) {
	rec := newTestRecord(t)
	require.NoError(t, rec.BeginAttempt(1))
	require.NoError(t, rec.MarkConflict("erp entity deleted"))

	assert.Equal(t, SyncStateConflict, rec.State)
	assert.ErrorIs(t, rec.BeginAttempt(2), shared.ErrConflict)
	assert.Error(t, rec.Apply(2, "O-56"))
}

func TestSyncRecord_InvalidTransitions(t *testing.T) {
	rec := newTestRecord(t)
	require.NoError(t, rec.BeginAttempt(1))
	require.NoError(t, rec.Apply(1, "O-55"))

	// applied record cannot fail or apply again without a new attempt
	assert.Error(t, rec.Fail("late error"))
	assert.Error(t, rec.Apply(1, "O-55"))
}
