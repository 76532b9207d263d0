package bulk

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImportJob(t *testing.T) {
	t.Run("starts processing", func(t *testing.T) {
		job, err := NewImportJob("statement.csv", uuid.New())

		require.NoError(t, err)
		assert.Equal(t, JobStatusProcessing, job.Status)
		assert.False(t, job.StartedAt.IsZero())
		assert.Nil(t, job.CompletedAt)
	})

	t.Run("rejects empty file name", func(t *testing.T) {
		_, err := NewImportJob("", uuid.New())
		assert.Error(t, err)
	})
}

func TestImportJobCounters(t *testing.T) {
	job, err := NewImportJob("statement.csv", uuid.New())
	require.NoError(t, err)

	job.RecordSuccess()
	job.RecordSuccess()
	job.RecordError(RowError{Row: 4, Type: RowErrorValidation, Reason: "bad date", Raw: []string{"вчера", "100"}})
	job.RecordError(RowError{Row: 5, Type: RowErrorDuplicate, Reason: "already imported"})
	job.RecordUnmatched(RowError{Row: 6, Reason: "no property matched"})

	assert.Equal(t, 5, job.TotalRows)
	assert.Equal(t, 3, job.SuccessRows)
	assert.Equal(t, 2, job.FailedRows)
	assert.Equal(t, 3, job.CreatedPayments)
	require.Len(t, job.RowErrors, 3)
	assert.Equal(t, RowErrorUnmatched, job.RowErrors[2].Type, "unmatched entries are typed even when the caller forgets")
	assert.Equal(t, []string{"вчера", "100"}, job.RowErrors[0].Raw)
}

func TestImportJobTransitions(t *testing.T) {
	t.Run("complete stamps the finish time", func(t *testing.T) {
		job, err := NewImportJob("statement.csv", uuid.New())
		require.NoError(t, err)

		require.NoError(t, job.Complete())
		assert.Equal(t, JobStatusCompleted, job.Status)
		require.NotNil(t, job.CompletedAt)
		assert.True(t, job.Status.IsTerminal())
	})

	t.Run("fail keeps the message", func(t *testing.T) {
		job, err := NewImportJob("statement.csv", uuid.New())
		require.NoError(t, err)

		require.NoError(t, job.Fail("no header row recognized"))
		assert.Equal(t, JobStatusFailed, job.Status)
		assert.Equal(t, "no header row recognized", job.FailureMessage)
	})

	t.Run("terminal jobs refuse further transitions", func(t *testing.T) {
		job, err := NewImportJob("statement.csv", uuid.New())
		require.NoError(t, err)
		require.NoError(t, job.Complete())

		assert.Error(t, job.Complete())
		assert.Error(t, job.Fail("late"))
	})
}
