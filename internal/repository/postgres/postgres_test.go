package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillcast/quillmail/internal/domain"
)

func TestEmailRepo_GetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .+ FROM emails WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	email, err := NewEmailRepo(db).Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailRepo_IncrementForMessage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE emails SET opened_count = opened_count").
		WithArgs("tx-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewEmailRepo(db).IncrementForMessage(context.Background(), "tx-1", domain.EventOpened)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailRepo_IncrementForMessage_UncountedTypeIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	err = NewEmailRepo(db).IncrementForMessage(context.Background(), "tx-1", domain.EventUnsubscribed)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRepo_CreateIsTransactional(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	batch := &domain.EmailBatch{ID: "b1", EmailID: "e1", Ordinal: 0, Status: domain.BatchPending}
	recipients := []domain.Recipient{
		{BatchID: "b1", MemberID: "m1", MemberUUID: "u1", Email: "a@example.com", Name: "A"},
		{BatchID: "b1", MemberID: "m2", MemberUUID: "u2", Email: "b@example.com", Name: "B"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO email_batches").
		WithArgs("b1", "e1", 0, string(domain.BatchPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO email_recipients").
		WithArgs("b1",
			pq.Array([]string{"m1", "m2"}),
			pq.Array([]string{"u1", "u2"}),
			pq.Array([]string{"a@example.com", "b@example.com"}),
			pq.Array([]string{"A", "B"})).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err = NewBatchRepo(db).Create(context.Background(), batch, recipients)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSuppressionRepo_GetBulkUsesSingleQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT email, reason, created_at FROM suppressions WHERE email = ANY").
		WithArgs(pq.Array([]string{"a@example.com", "b@example.com"})).
		WillReturnRows(sqlmock.NewRows([]string{"email", "reason", "created_at"}).
			AddRow("b@example.com", "spam", now))

	entries, err := NewSuppressionRepo(db).GetBulk(context.Background(),
		[]string{"a@example.com", "b@example.com"})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Nil(t, entries["a@example.com"])
	require.NotNil(t, entries["b@example.com"])
	assert.Equal(t, domain.ReasonSpam, entries["b@example.com"].Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSuppressionRepo_RemoveIsIdempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM suppressions WHERE email").
		WithArgs("gone@example.com").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewSuppressionRepo(db).Remove(context.Background(), "gone@example.com")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepo_InsertReportsDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	evt := &domain.MailEvent{
		ID: "evt-1", Type: domain.EventDelivered, MessageID: "tx-1",
		Recipient: "a@example.com", OccurredAt: time.Now(), Raw: []byte(`{}`),
	}

	mock.ExpectExec("INSERT INTO mail_events").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO mail_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewEventRepo(db)
	inserted, err := repo.Insert(context.Background(), evt)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Insert(context.Background(), evt)
	require.NoError(t, err)
	assert.False(t, inserted, "conflicting event id must report duplicate")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepo_InsertReportsLiveDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO jobs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := NewJobRepo(db).Insert(context.Background(), &domain.Job{
		ID: "j1", Name: "send-email-e1", Status: domain.JobQueued,
		Method: "batch-send", Metadata: []byte(`{}`), QueueEntry: domain.QueueEntryPresent,
	})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepo_RequeueStaleCountsRequeuedRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE jobs SET status = .+, started_at = NULL").
		WithArgs(string(domain.JobQueued), string(domain.JobStarted), float64(300)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := NewJobRepo(db).RequeueStale(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepo_ClaimNextEmptyQueue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("UPDATE jobs SET status").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	job, err := NewJobRepo(db).ClaimNext(context.Background(), "worker-0")
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.NoError(t, mock.ExpectationsWereMet())
}
