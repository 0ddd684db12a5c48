package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ignite/courier/internal/domain"
	"github.com/ignite/courier/internal/service/send"
)

var messageCols = []string{
	"id", "project_id", "identity_id", "provider_message_id",
	"from_address", "to_address", "subject", "text_body", "html_body",
	"status", "created_at", "updated_at",
}

func TestMessageRepoCreateAtomic(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewMessageRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO messages").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO message_events").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	msg := &domain.Message{
		ID: "msg-1", ProjectID: "proj-1", IdentityID: "ident-1",
		From: "news@example.com", To: "alice@recipient.test",
		Subject: "hello", TextBody: "hi", Status: domain.StatusSending,
	}
	ev := &domain.Event{
		ID: "ev-1", MessageID: "msg-1", Recipient: "alice@recipient.test",
		Type: domain.EventSending, Timestamp: time.Now(),
	}
	if err := repo.Create(context.Background(), msg, ev); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMessageRepoCreateRollsBackOnEventFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewMessageRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO messages").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO message_events").
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	msg := &domain.Message{ID: "msg-1", Status: domain.StatusSending}
	ev := &domain.Event{ID: "ev-1", MessageID: "msg-1", Type: domain.EventSending, Timestamp: time.Now()}
	if err := repo.Create(context.Background(), msg, ev); err == nil {
		t.Fatal("expected create to fail")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMessageRepoFindByProviderID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewMessageRepo(db)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM messages").
		WithArgs("ses-msg-1", "alice@recipient.test").
		WillReturnRows(sqlmock.NewRows(messageCols).AddRow(
			"msg-1", "proj-1", "ident-1", "ses-msg-1",
			"news@example.com", "alice@recipient.test", "hello", "hi", "",
			"sent", now, now,
		))

	msg, err := repo.FindByProviderID(context.Background(), "ses-msg-1", "alice@recipient.test")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if msg.ID != "msg-1" || msg.Status != domain.StatusSent {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestMessageRepoFindByProviderIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewMessageRepo(db)

	mock.ExpectQuery("SELECT (.+) FROM messages").
		WillReturnRows(sqlmock.NewRows(messageCols))

	_, err = repo.FindByProviderID(context.Background(), "unknown", "alice@recipient.test")
	if !errors.Is(err, send.ErrMessageNotFound) {
		t.Fatalf("err = %v, want ErrMessageNotFound", err)
	}
}

func TestMessageRepoSetProviderMessageIDOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewMessageRepo(db)

	// Second write hits the IS NULL guard and affects no rows.
	mock.ExpectExec("UPDATE messages SET provider_message_id").
		WithArgs("ses-msg-1", "msg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE messages SET provider_message_id").
		WithArgs("ses-msg-2", "msg-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.SetProviderMessageID(context.Background(), "msg-1", "ses-msg-1"); err != nil {
		t.Fatalf("first set: %v", err)
	}
	if err := repo.SetProviderMessageID(context.Background(), "msg-1", "ses-msg-2"); err == nil {
		t.Fatal("second set must not succeed")
	}
}

func TestMessageRepoUpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewMessageRepo(db)

	mock.ExpectExec("UPDATE messages SET status").
		WithArgs("bounced", "msg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateStatus(context.Background(), "msg-1", domain.StatusBounced); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
