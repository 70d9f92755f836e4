package sessions

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func setupMockDB(t *testing.T) (sqlmock.Sqlmock, *SQLiteStore) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return mock, &SQLiteStore{db: db}
}

func TestSQLiteSaveTransaction(t *testing.T) {
	mock, store := setupMockDB(t)

	session := NewSession("cli:direct")
	session.AddMessage("user", "hello")
	session.AddMessage("assistant", "hi")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("cli:direct", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM messages").
		WithArgs("cli:direct").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO messages").
		WithArgs("cli:direct", "user", "hello", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO messages").
		WithArgs("cli:direct", "assistant", "hi", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	if err := store.Save(context.Background(), session); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLiteSaveRollsBackOnError(t *testing.T) {
	mock, store := setupMockDB(t)

	session := NewSession("cli:direct")
	session.AddMessage("user", "hello")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("cli:direct", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.Save(context.Background(), session)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("Save error = %v, want disk full", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLiteGetOrCreateInsertsMissing(t *testing.T) {
	mock, store := setupMockDB(t)

	mock.ExpectQuery("SELECT created_at, updated_at FROM sessions").
		WithArgs("new:key").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("new:key", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	session, err := store.GetOrCreate(context.Background(), "new:key")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if session.Key != "new:key" || len(session.Messages) != 0 {
		t.Fatalf("session = %+v", session)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLiteGetLoadsTranscript(t *testing.T) {
	mock, store := setupMockDB(t)

	now := time.Now().UTC().Format(time.RFC3339Nano)
	mock.ExpectQuery("SELECT created_at, updated_at FROM sessions").
		WithArgs("cli:direct").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectQuery("SELECT role, content, created_at FROM messages").
		WithArgs("cli:direct").
		WillReturnRows(sqlmock.NewRows([]string{"role", "content", "created_at"}).
			AddRow("user", "hello", now).
			AddRow("assistant", "hi", now))

	session, err := store.Get(context.Background(), "cli:direct")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(session.Messages) != 2 {
		t.Fatalf("messages = %+v", session.Messages)
	}
	if session.Messages[0].Role != "user" || session.Messages[1].Content != "hi" {
		t.Fatalf("transcript mismatch: %+v", session.Messages)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLiteGetNotFound(t *testing.T) {
	mock, store := setupMockDB(t)

	mock.ExpectQuery("SELECT created_at, updated_at FROM sessions").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.Get(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("Get = %v, want ErrNotFound", err)
	}
}

func TestSQLiteDelete(t *testing.T) {
	mock, store := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM messages").
		WithArgs("cli:direct").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM sessions").
		WithArgs("cli:direct").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.Delete(context.Background(), "cli:direct"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLiteList(t *testing.T) {
	mock, store := setupMockDB(t)

	mock.ExpectQuery("SELECT key FROM sessions").
		WillReturnRows(sqlmock.NewRows([]string{"key"}).AddRow("a:1").AddRow("b:2"))

	keys, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 2 || keys[0] != "a:1" || keys[1] != "b:2" {
		t.Fatalf("List = %v", keys)
	}
}
