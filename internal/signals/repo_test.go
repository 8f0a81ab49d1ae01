package signals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestMemoryRepoListRecentOrdersNewestFirst(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	batch := []Signal{
		{ID: "s1", RepositoryID: "r1", Type: TypeTodo, CreatedAt: base},
		{ID: "s2", RepositoryID: "r1", Type: TypeMissingDocs, CreatedAt: base.Add(time.Minute)},
		{ID: "s3", RepositoryID: "r1", Type: TypeTodo, CreatedAt: base.Add(time.Minute)},
		{ID: "other", RepositoryID: "r2", Type: TypeTodo, CreatedAt: base},
	}
	if err := repo.CreateBatch(ctx, batch); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	got, err := repo.ListRecent(ctx, "r1", 2)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(got) != 2 || got[0].ID != "s3" || got[1].ID != "s2" {
		t.Fatalf("unexpected order: %+v", got)
	}

	todos, err := repo.ListByRepository(ctx, "r1", ListFilter{Type: TypeTodo})
	if err != nil {
		t.Fatalf("ListByRepository: %v", err)
	}
	if len(todos) != 2 {
		t.Fatalf("expected 2 todos, got %d", len(todos))
	}

	n, _ := repo.CountByRepository(ctx, "r1")
	if n != 3 {
		t.Fatalf("expected count 3, got %d", n)
	}

	if err := repo.DeleteByRepository(ctx, "r1"); err != nil {
		t.Fatalf("DeleteByRepository: %v", err)
	}
	if _, err := repo.GetByID(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryRepoHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewMemoryRepo().CreateBatch(ctx, []Signal{{ID: "x"}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPGRepoCreateBatchUsesTransaction(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := &PGRepo{DB: sqlDB}
	now := time.Now().UTC()
	sigs := []Signal{
		{ID: "s1", RepositoryID: "r1", Type: TypeTodo, FilePath: "a.go", LineNumber: 3, Snippet: "// TODO", Context: "ctx", CreatedAt: now},
		{ID: "s2", RepositoryID: "r1", Type: TypeFixme, FilePath: "a.go", LineNumber: 9, Snippet: "// FIXME", Context: "ctx", CreatedAt: now},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO signals").
		WithArgs("s1", "r1", TypeTodo, "a.go", 3, "// TODO", "ctx", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO signals").
		WithArgs("s2", "r1", TypeFixme, "a.go", 9, "// FIXME", "ctx", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := repo.CreateBatch(context.Background(), sigs); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoListRecent(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "repository_id", "type", "file_path", "line_number", "snippet", "context", "created_at"}).
		AddRow("s2", "r1", TypeTodo, "b.go", 4, "// TODO", "c", now).
		AddRow("s1", "r1", TypeTodo, "a.go", 1, "// TODO", "c", now.Add(-time.Second))
	mock.ExpectQuery("SELECT (.+) FROM signals").
		WithArgs("r1", "", 100).
		WillReturnRows(rows)

	got, err := (&PGRepo{DB: sqlDB}).ListRecent(context.Background(), "r1", 100)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(got) != 2 || got[0].ID != "s2" {
		t.Fatalf("unexpected result %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByIDNotFound(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	mock.ExpectQuery("SELECT (.+) FROM signals WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := (&PGRepo{DB: sqlDB}).GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
