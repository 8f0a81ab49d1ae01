package health

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestStatusWithoutDatabase(t *testing.T) {
	out, ok := NewService(nil).Status(context.Background())
	if !ok || out["storage"] != "memory" {
		t.Fatalf("unexpected status %v ok=%v", out, ok)
	}
}

func TestStatusPingsDatabase(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	mock.ExpectPing()
	out, ok := NewService(sqlDB).Status(context.Background())
	if !ok || out["database"] != "ok" {
		t.Fatalf("unexpected status %v ok=%v", out, ok)
	}

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	out, ok = NewService(sqlDB).Status(context.Background())
	if ok || out["ok"] != false {
		t.Fatalf("expected failing status, got %v", out)
	}
}
