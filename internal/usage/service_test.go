package usage

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRecordUsesFallbackEstimatesWithoutTokens(t *testing.T) {
	svc := NewService(Pricing{InputPerMTok: 1, OutputPerMTok: 1})
	ctx := context.Background()

	cls, err := svc.Record(ctx, Entry{RepositoryID: "r1", Phase: PhaseClassification})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if cls.TokensIn != 200 || cls.TokensOut != 50 || !almostEqual(cls.EstimatedCost, 0.0005) {
		t.Fatalf("unexpected classification record %+v", cls)
	}

	draft, err := svc.Record(ctx, Entry{RepositoryID: "r1", Phase: PhaseDrafting})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if draft.TokensIn != 500 || draft.TokensOut != 300 || !almostEqual(draft.EstimatedCost, 0.002) {
		t.Fatalf("unexpected drafting record %+v", draft)
	}
}

func TestRecordPricesReportedTokens(t *testing.T) {
	svc := NewService(Pricing{InputPerMTok: 0.30, OutputPerMTok: 2.50})
	rec, err := svc.Record(context.Background(), Entry{
		RepositoryID: "r1",
		Phase:        PhaseDrafting,
		Provider:     "anthropic",
		Model:        "claude-haiku",
		TokensIn:     1_000_000,
		TokensOut:    200_000,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !almostEqual(rec.EstimatedCost, 0.30+0.50) {
		t.Fatalf("expected cost 0.80, got %v", rec.EstimatedCost)
	}
}

func TestRecordRejectsUnknownPhase(t *testing.T) {
	svc := NewService(Pricing{})
	if _, err := svc.Record(context.Background(), Entry{Phase: "summarize"}); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase, got %v", err)
	}
}

func TestSummaryTotalsByPhase(t *testing.T) {
	svc := NewService(Pricing{})
	ctx := context.Background()
	for _, p := range []Phase{PhaseClassification, PhaseClassification, PhaseDrafting} {
		if _, err := svc.Record(ctx, Entry{RepositoryID: "r1", Phase: p}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if _, err := svc.Record(ctx, Entry{RepositoryID: "r2", Phase: PhaseDrafting}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	sum, err := svc.Summary(ctx, "r1")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Total.Calls != 3 || sum.ByPhase[PhaseClassification].Calls != 2 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if sum.Total.TokensIn != 900 || !almostEqual(sum.Total.EstimatedCost, 0.003) {
		t.Fatalf("unexpected totals %+v", sum.Total)
	}
}

func TestPGStoreAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Now().UTC()
	svc := NewPostgresService(NewPGStore(db), Pricing{})
	svc.now = func() time.Time { return now }

	mock.ExpectExec("INSERT INTO llm_usage").
		WithArgs(sqlmock.AnyArg(), "r1", 200, 50, 0.0005, PhaseClassification, "openai", "gpt-4o-mini", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if _, err := svc.Record(context.Background(), Entry{RepositoryID: "r1", Phase: PhaseClassification, Provider: "openai", Model: "gpt-4o-mini"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestHandlerReturnsSummary(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewService(Pricing{})
	if _, err := svc.Record(context.Background(), Entry{RepositoryID: "r1", Phase: PhaseDrafting}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/repos/r1/usage", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"drafting":{"calls":1`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}
