package services

import (
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"
)

func readCSV(b []byte) ([][]string, error) {
	return csv.NewReader(strings.NewReader(string(b))).ReadAll()
}

func TestExportLongCSV(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []LongRow{
		{SessionID: "s", Role: RoleB, QuestionID: "q1", Dimension: "d", ChoiceValue: 1, UpdatedAt: at},
		{SessionID: "s", Role: RoleA, QuestionID: "q2", Dimension: "d", ChoiceValue: 2, UpdatedAt: at},
		{SessionID: "s", Role: RoleA, QuestionID: "q1", Dimension: "d", ChoiceValue: 3, UpdatedAt: at},
	}
	b, err := ExportLongCSV(rows)
	if err != nil {
		t.Fatalf("export long: %v", err)
	}
	recs, err := readCSV(b)
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(recs) != 4 {
		t.Fatalf("rows = %d, want 4", len(recs))
	}
	if got := strings.Join(recs[0], ","); got != "session_id,role,question_id,dimension,choice_value,updated_at" {
		t.Fatalf("bad header: %s", got)
	}
	if got := strings.Join(recs[1], ","); got != "s,A,q1,d,3,2024-01-01T00:00:00Z" {
		t.Fatalf("first row = %s", got)
	}
	if recs[3][1] != "B" {
		t.Fatalf("last row role = %s, want B", recs[3][1])
	}
}

func TestExportWideCSV(t *testing.T) {
	b, err := ExportWideCSV(map[Role]map[string]int{
		RoleB: {"q2": 1},
		RoleA: {"q1": 2, "q2": 3},
	})
	if err != nil {
		t.Fatalf("export wide: %v", err)
	}
	recs, err := readCSV(b)
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	want := []string{"role,q1,q2", "A,2,3", "B,,1"}
	for i, line := range want {
		if got := strings.Join(recs[i], ","); got != line {
			t.Fatalf("row %d = %s, want %s", i, got, line)
		}
	}
}

func TestAdminSessionDetailAndExport(t *testing.T) {
	store := newStubStore()
	store.addQuestions(2)
	created := newTestSession(store)
	saveAll(t, store, created.TokenA, 2)
	svc := NewAdminService(store)
	ctx := context.Background()

	detail, err := svc.SessionDetail(ctx, created.SessionID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if len(detail.Participants) != 2 || detail.Participants[0].AnsweredCount != 2 || detail.Participants[1].AnsweredCount != 0 {
		t.Fatalf("participants = %+v", detail.Participants)
	}
	if detail.ReportRun != nil {
		t.Fatalf("unexpected report run")
	}

	long, err := svc.Export(ctx, created.SessionID, "")
	if err != nil {
		t.Fatalf("export long: %v", err)
	}
	if recs, _ := readCSV(long); len(recs) != 3 || recs[1][3] != "d" {
		t.Fatalf("long export = %q", long)
	}
	wide, err := svc.Export(ctx, created.SessionID, "wide")
	if err != nil {
		t.Fatalf("export wide: %v", err)
	}
	if got := strings.TrimSpace(string(wide)); got != "role,q1,q2\nA,2,2\nB,," {
		t.Fatalf("wide export = %q", got)
	}

	if _, err := svc.Export(ctx, created.SessionID, "xml"); !IsCode(err, ErrorInvalid) {
		t.Fatalf("err = %v, want %s", err, ErrorInvalid)
	}
	if _, err := svc.SessionDetail(ctx, "missing"); !IsCode(err, ErrorNotFound) {
		t.Fatalf("err = %v, want %s", err, ErrorNotFound)
	}
}
