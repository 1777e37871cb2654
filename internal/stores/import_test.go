package stores

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

type execCall struct {
	sql  string
	args []any
}

type recordingExecer struct {
	calls  []execCall
	failOn string
}

func (r *recordingExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.calls = append(r.calls, execCall{sql: sql, args: args})
	if r.failOn != "" && strings.Contains(sql, r.failOn) {
		return pgconn.CommandTag{}, errors.New("boom")
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func parseExport(t *testing.T, doc string) exportFile {
	t.Helper()
	var f exportFile
	if err := json.Unmarshal([]byte(doc), &f); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return f
}

func TestImportStores(t *testing.T) {
	ex := &recordingExecer{}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	result, err := importStores(context.Background(), ex, parseExport(t, sampleExport), now)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.StoresUpserted != 2 || result.ItemsWritten != 3 || len(result.Errors) != 0 {
		t.Fatalf("unexpected result %s", result.Summary())
	}

	// store upsert, item clear, three items, store upsert, item clear
	if len(ex.calls) != 7 {
		t.Fatalf("expected 7 statements, got %d", len(ex.calls))
	}
	first := ex.calls[0].args
	if first[0] != "1718000000000" || first[3] != 37.7689 {
		t.Fatalf("unexpected store args %v", first)
	}
	if created := first[6].(time.Time); created.Year() != 2024 {
		t.Fatalf("expected createdAt from export, got %s", created)
	}
	if second := ex.calls[5].args; second[2] != nil || second[6].(time.Time) != now {
		t.Fatalf("expected NULL address and import time, got %v", second)
	}
}

func TestImportStores_SkipsInvalid(t *testing.T) {
	doc := `{"stores":[
		{"id":"ok","name":"A","location":{"lat":1,"lng":1},"triggerRadius":10},
		{"id":"bad","name":"B","location":{"lat":1,"lng":1},"triggerRadius":0}
	]}`
	result, err := importStores(context.Background(), &recordingExecer{}, parseExport(t, doc), time.Now())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.StoresUpserted != 1 || len(result.Errors) != 1 {
		t.Fatalf("unexpected result %s", result.Summary())
	}
}

func TestImportStores_StopsOnWriteError(t *testing.T) {
	ex := &recordingExecer{failOn: "DELETE FROM"}
	_, err := importStores(context.Background(), ex, parseExport(t, sampleExport), time.Now())
	if err == nil || !strings.Contains(err.Error(), "clear items") {
		t.Fatalf("expected clear items error, got %v", err)
	}
}
