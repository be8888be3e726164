package store

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/autoclaim/autoclaim/internal/models"
)

func sampleStore() *models.Store {
	attempt := time.Date(2026, 1, 17, 0, 5, 0, 0, time.FixedZone("CST", 8*3600))
	st := models.NewStore()
	st.Period(models.Period{Year: 2026, Month: time.January}).Activities = []models.Activity{
		{ID: "20260117-b", Date: "2026-01-17", Title: "Burger day", ClaimStatus: models.ClaimStatusClaimed, LastAttemptAt: &attempt},
		{ID: "20260117-a", Date: "2026-01-17", Title: "Fries day", ClaimStatus: models.ClaimStatusPending},
	}
	st.UpsertCoupon(models.Coupon{
		CouponID:         "C1",
		SourceActivityID: "20260117-b",
		Title:            "Cheeseburger",
		Price:            decimal.RequireFromString("9.9"),
		ValidFrom:        "2026-01-17",
		ValidTo:          "2026-01-23",
	})
	return st
}

func TestLoadMissingFileReturnsEmptyStore(t *testing.T) {
	st, err := Load(filepath.Join(t.TempDir(), DefaultFilename))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(st.Periods) != 0 || len(st.Coupons) != 0 {
		t.Fatalf("expected empty store, got %+v", st)
	}
	if st.Version != models.StoreVersion {
		t.Errorf("expected version %d, got %d", models.StoreVersion, st.Version)
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFilename)
	want := sampleStore()

	if err := Save(path, want); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	// Activities come back in ID order.
	if got.Periods["2026-01"].Activities[0].ID != "20260117-a" {
		t.Fatalf("activities not sorted by id: %+v", got.Periods["2026-01"].Activities)
	}

	first, _ := os.ReadFile(path)
	if err := Save(path, got); err != nil {
		t.Fatalf("second Save returned error: %v", err)
	}
	second, _ := os.ReadFile(path)
	if !bytes.Equal(first, second) {
		t.Fatalf("no-op load/save changed the file:\n%s", cmp.Diff(string(first), string(second)))
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFilename)

	if err := Save(path, sampleStore()); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != DefaultFilename {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected only the state file, found %v", names)
	}
}

func TestSaveFailureKeepsPreviousContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFilename)
	if err := Save(path, sampleStore()); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	before, _ := os.ReadFile(path)

	missingDir := filepath.Join(dir, "does-not-exist", DefaultFilename)
	err := Save(missingDir, models.NewStore())
	var writeErr *WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("expected WriteError, got %v", err)
	}

	after, _ := os.ReadFile(path)
	if !bytes.Equal(before, after) {
		t.Fatal("failed save modified unrelated state file")
	}
}

func TestLoadCorruptState(t *testing.T) {
	tests := map[string]string{
		"truncated":        `{"version":1,"periods":{`,
		"empty":            "   \n",
		"unknown status":   `{"version":1,"periods":{"2026-01":{"activities":[{"id":"a","date":"2026-01-02","title":"t","claim_status":"lost"}]}},"coupons":[]}`,
		"duplicate id":     `{"version":1,"periods":{"2026-01":{"activities":[{"id":"a","date":"2026-01-02","title":"t","claim_status":"pending"},{"id":"a","date":"2026-01-03","title":"u","claim_status":"pending"}]}},"coupons":[]}`,
		"wrong period":     `{"version":1,"periods":{"2026-01":{"activities":[{"id":"a","date":"2026-02-02","title":"t","claim_status":"pending"}]}},"coupons":[]}`,
		"bad period key":   `{"version":1,"periods":{"January":{"activities":[]}},"coupons":[]}`,
		"future version":   `{"version":99,"periods":{},"coupons":[]}`,
		"trailing bytes":   "{\"version\":1,\"periods\":{},\"coupons\":[]}\n{\"half\": ",
		"second document":  `{"version":1,"periods":{},"coupons":[]}{"version":1}`,
		"duplicate coupon": `{"version":1,"periods":{},"coupons":[{"coupon_id":"C1","title":"x","price":"1","valid_from":"2026-01-01","valid_to":"2026-01-02"},{"coupon_id":"C1","title":"y","price":"2","valid_from":"2026-01-01","valid_to":"2026-01-02"}]}`,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), DefaultFilename)
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}

			_, err := Load(path)
			var corrupt *CorruptStateError
			if !errors.As(err, &corrupt) {
				t.Fatalf("expected CorruptStateError, got %v", err)
			}
			if corrupt.Path != path {
				t.Errorf("expected path %q, got %q", path, corrupt.Path)
			}
		})
	}
}

func TestQuarantineMovesFileAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFilename)
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	now := time.Date(2026, 1, 17, 8, 30, 0, 0, time.UTC)
	backup, err := Quarantine(path, now)
	if err != nil {
		t.Fatalf("Quarantine returned error: %v", err)
	}

	if !strings.HasSuffix(backup, ".corrupt-20260117-083000") {
		t.Errorf("unexpected backup name %q", backup)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected original path to be gone, stat err=%v", err)
	}
	data, err := os.ReadFile(backup)
	if err != nil || string(data) != "garbage" {
		t.Errorf("backup content mismatch: %q, %v", data, err)
	}
}
