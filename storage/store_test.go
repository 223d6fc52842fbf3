package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/RyanBlaney/beatwizard/features"
)

// Helper function to create a temporary test store
func setupTestDB(t *testing.T) (*Store, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test_beats.sqlite3")
	store, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})

	return store, dbPath
}

func testVector(tempo, energy float64) *features.FeatureVector {
	return &features.FeatureVector{
		Tempo:      tempo,
		EnergyMean: energy,
		BassEnergy: energy * 2,
		Duration:   2,
	}
}

func TestNewStore(t *testing.T) {
	store, dbPath := setupTestDB(t)

	if store.db == nil {
		t.Fatal("Expected non-nil GORM DB handle")
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("Database file was not created at %s", dbPath)
	}
	for _, table := range []string{"beats", "audio_features"} {
		if !store.db.Migrator().HasTable(table) {
			t.Errorf("Expected table %s to exist", table)
		}
	}
}

func TestFeatureColumnsMatchKeys(t *testing.T) {
	store, _ := setupTestDB(t)

	for _, key := range features.Keys() {
		if !store.db.Migrator().HasColumn(&AudioFeatures{}, key) {
			t.Errorf("audio_features has no column %q", key)
		}
	}
	if store.db.Migrator().HasColumn(&AudioFeatures{}, "mfcc1") {
		t.Error("unexpected column mfcc1")
	}
}

func TestStoreAndGet(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()

	fv := testVector(128, 0.4)
	id, err := store.Store(ctx, BeatMetadata{Title: "Night Drive", UserID: "u1"}, fv)
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if len(id) != 36 {
		t.Errorf("Expected UUID id, got %q", id)
	}

	beat, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if beat.Title != "Night Drive" || beat.UserID != "u1" {
		t.Errorf("Unexpected metadata: %+v", beat)
	}
	if beat.BPM != 128 {
		t.Errorf("Expected BPM to default to tempo 128, got %v", beat.BPM)
	}
	if beat.KeySignature != "C" {
		t.Errorf("Expected default key C, got %q", beat.KeySignature)
	}
	if beat.DurationSeconds != 2 {
		t.Errorf("Expected duration 2, got %v", beat.DurationSeconds)
	}
	if beat.Features == nil {
		t.Fatal("Expected features to be preloaded")
	}
	if beat.Features.FeatureVector != *fv {
		t.Errorf("Feature row mismatch:\n got %+v\nwant %+v", beat.Features.FeatureVector, *fv)
	}
}

func TestStoreKeepsExplicitMetadata(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()

	id, err := store.Store(ctx, BeatMetadata{Title: "x", BPM: 90, KeySignature: "A minor", IsPublic: true}, testVector(140, 0.1))
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	beat, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if beat.BPM != 90 || beat.KeySignature != "A minor" || !beat.IsPublic {
		t.Errorf("Explicit metadata not kept: %+v", beat)
	}
}

func TestStoreNilFeatures(t *testing.T) {
	store, _ := setupTestDB(t)

	if _, err := store.Store(context.Background(), BeatMetadata{Title: "x"}, nil); err == nil {
		t.Error("Expected error for nil feature vector")
	}
}

func TestStoreRollsBackBeatOnFeatureFailure(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()

	err := store.db.Callback().Create().Before("gorm:create").Register("test:fail_features", func(tx *gorm.DB) {
		if tx.Statement.Table == "audio_features" {
			tx.AddError(errors.New("disk full"))
		}
	})
	if err != nil {
		t.Fatalf("Failed to register callback: %v", err)
	}

	if _, err := store.Store(ctx, BeatMetadata{Title: "doomed"}, testVector(100, 0.2)); err == nil {
		t.Fatal("Expected Store to fail")
	}

	var count int64
	if err := store.db.Model(&Beat{}).Count(&count).Error; err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected beat insert to be rolled back, found %d beats", count)
	}
}

func TestGetNotFound(t *testing.T) {
	store, _ := setupTestDB(t)

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestList(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Store(ctx, BeatMetadata{Title: "beat"}, testVector(100+float64(i), 0.1)); err != nil {
			t.Fatalf("Store failed: %v", err)
		}
	}

	all, err := store.List(ctx, 0, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 beats, got %d", len(all))
	}

	page, err := store.List(ctx, 2, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page) != 1 {
		t.Errorf("Expected 1 beat on second page, got %d", len(page))
	}
}

func TestDelete(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()

	id, err := store.Store(ctx, BeatMetadata{Title: "gone"}, testVector(100, 0.2))
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}

	var count int64
	store.db.Model(&AudioFeatures{}).Where("beat_id = ?", id).Count(&count)
	if count != 0 {
		t.Errorf("Expected feature row to be deleted, found %d", count)
	}

	if err := store.Delete(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for second delete, got %v", err)
	}
}

func TestFetchSimilar(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()

	target, err := store.Store(ctx, BeatMetadata{Title: "target"}, testVector(120, 0.5))
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if _, err := store.Store(ctx, BeatMetadata{Title: "near"}, testVector(122, 0.55)); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if _, err := store.Store(ctx, BeatMetadata{Title: "far"}, testVector(80, 0.1)); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	similar, err := store.FetchSimilar(ctx, target, 0)
	if err != nil {
		t.Fatalf("FetchSimilar failed: %v", err)
	}
	if len(similar) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(similar))
	}
	if similar[0].Title != "near" || similar[1].Title != "far" {
		t.Errorf("Unexpected order: %+v", similar)
	}
	if similar[0].Score < 0.9 {
		t.Errorf("Expected near beat to score above 0.9, got %v", similar[0].Score)
	}
	if similar[1].Score >= 0 {
		t.Errorf("Expected far beat to score below 0, got %v", similar[1].Score)
	}
	for _, s := range similar {
		if s.BeatID == target {
			t.Error("Target beat must not be in its own results")
		}
	}

	limited, err := store.FetchSimilar(ctx, target, 1)
	if err != nil {
		t.Fatalf("FetchSimilar failed: %v", err)
	}
	if len(limited) != 1 || limited[0].Title != "near" {
		t.Errorf("Expected only the nearest beat, got %+v", limited)
	}
}

func TestFetchSimilarNotFound(t *testing.T) {
	store, _ := setupTestDB(t)

	_, err := store.FetchSimilar(context.Background(), "missing", 5)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
