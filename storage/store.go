package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/RyanBlaney/beatwizard/algorithms/stats"
	"github.com/RyanBlaney/beatwizard/algorithms/tonal"
	"github.com/RyanBlaney/beatwizard/features"
	"github.com/RyanBlaney/beatwizard/logging"
)

// DefaultDBFile is used when no database path is configured
const DefaultDBFile = "beatwizard.sqlite3"

// DefaultSimilarLimit is the number of similar beats returned when the
// caller does not ask for a specific count
const DefaultSimilarLimit = 5

// ErrNotFound is returned for unknown beat ids
var ErrNotFound = errors.New("beat not found")

// Store persists beats and their feature rows in SQLite
type Store struct {
	db     *gorm.DB
	logger logging.Logger
}

// NewStore opens (creating if needed) the SQLite database at path and
// migrates the schema
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = DefaultDBFile
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Beat{}, &AudioFeatures{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &Store{
		db: db,
		logger: logging.WithFields(logging.Fields{
			"component": "store",
			"db_path":   path,
		}),
	}, nil
}

// Close releases the database handle
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Store inserts the beat and its feature row in one transaction and returns
// the new beat id. A failed feature insert rolls the beat back.
func (s *Store) Store(ctx context.Context, meta BeatMetadata, fv *features.FeatureVector) (string, error) {
	if fv == nil {
		return "", fmt.Errorf("nil feature vector")
	}

	beat := Beat{
		ID:              uuid.NewString(),
		UserID:          meta.UserID,
		Title:           meta.Title,
		Description:     meta.Description,
		StorageURL:      meta.StorageURL,
		BPM:             meta.BPM,
		KeySignature:    meta.KeySignature,
		DurationSeconds: fv.Duration,
		IsPublic:        meta.IsPublic,
	}
	if beat.BPM <= 0 {
		beat.BPM = fv.Tempo
	}
	if beat.KeySignature == "" {
		beat.KeySignature = tonal.DefaultKey
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&beat).Error; err != nil {
			return fmt.Errorf("inserting beat: %w", err)
		}
		row := AudioFeatures{BeatID: beat.ID, FeatureVector: *fv}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("inserting audio features: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error(err, "Failed to store beat", logging.Fields{"title": meta.Title})
		return "", err
	}

	s.logger.Debug("Stored beat", logging.Fields{
		"beat_id": beat.ID,
		"title":   beat.Title,
		"bpm":     beat.BPM,
	})
	return beat.ID, nil
}

// Get returns a beat with its features
func (s *Store) Get(ctx context.Context, id string) (*Beat, error) {
	var beat Beat
	err := s.db.WithContext(ctx).Preload("Features").Where("id = ?", id).First(&beat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying beat: %w", err)
	}
	return &beat, nil
}

// List returns beats newest first. A non-positive limit returns every beat.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Beat, error) {
	query := s.db.WithContext(ctx).Preload("Features").Order("created_at DESC").Order("id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	beats := []Beat{}
	if err := query.Find(&beats).Error; err != nil {
		return nil, fmt.Errorf("listing beats: %w", err)
	}
	return beats, nil
}

// Delete removes a beat and its feature row
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("beat_id = ?", id).Delete(&AudioFeatures{}).Error; err != nil {
			return fmt.Errorf("deleting audio features: %w", err)
		}
		result := tx.Where("id = ?", id).Delete(&Beat{})
		if result.Error != nil {
			return fmt.Errorf("deleting beat: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// FetchSimilar ranks the other beats of the catalog by cosine similarity of
// their z-scored feature vectors, most similar first. Ties are ordered by
// beat id.
func (s *Store) FetchSimilar(ctx context.Context, id string, limit int) ([]SimilarBeat, error) {
	if limit <= 0 {
		limit = DefaultSimilarLimit
	}

	var beats []Beat
	if err := s.db.WithContext(ctx).Preload("Features").Find(&beats).Error; err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	sort.Slice(beats, func(i, j int) bool { return beats[i].ID < beats[j].ID })

	var target []float64
	rows := make([][]float64, 0, len(beats))
	candidates := make([]Beat, 0, len(beats))
	for _, b := range beats {
		fv := features.FeatureVector{}
		if b.Features != nil {
			fv = b.Features.FeatureVector
		}
		values := fv.Values()
		rows = append(rows, values)
		if b.ID == id {
			target = values
			continue
		}
		candidates = append(candidates, b)
	}
	if target == nil {
		return nil, ErrNotFound
	}

	standardizer, err := stats.FitStandardizer(rows)
	if err != nil {
		return nil, fmt.Errorf("standardizing catalog: %w", err)
	}

	candidateRows := make([][]float64, len(candidates))
	for i, b := range candidates {
		fv := features.FeatureVector{}
		if b.Features != nil {
			fv = b.Features.FeatureVector
		}
		candidateRows[i] = standardizer.Transform(fv.Values())
	}

	ranked := stats.RankBySimilarity(standardizer.Transform(target), candidateRows, limit)
	similar := make([]SimilarBeat, len(ranked))
	for i, n := range ranked {
		b := candidates[n.Index]
		similar[i] = SimilarBeat{
			BeatID: b.ID,
			Title:  b.Title,
			BPM:    b.BPM,
			Score:  n.Score,
		}
	}

	s.logger.Debug("Fetched similar beats", logging.Fields{
		"beat_id": id,
		"catalog": len(beats),
		"results": len(similar),
	})
	return similar, nil
}
