package cache

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Entry is the index row for one cached file. AccessedAt drives size-based
// eviction; relying on filesystem atime is unreliable with relatime mounts.
type Entry struct {
	Path       string `gorm:"primaryKey"`
	Name       string `gorm:"index"`
	Hash       string
	Size       int64
	AccessedAt time.Time `gorm:"index"`
	CreatedAt  time.Time
}

// index persists access times and sizes for the cache directory.
type index struct {
	db *gorm.DB
}

// openIndex opens (and migrates) the sqlite index at <dir>/index.db.
func openIndex(dir string, log *slog.Logger) (*index, error) {
	path := filepath.Join(dir, "index.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening cache index %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrating cache index: %w", err)
	}
	log.Debug("cache index opened", slog.String("path", path))
	return &index{db: db}, nil
}

// record upserts the row for a freshly written file.
func (ix *index) record(path, name, hash string, size int64) error {
	now := time.Now()
	entry := Entry{
		Path:       path,
		Name:       name,
		Hash:       hash,
		Size:       size,
		AccessedAt: now,
		CreatedAt:  now,
	}
	return ix.db.Save(&entry).Error
}

// touch refreshes the access time on a cache hit. A missing row (index
// rebuilt, file pre-existing) is recreated.
func (ix *index) touch(path, name, hash string, size int64) error {
	res := ix.db.Model(&Entry{}).Where("path = ?", path).
		Update("accessed_at", time.Now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ix.record(path, name, hash, size)
	}
	return nil
}

// remove drops the row for an evicted file.
func (ix *index) remove(path string) error {
	return ix.db.Delete(&Entry{}, "path = ?", path).Error
}

// totalSize sums the indexed file sizes.
func (ix *index) totalSize() (int64, error) {
	var total int64
	err := ix.db.Model(&Entry{}).Select("COALESCE(SUM(size), 0)").Scan(&total).Error
	return total, err
}

// oldest returns up to limit entries ordered by access time, least recent
// first.
func (ix *index) oldest(limit int) ([]Entry, error) {
	var entries []Entry
	err := ix.db.Order("accessed_at asc").Limit(limit).Find(&entries).Error
	return entries, err
}

// expiredBefore returns entries last accessed before the cutoff.
func (ix *index) expiredBefore(cutoff time.Time) ([]Entry, error) {
	var entries []Entry
	err := ix.db.Where("accessed_at < ?", cutoff).Find(&entries).Error
	return entries, err
}
