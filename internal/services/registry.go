package services

import (
	"time"

	"github.com/condoadmin/backend/internal/models"
	"github.com/condoadmin/backend/internal/storage"
	"github.com/condoadmin/backend/pkg/logger"
	"gorm.io/gorm"
)

// FileRegistry owns the metadata table behind every accepted upload. All
// read operations are tenant-scoped: a file of another community is
// indistinguishable from a nonexistent one, and soft-deleted rows never
// surface again.
type FileRegistry struct {
	DB      *gorm.DB
	Storage *storage.LocalStorage
}

func NewFileRegistry(db *gorm.DB, store *storage.LocalStorage) *FileRegistry {
	return &FileRegistry{DB: db, Storage: store}
}

// Create inserts one registry row. No dedup: path uniqueness comes from
// the stored-name generation, not from a database constraint.
func (r *FileRegistry) Create(record *models.FileRecord) error {
	return r.DB.Create(record).Error
}

func (r *FileRegistry) GetByID(id, communityID int64) (*models.FileRecord, error) {
	var record models.FileRecord
	err := r.DB.
		Where("id = ? AND community_id = ? AND is_active = ?", id, communityID, true).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListQuery holds the optional, conjunctive filters of a listing.
type ListQuery struct {
	EntityType string
	EntityID   int64
	Category   string
}

func (r *FileRegistry) ListByContext(communityID int64, query ListQuery) ([]models.FileRecord, error) {
	tx := r.DB.
		Where("community_id = ? AND is_active = ?", communityID, true).
		Order("uploaded_at DESC")

	if query.EntityType != "" {
		tx = tx.Where("entity_type = ?", query.EntityType)
	}
	if query.EntityID > 0 {
		tx = tx.Where("entity_id = ?", query.EntityID)
	}
	if query.Category != "" {
		tx = tx.Where("category = ?", query.Category)
	}

	var records []models.FileRecord
	if err := tx.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// SoftDelete marks the row inactive and stamps who did it. The row keeps
// its bytes on disk; there is no undelete. An already-inactive or foreign
// row reports not-found.
func (r *FileRegistry) SoftDelete(id, communityID, actingUserID int64) error {
	now := time.Now().UTC()
	result := r.DB.Model(&models.FileRecord{}).
		Where("id = ? AND community_id = ? AND is_active = ?", id, communityID, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": now,
			"updated_by": actingUserID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// HardDelete removes the on-disk bytes and then the row itself. This is
// irreversible and reserved for administrative cleanup.
func (r *FileRegistry) HardDelete(id, communityID int64) error {
	record, err := r.GetByID(id, communityID)
	if err != nil {
		return err
	}

	if err := r.Storage.Remove(record.Path); err != nil {
		return err
	}

	return r.DB.Delete(&models.FileRecord{}, record.ID).Error
}

// FileStats are the derived, read-only aggregates for one community.
type FileStats struct {
	TotalFiles     int64            `json:"totalFiles"`
	TotalSizeBytes int64            `json:"totalSizeBytes"`
	ByEntityType   map[string]int64 `json:"byEntityType"`
	ByCategory     map[string]int64 `json:"byCategory"`
}

// statCategories is the fixed category breakdown reported by Stats;
// other category values count toward the totals only.
var statCategories = []string{"avatar", "documents", "receipts"}

func (r *FileRegistry) Stats(communityID int64) (*FileStats, error) {
	stats := &FileStats{
		ByEntityType: make(map[string]int64),
		ByCategory:   make(map[string]int64),
	}

	active := func() *gorm.DB {
		return r.DB.Model(&models.FileRecord{}).
			Where("community_id = ? AND is_active = ?", communityID, true)
	}

	if err := active().Count(&stats.TotalFiles).Error; err != nil {
		return nil, err
	}

	if err := active().Select("COALESCE(SUM(size_bytes), 0)").Scan(&stats.TotalSizeBytes).Error; err != nil {
		return nil, err
	}

	type bucket struct {
		Name  *string
		Count int64
	}

	var byEntity []bucket
	if err := active().
		Select("entity_type AS name, COUNT(*) AS count").
		Group("entity_type").Scan(&byEntity).Error; err != nil {
		return nil, err
	}
	entityCounts := make(map[string]int64)
	for _, b := range byEntity {
		if b.Name != nil {
			entityCounts[*b.Name] = b.Count
		}
	}
	for _, entityType := range EntityTypes() {
		stats.ByEntityType[string(entityType)] = entityCounts[string(entityType)]
	}

	var byCategory []bucket
	if err := active().
		Select("category AS name, COUNT(*) AS count").
		Group("category").Scan(&byCategory).Error; err != nil {
		return nil, err
	}
	categoryCounts := make(map[string]int64)
	for _, b := range byCategory {
		if b.Name != nil {
			categoryCounts[*b.Name] = b.Count
		}
	}
	for _, category := range statCategories {
		stats.ByCategory[category] = categoryCounts[category]
	}

	return stats, nil
}

// ReconcileOrphans deletes every on-disk file under the community's
// subtree whose name is not registered as an active record. It is
// one-directional: rows pointing at missing files are left alone.
// Removal is best-effort; a file that cannot be removed is logged and
// skipped, never retried.
func (r *FileRegistry) ReconcileOrphans(communityID int64) (int, error) {
	var names []string
	err := r.DB.Model(&models.FileRecord{}).
		Where("community_id = ? AND is_active = ?", communityID, true).
		Pluck("stored_name", &names).Error
	if err != nil {
		return 0, err
	}

	known := make(map[string]struct{}, len(names))
	for _, name := range names {
		known[name] = struct{}{}
	}

	removed := 0
	err = r.Storage.WalkCommunity(communityID, func(path, name string) error {
		if _, ok := known[name]; ok {
			return nil
		}
		if err := r.Storage.Remove(path); err != nil {
			logger.Error("orphan_remove_failed", err, map[string]interface{}{
				"community_id": communityID,
				"path":         path,
			})
			return nil
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, err
	}

	return removed, nil
}

// CommunityIDs lists every community that has at least one active file,
// for the scheduled reconciliation sweep.
func (r *FileRegistry) CommunityIDs() ([]int64, error) {
	var ids []int64
	err := r.DB.Model(&models.FileRecord{}).
		Where("is_active = ?", true).
		Distinct().
		Pluck("community_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
