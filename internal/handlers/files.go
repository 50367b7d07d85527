package handlers

import (
	"errors"
	"fmt"
	"math"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/condoadmin/backend/internal/config"
	"github.com/condoadmin/backend/internal/middleware"
	"github.com/condoadmin/backend/internal/models"
	"github.com/condoadmin/backend/internal/services"
	"github.com/condoadmin/backend/internal/storage"
	"github.com/condoadmin/backend/pkg/logger"
	"github.com/condoadmin/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type FilesHandler struct {
	Registry *services.FileRegistry
	Storage  *storage.LocalStorage
	Audit    *services.AuditService
	Upload   config.UploadConfig
}

func NewFilesHandler(registry *services.FileRegistry, store *storage.LocalStorage, audit *services.AuditService, uploadCfg config.UploadConfig) *FilesHandler {
	return &FilesHandler{Registry: registry, Storage: store, Audit: audit, Upload: uploadCfg}
}

type uploadedFileResponse struct {
	ID           int64  `json:"id"`
	OriginalName string `json:"originalName"`
	StoredName   string `json:"storedName"`
	SizeBytes    int64  `json:"sizeBytes"`
	MimeType     string `json:"mimeType"`
	Category     string `json:"category"`
	URL          string `json:"url"`
}

// UploadFiles accepts up to the configured number of multipart files.
// Each file passes the admission filter independently: a rejected file
// never aborts siblings. Batch-level violations (too many files, a file
// over the size cap) fail the whole request before anything is written.
func (h *FilesHandler) UploadFiles(c *fiber.Ctx) error {
	principal := middleware.GetPrincipal(c)
	if principal == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid multipart form")
	}

	files := form.File["files"]
	if len(files) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no files")
	}
	if len(files) > h.Upload.MaxFilesPerRequest {
		return utils.Error(c, fiber.StatusBadRequest, "too many files")
	}
	for _, header := range files {
		if header.Size > h.Upload.MaxFileSizeBytes {
			return utils.Error(c, fiber.StatusBadRequest, "file too large")
		}
	}

	communityID := principal.CommunityID
	if raw := formValue(form, "communityId"); raw != "" {
		parsed, err := parseID(raw)
		if err != nil || parsed <= 0 {
			return utils.Error(c, fiber.StatusBadRequest, "invalid community id")
		}
		communityID = parsed
	}
	if communityID <= 0 {
		return utils.Error(c, fiber.StatusBadRequest, "missing community id")
	}

	var entityType string
	if raw := formValue(form, "entityType"); raw != "" {
		parsed, err := services.ParseEntityType(raw)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid entity type")
		}
		entityType = string(parsed)
	}

	var entityID int64
	if raw := formValue(form, "entityId"); raw != "" {
		parsed, err := parseID(raw)
		if err != nil || parsed <= 0 {
			return utils.Error(c, fiber.StatusBadRequest, "invalid entity id")
		}
		entityID = parsed
	}

	category := formValue(form, "category")
	description := formValue(form, "description")

	rejected := 0
	admissible := make([]*multipart.FileHeader, 0, len(files))
	for _, header := range files {
		if !services.ExtensionAllowed(header.Filename) {
			rejected++
			logger.WarnWithUser(fmt.Sprintf("%d", principal.UserID), "file_type_rejected", map[string]interface{}{
				"file_name":    header.Filename,
				"community_id": communityID,
			})
			continue
		}
		admissible = append(admissible, header)
	}
	if len(admissible) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no files")
	}

	dir, err := h.Storage.ResolveDestination(storage.Destination{
		CommunityID: communityID,
		EntityType:  entityType,
		EntityID:    entityID,
		Category:    category,
	})
	if err != nil {
		if errors.Is(err, storage.ErrMissingCommunity) {
			return utils.Error(c, fiber.StatusBadRequest, "missing community id")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed preparing upload directory")
	}

	accepted := make([]uploadedFileResponse, 0, len(admissible))
	for _, header := range admissible {
		record, err := h.persistFile(header, dir, communityID, entityType, entityID, category, description, principal.UserID)
		if err != nil {
			rejected++
			continue
		}

		accepted = append(accepted, uploadedFileResponse{
			ID:           record.ID,
			OriginalName: record.OriginalName,
			StoredName:   record.StoredName,
			SizeBytes:    record.SizeBytes,
			MimeType:     record.MimeType,
			Category:     record.Category,
			URL:          fmt.Sprintf("/api/files/%d", record.ID),
		})

		h.Audit.LogAsync(services.AuditEntry{
			UserID:       &principal.UserID,
			CommunityID:  communityID,
			Action:       "file.upload",
			ResourceType: "file",
			ResourceID:   &record.ID,
			Details: map[string]interface{}{
				"file_name":   record.OriginalName,
				"stored_name": record.StoredName,
				"size_bytes":  record.SizeBytes,
				"mime_type":   record.MimeType,
			},
			IPAddress: c.IP(),
			RequestID: getRequestID(c),
		})
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"files":    accepted,
		"uploaded": len(accepted),
		"rejected": rejected,
	})
}

// persistFile streams one admitted file to disk and registers it. A
// registry failure after a successful write triggers a best-effort disk
// cleanup; a crash in between leaves an orphan for reconciliation.
func (h *FilesHandler) persistFile(header *multipart.FileHeader, dir string, communityID int64, entityType string, entityID int64, category, description string, uploadedBy int64) (*models.FileRecord, error) {
	stream, err := header.Open()
	if err != nil {
		logger.Error("file_open_failed", err, map[string]interface{}{
			"file_name": header.Filename,
		})
		return nil, err
	}
	defer stream.Close()

	storedName := storage.StoredName(header.Filename)
	path, written, err := h.Storage.Save(dir, storedName, stream)
	if err != nil {
		logger.Error("file_write_failed", err, map[string]interface{}{
			"file_name":   header.Filename,
			"stored_name": storedName,
		})
		return nil, err
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(header.Filename))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	record := models.FileRecord{
		OriginalName: header.Filename,
		StoredName:   storedName,
		Path:         path,
		SizeBytes:    written,
		MimeType:     contentType,
		CommunityID:  communityID,
		Category:     category,
		UploadedBy:   &uploadedBy,
	}
	if entityType != "" {
		record.EntityType = &entityType
	}
	if entityID > 0 {
		record.EntityID = &entityID
	}
	if description != "" {
		record.Description = &description
	}

	if err := h.Registry.Create(&record); err != nil {
		logger.Error("file_record_insert_failed", err, map[string]interface{}{
			"file_name":   header.Filename,
			"stored_name": storedName,
		})
		if removeErr := h.Storage.Remove(path); removeErr != nil {
			logger.Error("upload_cleanup_failed", removeErr, map[string]interface{}{
				"path": path,
			})
		}
		return nil, err
	}

	return &record, nil
}

type fileListItem struct {
	models.FileRecord
	URL         string  `json:"url"`
	DownloadURL string  `json:"downloadUrl"`
	PreviewURL  *string `json:"previewUrl,omitempty"`
}

func (h *FilesHandler) List(c *fiber.Ctx) error {
	principal := middleware.GetPrincipal(c)
	if principal == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	query := services.ListQuery{
		EntityType: strings.TrimSpace(c.Query("entityType")),
		Category:   strings.TrimSpace(c.Query("category")),
	}
	if raw := c.Query("entityId"); raw != "" {
		parsed, err := parseID(raw)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid entity id")
		}
		query.EntityID = parsed
	}

	records, err := h.Registry.ListByContext(principal.CommunityID, query)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "persistence error")
	}

	items := make([]fileListItem, 0, len(records))
	for _, record := range records {
		url := fmt.Sprintf("/api/files/%d", record.ID)
		item := fileListItem{
			FileRecord:  record,
			URL:         url,
			DownloadURL: url,
		}
		if strings.HasPrefix(record.MimeType, "image/") {
			item.PreviewURL = &url
		}
		items = append(items, item)
	}

	return utils.Success(c, fiber.StatusOK, items)
}

func (h *FilesHandler) Download(c *fiber.Ctx) error {
	principal := middleware.GetPrincipal(c)
	if principal == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	record, err := h.Registry.GetByID(fileID, principal.CommunityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "persistence error")
	}

	// An active row without bytes is reported, never repaired here.
	if !h.Storage.Exists(record.Path) {
		logger.Warn("file_missing_on_disk", map[string]interface{}{
			"file_id":      record.ID,
			"community_id": record.CommunityID,
			"path":         record.Path,
		})
		return utils.Error(c, fiber.StatusNotFound, "file not found")
	}

	if err := c.Download(record.Path, record.OriginalName); err != nil {
		logger.Error("file_stream_failed", err, map[string]interface{}{
			"file_id": record.ID,
			"path":    record.Path,
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed streaming file")
	}
	return nil
}

func (h *FilesHandler) Delete(c *fiber.Ctx) error {
	principal := middleware.GetPrincipal(c)
	if principal == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	if err := h.Registry.SoftDelete(fileID, principal.CommunityID, principal.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "persistence error")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &principal.UserID,
		CommunityID:  principal.CommunityID,
		Action:       "file.delete",
		ResourceType: "file",
		ResourceID:   &fileID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"deleted": true})
}

// PermanentDelete removes the row and its bytes. Admin-only; soft delete
// remains the default delete behavior.
func (h *FilesHandler) PermanentDelete(c *fiber.Ctx) error {
	principal := middleware.GetPrincipal(c)
	if principal == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	if err := h.Registry.HardDelete(fileID, principal.CommunityID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "persistence error")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &principal.UserID,
		CommunityID:  principal.CommunityID,
		Action:       "file.purge",
		ResourceType: "file",
		ResourceID:   &fileID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"deleted": true, "permanent": true})
}

func (h *FilesHandler) Stats(c *fiber.Ctx) error {
	principal := middleware.GetPrincipal(c)
	if principal == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	stats, err := h.Registry.Stats(principal.CommunityID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "persistence error")
	}

	totalSizeMB := math.Round(float64(stats.TotalSizeBytes)/(1024*1024)*100) / 100

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"totalFiles":     stats.TotalFiles,
		"totalSizeBytes": stats.TotalSizeBytes,
		"totalSizeMB":    totalSizeMB,
		"byEntityType":   stats.ByEntityType,
		"byCategory":     stats.ByCategory,
	})
}

// Cleanup triggers orphan reconciliation for the caller's community.
func (h *FilesHandler) Cleanup(c *fiber.Ctx) error {
	principal := middleware.GetPrincipal(c)
	if principal == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	removed, err := h.Registry.ReconcileOrphans(principal.CommunityID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "cleanup failed")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &principal.UserID,
		CommunityID:  principal.CommunityID,
		Action:       "files.cleanup",
		ResourceType: "file",
		Details: map[string]interface{}{
			"removed": removed,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"removed": removed})
}
