package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/condoadmin/backend/internal/config"
	"github.com/condoadmin/backend/internal/database"
	"github.com/condoadmin/backend/internal/middleware"
	"github.com/condoadmin/backend/internal/models"
	"github.com/condoadmin/backend/internal/services"
	"github.com/condoadmin/backend/internal/storage"
	"github.com/condoadmin/backend/pkg/logger"
	"github.com/condoadmin/backend/pkg/utils"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	store    *storage.LocalStorage
	registry *services.FileRegistry
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating models: %v", err)
	}

	uploadCfg := config.UploadConfig{
		Dir:                t.TempDir(),
		MaxFileSizeBytes:   10 * 1024 * 1024,
		MaxFilesPerRequest: 10,
	}

	store := storage.NewLocalStorage(uploadCfg.Dir)
	registry := services.NewFileRegistry(db, store)
	auditService := services.NewAuditService(db)
	filesHandler := NewFilesHandler(registry, store, auditService, uploadCfg)

	app := fiber.New(fiber.Config{BodyLimit: 100 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	fileRoutes := api.Group("/files", middleware.RequireAuth)
	fileRoutes.Post("/upload", filesHandler.UploadFiles)
	fileRoutes.Get("/stats", filesHandler.Stats)
	fileRoutes.Post("/cleanup", middleware.AdminOnly, filesHandler.Cleanup)
	fileRoutes.Get("/", filesHandler.List)
	fileRoutes.Get("/:id", filesHandler.Download)
	fileRoutes.Delete("/:id/permanent", middleware.AdminOnly, filesHandler.PermanentDelete)
	fileRoutes.Delete("/:id", filesHandler.Delete)

	return &testEnv{app: app, db: db, store: store, registry: registry}
}

func makeToken(t *testing.T, userID, communityID int64, role models.Role) string {
	t.Helper()

	token, err := utils.GenerateToken(&models.Principal{
		UserID:      userID,
		CommunityID: communityID,
		Email:       "resident@test.com",
		Role:        role,
	})
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}
	return token
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

type multipartFile struct {
	Name        string
	Content     []byte
	ContentType string
}

func performMultipartUpload(t *testing.T, app *fiber.App, fields map[string]string, files []multipartFile, headers map[string]string) *http.Response {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed writing form field %q: %v", key, err)
		}
	}

	for _, file := range files {
		var part io.Writer
		var err error
		if file.ContentType != "" {
			header := textproto.MIMEHeader{}
			header.Set("Content-Disposition", `form-data; name="files"; filename="`+file.Name+`"`)
			header.Set("Content-Type", file.ContentType)
			part, err = writer.CreatePart(header)
		} else {
			part, err = writer.CreateFormFile("files", file.Name)
		}
		if err != nil {
			t.Fatalf("failed creating multipart part for %q: %v", file.Name, err)
		}
		if _, err := part.Write(file.Content); err != nil {
			t.Fatalf("failed writing multipart content for %q: %v", file.Name, err)
		}
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("failed closing multipart writer: %v", err)
	}

	requestHeaders := map[string]string{"Content-Type": writer.FormDataContentType()}
	for key, value := range headers {
		requestHeaders[key] = value
	}

	return performRequest(t, app, http.MethodPost, "/api/files/upload", &body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}
