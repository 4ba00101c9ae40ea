package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/docshare/conduit/internal/config"
	"github.com/docshare/conduit/internal/database"
	"github.com/docshare/conduit/internal/events"
	"github.com/docshare/conduit/internal/middleware"
	"github.com/docshare/conduit/internal/models"
	"github.com/docshare/conduit/internal/services"
	"github.com/docshare/conduit/internal/storage"
	"github.com/docshare/conduit/pkg/logger"
	"github.com/docshare/conduit/pkg/utils"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

const testWebhookSecret = "hook-secret"

type recordingQueue struct {
	mu     sync.Mutex
	events []events.UploadEvent
	full   bool
}

func (q *recordingQueue) Enqueue(ev events.UploadEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return false
	}
	q.events = append(q.events, ev)
	return true
}

type stubMetadataSource struct {
	objects map[string]*storage.ObjectMeta
}

func (s *stubMetadataSource) StatMetadata(_ context.Context, bucket, objectName string) (*storage.ObjectMeta, error) {
	if meta, ok := s.objects[bucket+"/"+objectName]; ok {
		return meta, nil
	}
	return nil, io.ErrUnexpectedEOF
}

type testEnv struct {
	app    *fiber.App
	db     *gorm.DB
	drives *services.DriveService
	queue  *recordingQueue
	stat   *stubMetadataSource
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
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating: %v", err)
	}

	driveService := services.NewDriveService(db, config.TreeConfig{MaxDepth: 32})
	notificationService := services.NewNotificationService(db, config.WorkerConfig{QueueBufferSize: 16})
	t.Cleanup(notificationService.Close)

	queue := &recordingQueue{}
	stat := &stubMetadataSource{objects: map[string]*storage.ObjectMeta{}}

	app := fiber.New()
	app.Use(recover.New())
	app.Use(middleware.RequestLogger())

	Routes{
		Auth:          middleware.NewAuthMiddleware(db),
		WebhookSecret: testWebhookSecret,
		Webhook:       NewWebhookHandler(stat, queue),
		Drives:        NewDrivesHandler(driveService),
		Notifications: NewNotificationsHandler(notificationService),
	}.Register(app)

	return &testEnv{app: app, db: db, drives: driveService, queue: queue, stat: stat}
}

func createTestUser(t *testing.T, db *gorm.DB, email string) (*models.User, string) {
	t.Helper()

	user := &models.User{Email: email, FirstName: "Test", LastName: "User"}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}
	return user, token
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	return resp
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed encoding body: %v", err)
	}
	return strings.NewReader(string(raw))
}

func decodeEnvelope(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("failed decoding response: %v body=%q", err, string(raw))
	}
	return body
}

func assertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d body=%s", want, resp.StatusCode, string(raw))
	}
}
