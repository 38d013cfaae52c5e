package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/projectbrain/backend/internal/auth"
	"github.com/projectbrain/backend/internal/database/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Run migrations
	err = db.AutoMigrate(
		&models.User{},
		&models.Subscription{},
		&models.Conversation{},
		&models.ChatMessage{},
		&models.JournalEntry{},
		&models.Quiz{},
		&models.QuizResponse{},
		&models.Resource{},
		&models.WebhookEvent{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database connection
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("warning: failed to get sql.DB: %v", err)
		return
	}
	sqlDB.Close()
}

// CreateTestUser creates a test user with a unique Auth0 subject
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	suffix := uuid.New().String()[:8]
	user := &models.User{
		Base: models.Base{
			ID: uuid.New(),
		},
		Auth0ID:       "auth0|test-" + suffix,
		Email:         "test-" + suffix + "@example.com",
		Name:          "Test User",
		Connection:    "Username-Password-Authentication",
		EmailVerified: true,
		Onboarded:     true,
		Roles:         models.StringArray{models.RoleClient},
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	return user
}

// CreateTestCoach creates a test user carrying the coach role
func CreateTestCoach(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	coach := CreateTestUser(t, db)
	coach.Roles = models.StringArray{models.RoleCoach}
	if err := db.Save(coach).Error; err != nil {
		t.Fatalf("failed to promote test coach: %v", err)
	}
	return coach
}

// StaticVerifier is a TokenVerifier that maps bearer tokens to canned
// claims, so handler tests never touch a JWKS endpoint.
type StaticVerifier struct {
	Tokens map[string]*auth.Claims
}

func NewStaticVerifier() *StaticVerifier {
	return &StaticVerifier{Tokens: make(map[string]*auth.Claims)}
}

// Allow registers a token for the given user and returns it.
func (v *StaticVerifier) Allow(user *models.User) string {
	token := "test-token-" + uuid.New().String()[:8]
	v.Tokens[token] = &auth.Claims{Subject: user.Auth0ID, Email: user.Email}
	return token
}

func (v *StaticVerifier) Verify(tokenString string) (*auth.Claims, error) {
	claims, ok := v.Tokens[tokenString]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return claims, nil
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}
