package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/projectbrain/backend/internal/api/handlers"
	"github.com/projectbrain/backend/internal/api/middleware"
	"github.com/projectbrain/backend/internal/database/models"
	"github.com/projectbrain/backend/internal/testutil"
	"github.com/projectbrain/backend/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupJournalTestRouter(t *testing.T) (*chi.Mux, *gorm.DB, *testutil.StaticVerifier) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	encryptor, err := crypto.NewEncryptor("")
	require.NoError(t, err)

	verifier := testutil.NewStaticVerifier()

	r := chi.NewRouter()
	r.Use(middleware.Auth(verifier, db))

	handler := handlers.NewJournalHandler(db, encryptor)
	r.Route("/api/v1/journal", func(r chi.Router) {
		r.Get("/", handler.List)
		r.Post("/", handler.Create)
		r.Get("/{id}", handler.Get)
		r.Put("/{id}", handler.Update)
		r.Delete("/{id}", handler.Delete)
	})

	return r, db, verifier
}

func TestJournalHandler_RoundTrip(t *testing.T) {
	router, db, verifier := setupJournalTestRouter(t)
	user := testutil.CreateTestUser(t, db)
	token := verifier.Allow(user)

	const plaintext = "Slept badly, but the morning routine held up."

	req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/journal",
		handlers.JournalEntryRequest{Title: "Tuesday", Body: plaintext, Mood: "tired"}, token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var created handlers.JournalEntryResponse
	testutil.ParseJSONResponse(t, rr, &created)
	assert.Equal(t, plaintext, created.Body)

	// The stored body is ciphertext, not the plaintext.
	var stored models.JournalEntry
	require.NoError(t, db.First(&stored, "user_id = ?", user.ID).Error)
	assert.NotEqual(t, plaintext, stored.Body)
	assert.NotEmpty(t, stored.Body)

	// Get decrypts.
	req = testutil.AuthenticatedRequest(t, "GET", "/api/v1/journal/"+created.ID, nil, token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var got handlers.JournalEntryResponse
	testutil.ParseJSONResponse(t, rr, &got)
	assert.Equal(t, plaintext, got.Body)
	assert.Equal(t, "tired", got.Mood)
}

func TestJournalHandler_ListOmitsBodies(t *testing.T) {
	router, db, verifier := setupJournalTestRouter(t)
	user := testutil.CreateTestUser(t, db)
	token := verifier.Allow(user)

	req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/journal",
		handlers.JournalEntryRequest{Title: "Entry", Body: "secret"}, token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	req = testutil.AuthenticatedRequest(t, "GET", "/api/v1/journal", nil, token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "secret")
}

func TestJournalHandler_UpdateReencrypts(t *testing.T) {
	router, db, verifier := setupJournalTestRouter(t)
	user := testutil.CreateTestUser(t, db)
	token := verifier.Allow(user)

	req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/journal",
		handlers.JournalEntryRequest{Title: "Draft", Body: "first version"}, token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var created handlers.JournalEntryResponse
	testutil.ParseJSONResponse(t, rr, &created)

	req = testutil.AuthenticatedRequest(t, "PUT", "/api/v1/journal/"+created.ID,
		handlers.JournalEntryRequest{Title: "Draft", Body: "second version"}, token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	req = testutil.AuthenticatedRequest(t, "GET", "/api/v1/journal/"+created.ID, nil, token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	var got handlers.JournalEntryResponse
	testutil.ParseJSONResponse(t, rr, &got)
	assert.Equal(t, "second version", got.Body)
}

func TestJournalHandler_OwnershipIsEnforced(t *testing.T) {
	router, db, verifier := setupJournalTestRouter(t)
	owner := testutil.CreateTestUser(t, db)
	intruder := testutil.CreateTestUser(t, db)

	req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/journal",
		handlers.JournalEntryRequest{Title: "Mine", Body: "private"}, verifier.Allow(owner))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var created handlers.JournalEntryResponse
	testutil.ParseJSONResponse(t, rr, &created)

	req = testutil.AuthenticatedRequest(t, "GET", "/api/v1/journal/"+created.ID, nil, verifier.Allow(intruder))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
