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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupUserTestRouter(t *testing.T) (*chi.Mux, *gorm.DB, *testutil.StaticVerifier) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	verifier := testutil.NewStaticVerifier()

	r := chi.NewRouter()
	r.Use(middleware.Auth(verifier, db))

	handler := handlers.NewUserHandler(db)
	r.Get("/api/v1/me", handler.Me)
	r.Put("/api/v1/me", handler.UpdateMe)
	r.Post("/api/v1/me/onboarding", handler.CompleteOnboarding)
	r.Put("/api/v1/me/address", handler.UpdateAddress)
	r.Get("/api/v1/me/coach", handler.MyCoach)
	r.Get("/api/v1/coaches", handler.ListCoaches)

	return r, db, verifier
}

func TestUserHandler_Me(t *testing.T) {
	router, db, verifier := setupUserTestRouter(t)
	user := testutil.CreateTestUser(t, db)
	token := verifier.Allow(user)

	t.Run("returns profile", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/me", nil, token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp handlers.UserResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, user.Email, resp.Email)
		assert.Equal(t, []string{models.RoleClient}, resp.Roles)
	})

	t.Run("rejects missing token", func(t *testing.T) {
		req := testutil.UnauthenticatedRequest(t, "GET", "/api/v1/me", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("rejects token for unprovisioned subject", func(t *testing.T) {
		ghost := &models.User{Auth0ID: "auth0|ghost", Email: "ghost@example.com"}
		ghostToken := verifier.Allow(ghost)

		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/me", nil, ghostToken)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestUserHandler_UpdateMe(t *testing.T) {
	router, db, verifier := setupUserTestRouter(t)
	user := testutil.CreateTestUser(t, db)
	token := verifier.Allow(user)

	t.Run("updates profile fields", func(t *testing.T) {
		onboarded := true
		line1 := "Stationsplein 1"
		country := "NL"
		body := handlers.UpdateProfileRequest{
			Onboarded:    &onboarded,
			AddressLine1: &line1,
			Country:      &country,
		}

		req := testutil.AuthenticatedRequest(t, "PUT", "/api/v1/me", body, token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)

		var stored models.User
		require.NoError(t, db.First(&stored, "id = ?", user.ID).Error)
		assert.True(t, stored.Onboarded)
		assert.Equal(t, "Stationsplein 1", stored.AddressLine1)
		assert.Equal(t, "NL", stored.Country)
	})

	t.Run("rejects invalid country code", func(t *testing.T) {
		country := "Netherlands"
		body := handlers.UpdateProfileRequest{Country: &country}

		req := testutil.AuthenticatedRequest(t, "PUT", "/api/v1/me", body, token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestUserHandler_CompleteOnboarding(t *testing.T) {
	router, db, verifier := setupUserTestRouter(t)
	user := testutil.CreateTestUser(t, db)
	token := verifier.Allow(user)

	body := handlers.OnboardingRequest{
		Name:         "Robin de Vries",
		AddressLine1: "Keizersgracht 100",
		City:         "Amsterdam",
		Country:      "NL",
	}
	req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/me/onboarding", body, token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var stored models.User
	require.NoError(t, db.First(&stored, "id = ?", user.ID).Error)
	assert.True(t, stored.Onboarded)
	assert.Equal(t, "Robin de Vries", stored.Name)
	assert.Equal(t, "Amsterdam", stored.City)

	t.Run("requires a name", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/me/onboarding",
			handlers.OnboardingRequest{}, token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestUserHandler_UpdateAddress(t *testing.T) {
	router, db, verifier := setupUserTestRouter(t)
	user := testutil.CreateTestUser(t, db)
	token := verifier.Allow(user)

	line1 := "Hoofdstraat 5"
	postal := "1234 AB"
	body := handlers.UpdateProfileRequest{AddressLine1: &line1, PostalCode: &postal}

	req := testutil.AuthenticatedRequest(t, "PUT", "/api/v1/me/address", body, token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var stored models.User
	require.NoError(t, db.First(&stored, "id = ?", user.ID).Error)
	assert.Equal(t, "Hoofdstraat 5", stored.AddressLine1)
	assert.Equal(t, "1234 AB", stored.PostalCode)
	assert.False(t, stored.Onboarded, "address updates must not flip the onboarding flag")
}

func TestUserHandler_ListCoaches(t *testing.T) {
	router, db, verifier := setupUserTestRouter(t)

	coach := testutil.CreateTestCoach(t, db)
	client := testutil.CreateTestUser(t, db)
	token := verifier.Allow(client)

	req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/coaches", nil, token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var coaches []handlers.UserResponse
	testutil.ParseJSONResponse(t, rr, &coaches)
	require.Len(t, coaches, 1)
	assert.Equal(t, coach.Email, coaches[0].Email)
}

func TestUserHandler_MyCoach(t *testing.T) {
	router, db, verifier := setupUserTestRouter(t)

	coach := testutil.CreateTestCoach(t, db)
	client := testutil.CreateTestUser(t, db)
	require.NoError(t, db.Model(client).Update("coach_id", coach.ID).Error)
	token := verifier.Allow(client)

	req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/me/coach", nil, token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp handlers.UserResponse
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.Equal(t, coach.Email, resp.Email)

	t.Run("404 without assignment", func(t *testing.T) {
		solo := testutil.CreateTestUser(t, db)
		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/me/coach", nil, verifier.Allow(solo))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
