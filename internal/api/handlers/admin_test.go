package handlers_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/projectbrain/backend/internal/api/handlers"
	"github.com/projectbrain/backend/internal/api/middleware"
	"github.com/projectbrain/backend/internal/billing"
	"github.com/projectbrain/backend/internal/database/models"
	"github.com/projectbrain/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupAdminTestRouter(t *testing.T) (*chi.Mux, *gorm.DB, *testutil.StaticVerifier) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	billingService := billing.NewService(db, nil, "", "", "", logger)

	verifier := testutil.NewStaticVerifier()

	r := chi.NewRouter()
	r.Use(middleware.Auth(verifier, db))
	r.Use(middleware.RequireRole(models.RoleAdmin))

	handler := handlers.NewAdminHandler(db, nil, billingService, logger)
	r.Get("/api/v1/admin/users", handler.ListUsers)
	r.Put("/api/v1/admin/users/{id}/roles", handler.SetRoles)
	r.Put("/api/v1/admin/users/{id}/coach", handler.AssignCoach)
	r.Put("/api/v1/admin/users/{id}/exclusion", handler.SetExclusion)

	return r, db, verifier
}

func createAdmin(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	admin := testutil.CreateTestUser(t, db)
	require.NoError(t, db.Model(admin).Update("roles", models.StringArray{models.RoleAdmin}).Error)
	admin.Roles = models.StringArray{models.RoleAdmin}
	return admin
}

func TestAdminHandler_RequiresAdminRole(t *testing.T) {
	router, db, verifier := setupAdminTestRouter(t)
	client := testutil.CreateTestUser(t, db)

	req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/admin/users", nil, verifier.Allow(client))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestAdminHandler_SetRoles(t *testing.T) {
	router, db, verifier := setupAdminTestRouter(t)
	admin := createAdmin(t, db)
	target := testutil.CreateTestUser(t, db)

	req := testutil.AuthenticatedRequest(t, "PUT", "/api/v1/admin/users/"+target.ID.String()+"/roles",
		handlers.SetRolesRequest{Roles: []string{models.RoleCoach}}, verifier.Allow(admin))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var updated models.User
	require.NoError(t, db.First(&updated, "id = ?", target.ID).Error)
	assert.True(t, updated.IsCoach())
	assert.False(t, updated.Roles.Contains(models.RoleClient))

	t.Run("rejects unknown role", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "PUT", "/api/v1/admin/users/"+target.ID.String()+"/roles",
			handlers.SetRolesRequest{Roles: []string{"superuser"}}, verifier.Allow(admin))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestAdminHandler_AssignCoach(t *testing.T) {
	router, db, verifier := setupAdminTestRouter(t)
	admin := createAdmin(t, db)
	coach := testutil.CreateTestCoach(t, db)
	client := testutil.CreateTestUser(t, db)

	coachID := coach.ID.String()
	req := testutil.AuthenticatedRequest(t, "PUT", "/api/v1/admin/users/"+client.ID.String()+"/coach",
		handlers.AssignCoachRequest{CoachID: &coachID}, verifier.Allow(admin))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var updated models.User
	require.NoError(t, db.First(&updated, "id = ?", client.ID).Error)
	require.NotNil(t, updated.CoachID)
	assert.Equal(t, coach.ID, *updated.CoachID)

	t.Run("rejects non-coach assignee", func(t *testing.T) {
		notACoach := testutil.CreateTestUser(t, db)
		badID := notACoach.ID.String()
		req := testutil.AuthenticatedRequest(t, "PUT", "/api/v1/admin/users/"+client.ID.String()+"/coach",
			handlers.AssignCoachRequest{CoachID: &badID}, verifier.Allow(admin))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("clears assignment", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "PUT", "/api/v1/admin/users/"+client.ID.String()+"/coach",
			handlers.AssignCoachRequest{CoachID: nil}, verifier.Allow(admin))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)

		var cleared models.User
		require.NoError(t, db.First(&cleared, "id = ?", client.ID).Error)
		assert.Nil(t, cleared.CoachID)
	})
}

func TestAdminHandler_SetExclusion(t *testing.T) {
	router, db, verifier := setupAdminTestRouter(t)
	admin := createAdmin(t, db)
	target := testutil.CreateTestUser(t, db)

	req := testutil.AuthenticatedRequest(t, "PUT", "/api/v1/admin/users/"+target.ID.String()+"/exclusion",
		handlers.SetExclusionRequest{Excluded: true}, verifier.Allow(admin))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var sub models.Subscription
	require.NoError(t, db.Where("user_id = ?", target.ID).First(&sub).Error)
	assert.True(t, sub.Excluded)
	assert.True(t, sub.HasAccess(), "excluded users keep access regardless of billing state")
}
