package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"school-evoting-backend/cache"
	"school-evoting-backend/database"
	"school-evoting-backend/models"
	"school-evoting-backend/service"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)

	// sessions and locks run against the in-process mock store
	os.Setenv("REDIS_MOCK", "true")
	os.Setenv("ADMIN_USERNAME", "admin")
	os.Setenv("ADMIN_PASSWORD", "correct-horse")
	_ = cache.InitRedis()

	os.Exit(m.Run())
}

// setupTestEnv wires an in-memory database into the handler layer and
// returns a router with the production route layout.
func setupTestEnv(t *testing.T) *gin.Engine {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))

	database.DB = db
	InitHandlers(nil, nil)

	t.Cleanup(func() {
		clearTables(db)
		_ = sqlDB.Close()
	})

	return newTestRouter()
}

func clearTables(db *gorm.DB) {
	session := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped()
	session.Delete(&models.Vote{})
	session.Delete(&models.VoteToken{})
	session.Delete(&models.Voter{})
	session.Delete(&models.Candidate{})
	session.Delete(&models.ElectionState{})
}

// newTestRouter mirrors the route layout in routes.SetupRouter. Built here
// because the routes package imports this one.
func newTestRouter() *gin.Engine {
	router := gin.New()

	api := router.Group("/api")
	{
		api.GET("/health", HealthCheck)

		api.POST("/auth/login", Login)
		api.POST("/auth/logout", Logout)
		api.POST("/admin/login", AdminLogin)
		api.GET("/election", ElectionStatus)
		api.GET("/candidates", ListCandidates)

		voter := api.Group("")
		voter.Use(RequireVoter())
		{
			voter.GET("/auth/me", Me)
			voter.POST("/vote", CastVote)
		}

		admin := api.Group("/admin")
		admin.Use(RequireAdmin())
		{
			admin.GET("/results", GetResults)
			admin.POST("/election/open", SetVotingOpen)
			admin.POST("/election/window", SetElectionWindow)
			admin.POST("/election/reset", ResetElection)

			admin.GET("/candidates", ListAllCandidates)
			admin.POST("/candidates", CreateCandidate)
			admin.PUT("/candidates/:id", UpdateCandidate)
			admin.DELETE("/candidates/:id", DeleteCandidate)

			admin.GET("/voters", ListVoters)
			admin.POST("/voters", CreateVoter)
			admin.POST("/voters/import", ImportVoters)
			admin.POST("/voters/:id/token", IssueToken)
			admin.POST("/tokens/bulk", BulkIssueTokens)
		}
	}

	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == sessionCookieName && cookie.Value != "" {
			return cookie
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

// registerVoterWithToken creates a voter and issues their token directly
// through the service layer, returning the plaintext secret.
func registerVoterWithToken(t *testing.T, studentNumber, name string) (*models.Voter, string) {
	t.Helper()

	voter := &models.Voter{StudentNumber: studentNumber, Name: name, ClassName: "9A"}
	require.NoError(t, database.DB.Create(voter).Error)

	token, err := service.NewTokenService(database.DB).IssueToken(context.Background(), voter.ID)
	require.NoError(t, err)
	return voter, token.Secret
}

func createTestCandidate(t *testing.T, name string, active bool) *models.Candidate {
	t.Helper()
	candidate := &models.Candidate{Name: name, IsActive: active}
	require.NoError(t, database.DB.Create(candidate).Error)
	return candidate
}

// loginVoter performs the HTTP login flow and returns the session cookie.
func loginVoter(t *testing.T, router *gin.Engine, studentNumber, secret string) *http.Cookie {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/auth/login", gin.H{
		"student_number": studentNumber,
		"secret":         secret,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return sessionCookie(t, w)
}

// loginAdmin performs the admin login flow and returns the session cookie.
func loginAdmin(t *testing.T, router *gin.Engine) *http.Cookie {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/admin/login", gin.H{
		"username": "admin",
		"password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return sessionCookie(t, w)
}

// openVoting flips the election open through the admin API.
func openVoting(t *testing.T, router *gin.Engine, adminCookie *http.Cookie) {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/admin/election/open", gin.H{"open": true}, adminCookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
