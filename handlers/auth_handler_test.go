package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_ValidCredentials(t *testing.T) {
	router := setupTestEnv(t)
	voter, secret := registerVoterWithToken(t, "2024001", "Ada Lovelace")

	w := doJSON(t, router, http.MethodPost, "/api/auth/login", gin.H{
		"student_number": voter.StudentNumber,
		"secret":         secret,
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "2024001", body["student_number"])
	assert.Equal(t, "Ada Lovelace", body["name"])
	assert.Equal(t, false, body["has_voted"])
	sessionCookie(t, w)
}

func TestLogin_WrongSecret(t *testing.T) {
	router := setupTestEnv(t)
	voter, _ := registerVoterWithToken(t, "2024002", "Grace Hopper")

	w := doJSON(t, router, http.MethodPost, "/api/auth/login", gin.H{
		"student_number": voter.StudentNumber,
		"secret":         "WRONGSEC",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin_UnknownStudent(t *testing.T) {
	router := setupTestEnv(t)

	w := doJSON(t, router, http.MethodPost, "/api/auth/login", gin.H{
		"student_number": "9999999",
		"secret":         "ABCDEFGH",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin_MissingFields(t *testing.T) {
	router := setupTestEnv(t)

	w := doJSON(t, router, http.MethodPost, "/api/auth/login", gin.H{
		"student_number": "2024003",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMe_RequiresSession(t *testing.T) {
	router := setupTestEnv(t)

	w := doJSON(t, router, http.MethodGet, "/api/auth/me", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMe_ReturnsSessionIdentity(t *testing.T) {
	router := setupTestEnv(t)
	voter, secret := registerVoterWithToken(t, "2024004", "Alan Turing")
	cookie := loginVoter(t, router, voter.StudentNumber, secret)

	w := doJSON(t, router, http.MethodGet, "/api/auth/me", nil, cookie)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "2024004", body["student_number"])
	assert.Equal(t, "voter", body["role"])
}

func TestLogout_InvalidatesSession(t *testing.T) {
	router := setupTestEnv(t)
	voter, secret := registerVoterWithToken(t, "2024005", "Edsger Dijkstra")
	cookie := loginVoter(t, router, voter.StudentNumber, secret)

	w := doJSON(t, router, http.MethodPost, "/api/auth/logout", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/auth/me", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminLogin_ValidCredentials(t *testing.T) {
	router := setupTestEnv(t)

	cookie := loginAdmin(t, router)

	w := doJSON(t, router, http.MethodGet, "/api/admin/voters", nil, cookie)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminLogin_WrongPassword(t *testing.T) {
	router := setupTestEnv(t)

	w := doJSON(t, router, http.MethodPost, "/api/admin/login", gin.H{
		"username": "admin",
		"password": "incorrect-donkey",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoutes_RejectVoterSession(t *testing.T) {
	router := setupTestEnv(t)
	voter, secret := registerVoterWithToken(t, "2024006", "Barbara Liskov")
	cookie := loginVoter(t, router, voter.StudentNumber, secret)

	w := doJSON(t, router, http.MethodGet, "/api/admin/results", nil, cookie)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestVoterRoutes_RejectAdminSession(t *testing.T) {
	router := setupTestEnv(t)
	cookie := loginAdmin(t, router)

	w := doJSON(t, router, http.MethodPost, "/api/vote", gin.H{"candidate_id": 1}, cookie)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
