package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kinship/internal/config"
	"kinship/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupMockDB creates a GORM *gorm.DB backed by sqlmock for unit tests.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)
	return gormDB, mock
}

// --- humanizeParam (pure function, no HTTP) ---

func TestHumanizeParam(t *testing.T) {
	tests := []struct {
		param    string
		expected string
	}{
		{"id", "ID"},
		{"userId", "user ID"},
		{"requestId", "request ID"},
		{"blockedUserId", "blocked user ID"},
		{"something", "something"},
	}
	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			assert.Equal(t, tt.expected, humanizeParam(tt.param))
		})
	}
}

// --- parsePagination ---

func paginationApp(cfg *config.Config) *fiber.App {
	s := &Server{config: cfg}
	app := fiber.New()
	app.Get("/items", func(c *fiber.Ctx) error {
		p, err := s.parsePagination(c)
		if err != nil {
			return nil
		}
		return c.JSON(fiber.Map{"limit": p.Limit, "cursor": p.Cursor})
	})
	return app
}

func TestParsePagination(t *testing.T) {
	app := paginationApp(&config.Config{DefaultPageSize: 25, MaxPageSize: 50})

	tests := []struct {
		name   string
		query  string
		status int
		limit  float64
		cursor string
	}{
		{"defaults", "", http.StatusOK, 25, ""},
		{"custom", "?limit=10&cursor=abc", http.StatusOK, 10, "abc"},
		{"capped", "?limit=500", http.StatusOK, 50, ""},
		{"zero", "?limit=0", http.StatusBadRequest, 0, ""},
		{"negative", "?limit=-3", http.StatusBadRequest, 0, ""},
		{"garbage", "?limit=ten", http.StatusBadRequest, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/items"+tt.query, nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			require.Equal(t, tt.status, resp.StatusCode)
			if tt.status != http.StatusOK {
				return
			}
			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.limit, body["limit"])
			assert.Equal(t, tt.cursor, body["cursor"])
		})
	}
}

func TestParsePagination_ZeroConfigFallsBack(t *testing.T) {
	app := paginationApp(&config.Config{})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/items?limit=1000", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, float64(1000), body["limit"])
}

// --- parseID ---

func TestParseID(t *testing.T) {
	app := fiber.New()
	app.Get("/users/:userId", func(c *fiber.Ctx) error {
		id, err := parseID(c, "userId")
		if err != nil {
			return nil
		}
		return c.SendString(id)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/users/u-1", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/users/"+strings.Repeat("x", maxIDLength+1), nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body models.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Invalid user ID", body.Error)
}

// --- fail ---

func TestFailMapsErrors(t *testing.T) {
	s := &Server{config: &config.Config{}}
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"not found", models.NewNotFoundError("profile", "x"), http.StatusNotFound, models.CodeNotFound, ""},
		{"conflict", models.NewConflictError("taken"), http.StatusConflict, models.CodeConflict, "taken"},
		{"forbidden", models.NewForbiddenError("no"), http.StatusForbidden, models.CodeForbidden, "no"},
		{"validation", models.NewValidationError("bad"), http.StatusBadRequest, models.CodeValidation, "bad"},
		{"unexpected", errors.New("connection reset by peer"), http.StatusInternalServerError, models.CodeInternal, "Internal server error"},
		{"inconsistent", models.NewInconsistencyError("profile.by_user", "p1"), http.StatusInternalServerError, models.CodeInconsistent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error { return s.fail(c, tt.err) })

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.status, resp.StatusCode)

			var body models.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, body.Error)
			}
			assert.NotContains(t, body.Error, "connection reset")
		})
	}
}

func TestList(t *testing.T) {
	page := list[int](nil)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Equal(t, []int{1, 2}, list([]int{1, 2}).Items)
}

// --- readiness ---

func TestReadinessCheck_DatabaseDown(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	s := &Server{config: &config.Config{}, db: db}
	app := fiber.New()
	app.Get("/health/ready", s.ReadinessCheck)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "unhealthy", body["status"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
