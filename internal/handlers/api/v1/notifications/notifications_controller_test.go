package notifications

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"noodlebadge/internal/models"
	"noodlebadge/internal/repositories"
	"noodlebadge/internal/services"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func router() *mux.Router {
	svc := services.NewNotificationSettingsService(repositories.NewMemoryNotificationSettingsRepository(), nil)
	c := NewNotificationController(svc, nil, nil)

	r := mux.NewRouter()
	r.HandleFunc("/users/{userID}/notifications", c.GetSettings).Methods(http.MethodGet)
	r.HandleFunc("/users/{userID}/notifications", c.UpdateSettings).Methods(http.MethodPut)
	return r
}

func serve(t *testing.T, r *mux.Router, method, body string) (int, *models.NotificationSettings) {
	t.Helper()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, "/users/u1/notifications", strings.NewReader(body)))

	var env struct {
		Data *models.NotificationSettings `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env.Data
}

func TestSettingsDefaultThenUpdate(t *testing.T) {
	r := router()

	code, settings := serve(t, r, http.MethodGet, "")
	assert.Equal(t, http.StatusOK, code)
	require.NotNil(t, settings)
	assert.True(t, settings.BadgeAchievements)

	code, settings = serve(t, r, http.MethodPut, `{"fcm_token":"tok","badge_achievements":false}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "u1", settings.UserID)
	assert.Equal(t, "tok", settings.FCMToken)
	assert.False(t, settings.BadgeAchievements)

	_, settings = serve(t, r, http.MethodGet, "")
	assert.False(t, settings.BadgeAchievements)
}

func TestSettingsRejectsBadBody(t *testing.T) {
	code, settings := serve(t, router(), http.MethodPut, `not json`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Nil(t, settings)
}
