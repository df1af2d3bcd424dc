package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSessionRouter(env *testEnv) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewSessionHandlers(env.engine, zap.NewNop()).RegisterRoutes(router.Group("/api/v1"))
	return router
}

func TestEndSessionHandler(t *testing.T) {
	env := newTestEnv(t, "AB3F9")
	router := newSessionRouter(env)

	_, err := env.engine.CreateSession(context.Background(), "c1")
	require.NoError(t, err)
	env.notes.reset()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/ab3f9", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []EventType{EventSessionEnded}, env.notes.types("c1"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/AB3F9", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Session not found or has expired", body["error"])
}

func TestSessionEventsHandler(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "AB3F9")
	router := newSessionRouter(env)

	code, err := env.engine.CreateSession(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, env.engine.Join(ctx, code, "c2"))
	_, err = env.engine.SendMessage(ctx, code, "c2", "hi")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/AB3F9/events?limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		SessionCode string `json:"session_code"`
		Count       int    `json:"count"`
		Events      []struct {
			Type         string `json:"type"`
			ConnectionID string `json:"connection_id"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "AB3F9", body.SessionCode)
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Events, 2)
	assert.Equal(t, "message_sent", body.Events[0].Type)
	assert.Equal(t, "c2", body.Events[0].ConnectionID)
}
