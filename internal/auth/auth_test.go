package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "test-signing-key"

func TestIssueAndParse(t *testing.T) {
	now := time.Now()
	tok, err := Issue("teacher-1", RoleTeacher, "qrattend", testKey, time.Hour, now)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(time.Hour), tok.ExpiresAt, time.Second)

	claims, err := Parse(tok.Token, testKey, "qrattend")
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", claims.Subject)
	assert.Equal(t, RoleTeacher, claims.Role)

	_, err = Parse(tok.Token, "other-key", "qrattend")
	assert.Error(t, err)
	_, err = Parse(tok.Token, testKey, "someone-else")
	assert.Error(t, err)

	expired, err := Issue("teacher-1", RoleTeacher, "qrattend", testKey, time.Minute, now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = Parse(expired.Token, testKey, "qrattend")
	assert.Error(t, err)

	_, err = Issue("", RoleTeacher, "qrattend", testKey, time.Hour, now)
	assert.Error(t, err)
}

func TestTeacherAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", TeacherAuth(testKey, "qrattend"), func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		require.True(t, ok)
		c.String(http.StatusOK, claims.Subject)
	})

	call := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, call("").Code)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer garbage").Code)

	student, err := Issue("s1", "student", "qrattend", testKey, time.Hour, time.Now())
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, call("Bearer "+student.Token).Code)

	teacher, err := Issue("teacher-1", RoleTeacher, "qrattend", testKey, time.Hour, time.Now())
	require.NoError(t, err)
	w := call("bearer " + teacher.Token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "teacher-1", w.Body.String())
}
