package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer("s3cret", time.Hour)
	tok, err := iss.Issue("team-1", "room-1", RoleTeam)
	require.NoError(t, err)

	claims, err := iss.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "team-1", claims.TeamID)
	assert.Equal(t, "room-1", claims.RoomID)
	assert.Equal(t, RoleTeam, claims.Role)
}

func TestParseRejects(t *testing.T) {
	iss := NewIssuer("s3cret", time.Hour)

	other, err := NewIssuer("other", time.Hour).Issue("t", "r", RoleTeam)
	require.NoError(t, err)
	_, err = iss.Parse(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// expired
	old := NewIssuer("s3cret", time.Minute)
	old.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, err := old.Issue("t", "r", RoleTeam)
	require.NoError(t, err)
	_, err = iss.Parse(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// team token must name a room
	noRoom, err := iss.Issue("t", "", RoleTeam)
	require.NoError(t, err)
	_, err = iss.Parse(noRoom)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// unknown role
	weird, err := iss.Issue("t", "r", "root")
	require.NoError(t, err)
	_, err = iss.Parse(weird)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// none algorithm
	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: RoleAdmin})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = iss.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func postAdmin(h *Handler, body any) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/auth/admin", h.Admin)
	data, _ := json.Marshal(body)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/admin", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestAdminLogin(t *testing.T) {
	iss := NewIssuer("s3cret", time.Hour)
	h := NewHandler(iss, "letmein")

	w := postAdmin(h, AdminRequest{Secret: "letmein"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	claims, err := iss.Parse(resp["jwt"])
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, claims.Role)

	assert.Equal(t, http.StatusUnauthorized, postAdmin(h, AdminRequest{Secret: "nope"}).Code)
	assert.Equal(t, http.StatusBadRequest, postAdmin(h, map[string]any{}).Code)

	// no configured secret disables admin login
	assert.Equal(t, http.StatusUnauthorized, postAdmin(NewHandler(iss, ""), AdminRequest{Secret: "x"}).Code)
}
