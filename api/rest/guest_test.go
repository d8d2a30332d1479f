package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cygirat-cmd/kiki-server/api/rest"
	mw "github.com/cygirat-cmd/kiki-server/middleware"
	"github.com/cygirat-cmd/kiki-server/session"
	"github.com/cygirat-cmd/kiki-server/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newGuestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	c, _ := testutil.SetupTestCache(t)
	guests := session.NewGuestStore(c, zap.NewNop())
	h := rest.NewGuestHandler(guests, zap.NewNop())

	r := gin.New()
	g := r.Group("/api/guest", mw.Device())
	g.POST("/init", h.Init)
	g.GET("/state", h.State)
	g.POST("/items", h.AddItem)
	g.DELETE("/items/:id", h.RemoveItem)
	g.POST("/favorites", h.ToggleFavorite)
	g.PUT("/equipment", h.Equip)
	g.POST("/cart", h.AddToCart)
	g.DELETE("/cart/:id", h.RemoveFromCart)
	g.POST("/receipts", h.QueueReceipt)
	g.GET("/receipts", h.Receipts)
	return r
}

func doJSON(r *gin.Engine, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGuest_MissingDeviceHeader(t *testing.T) {
	r := newGuestRouter(t)
	w := doJSON(r, http.MethodPost, "/api/guest/init", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGuest_InitAndStateRoundTrip(t *testing.T) {
	r := newGuestRouter(t)
	dev := []string{mw.DeviceIDHeader, "device-rest-1"}

	w := doJSON(r, http.MethodPost, "/api/guest/init", nil, dev...)
	require.Equal(t, http.StatusOK, w.Code)
	var initResp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &initResp))
	guestID := initResp["guest_id"].(string)
	require.NotEmpty(t, guestID)
	assert.False(t, initResp["terminal"].(bool))

	// Re-init keeps the same guest ID.
	w = doJSON(r, http.MethodPost, "/api/guest/init", nil, dev...)
	require.Equal(t, http.StatusOK, w.Code)
	var again map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &again))
	assert.Equal(t, guestID, again["guest_id"])

	w = doJSON(r, http.MethodPost, "/api/guest/items", map[string]int64{"item_id": 3}, dev...)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodPost, "/api/guest/favorites", map[string]int64{"item_id": 3}, dev...)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodPut, "/api/guest/equipment", map[string]interface{}{"slot": "hat", "item_id": 3}, dev...)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodPost, "/api/guest/cart", map[string]int64{"item_id": 5}, dev...)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/api/guest/state", nil, dev...)
	require.Equal(t, http.StatusOK, w.Code)
	var state struct {
		GuestID   string           `json:"guest_id"`
		Owned     []int64          `json:"owned"`
		Favorites []int64          `json:"favorites"`
		Equipped  map[string]int64 `json:"equipped"`
		Cart      []int64          `json:"cart"`
		Terminal  bool             `json:"terminal"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, guestID, state.GuestID)
	assert.Equal(t, []int64{3}, state.Owned)
	assert.Equal(t, []int64{3}, state.Favorites)
	assert.Equal(t, int64(3), state.Equipped["hat"])
	assert.Equal(t, []int64{5}, state.Cart)
	assert.False(t, state.Terminal)
}

func TestGuest_UnknownSlotRejected(t *testing.T) {
	r := newGuestRouter(t)
	dev := []string{mw.DeviceIDHeader, "device-rest-2"}

	w := doJSON(r, http.MethodPut, "/api/guest/equipment", map[string]interface{}{"slot": "tail", "item_id": 1}, dev...)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGuest_ReceiptQueue(t *testing.T) {
	r := newGuestRouter(t)
	dev := []string{mw.DeviceIDHeader, "device-rest-3"}

	w := doJSON(r, http.MethodPost, "/api/guest/receipts", map[string]string{
		"type": "reward", "token": "tok-abc",
	}, dev...)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/api/guest/receipts", nil, dev...)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Receipts []struct {
			Type  string `json:"type"`
			Token string `json:"token"`
		} `json:"receipts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Receipts, 1)
	assert.Equal(t, "reward", resp.Receipts[0].Type)
	assert.Equal(t, "tok-abc", resp.Receipts[0].Token)
}

func TestGuest_RemoveItemScrubsState(t *testing.T) {
	r := newGuestRouter(t)
	dev := []string{mw.DeviceIDHeader, "device-rest-4"}

	doJSON(r, http.MethodPost, "/api/guest/items", map[string]int64{"item_id": 7}, dev...)
	doJSON(r, http.MethodPost, "/api/guest/favorites", map[string]int64{"item_id": 7}, dev...)
	doJSON(r, http.MethodPut, "/api/guest/equipment", map[string]interface{}{"slot": "glasses", "item_id": 7}, dev...)

	w := doJSON(r, http.MethodDelete, "/api/guest/items/7", nil, dev...)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/api/guest/state", nil, dev...)
	require.Equal(t, http.StatusOK, w.Code)
	var state struct {
		Owned     []int64          `json:"owned"`
		Favorites []int64          `json:"favorites"`
		Equipped  map[string]int64 `json:"equipped"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Empty(t, state.Owned)
	assert.Empty(t, state.Favorites)
	assert.NotContains(t, state.Equipped, "glasses")
}
