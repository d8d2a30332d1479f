package rest_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/cygirat-cmd/kiki-server/api/rest"
	"github.com/cygirat-cmd/kiki-server/catalog"
	"github.com/cygirat-cmd/kiki-server/equipsync"
	"github.com/cygirat-cmd/kiki-server/gear"
	mw "github.com/cygirat-cmd/kiki-server/middleware"
	"github.com/cygirat-cmd/kiki-server/model"
	"github.com/cygirat-cmd/kiki-server/session"
	"github.com/cygirat-cmd/kiki-server/store"
	"github.com/cygirat-cmd/kiki-server/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func gearCatalog() *catalog.Catalog {
	cat := catalog.NewCatalog("")
	cat.Put(&catalog.Item{ID: 3, Name: "Felt Hat", Slot: "hat", Rarity: "common", Price: 50})
	cat.Put(&catalog.Item{ID: 7, Name: "Round Glasses", Slot: "glasses", Rarity: "rare", Price: 120})
	return cat
}

type gearRig struct {
	router  *gin.Engine
	guests  *session.GuestStore
	account *session.AccountStore
	svc     *store.Service
	token   string
	accID   int64
}

func newGearRig(t *testing.T) *gearRig {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	sec := testSecurity()
	logger := zap.NewNop()

	svc := store.New(db, logger)
	guests := session.NewGuestStore(c, logger)
	account := session.NewAccountStore(svc, gearCatalog(), logger)
	adapter := equipsync.New(guests, account)

	acc := &model.Account{Email: "gear@example.com", PasswordHash: "x", Status: 1}
	require.NoError(t, db.Create(acc).Error)
	token, err := mw.GenerateToken(acc.ID, sec.JWTSecret, time.Hour)
	require.NoError(t, err)
	require.NoError(t, c.Set(context.Background(), "session:"+token, strconv.FormatInt(acc.ID, 10), time.Hour))

	h := rest.NewGearHandler(account, adapter, logger)
	r := gin.New()
	g := r.Group("/api/gear")
	g.GET("", mw.Auth(sec, c), h.Collection)
	g.POST("/favorites", mw.Auth(sec, c), h.ToggleFavorite)
	g.PUT("/equipment", mw.Auth(sec, c), h.Equip)
	g.GET("/frame", mw.Device(), mw.OptionalAuth(sec, c), h.Frame)

	return &gearRig{router: r, guests: guests, account: account, svc: svc, token: token, accID: acc.ID}
}

func TestGear_CollectionAndEquip(t *testing.T) {
	rig := newGearRig(t)
	ctx := context.Background()
	auth := []string{"Authorization", "Bearer " + rig.token}

	require.NoError(t, rig.svc.GrantItem(ctx, rig.accID, 3, model.SourceShop))

	w := doJSON(rig.router, http.MethodGet, "/api/gear", nil, auth...)
	require.Equal(t, http.StatusOK, w.Code)
	var coll struct {
		Owned    []int64          `json:"owned"`
		Equipped map[string]int64 `json:"equipped"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &coll))
	assert.Equal(t, []int64{3}, coll.Owned)
	assert.Empty(t, coll.Equipped)

	w = doJSON(rig.router, http.MethodPut, "/api/gear/equipment",
		map[string]interface{}{"slot": "hat", "item_id": 3}, auth...)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Equipped map[string]int64 `json:"equipped"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.Equipped["hat"])
}

func TestGear_EquipUnownedItem(t *testing.T) {
	rig := newGearRig(t)

	w := doJSON(rig.router, http.MethodPut, "/api/gear/equipment",
		map[string]interface{}{"slot": "glasses", "item_id": 7},
		"Authorization", "Bearer "+rig.token)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGear_EquipRequiresSignIn(t *testing.T) {
	rig := newGearRig(t)
	w := doJSON(rig.router, http.MethodPut, "/api/gear/equipment",
		map[string]interface{}{"slot": "hat", "item_id": 3})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGear_FrameFollowsGuestEquipment(t *testing.T) {
	rig := newGearRig(t)
	ctx := context.Background()
	dev := "device-gear-1"

	_, err := rig.guests.InitSession(ctx, dev)
	require.NoError(t, err)
	require.NoError(t, rig.guests.Equip(ctx, dev, gear.SlotHat, 3))

	w := doJSON(rig.router, http.MethodGet, "/api/gear/frame", nil, mw.DeviceIDHeader, dev)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Frame   []int64 `json:"frame"`
		Changed bool    `json:"changed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Frame, len(gear.AllSlots))
	idx, err := gear.SlotHat.LegacyIndex()
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.Frame[idx])
	assert.True(t, resp.Changed)

	// Unchanged equipment does not flag a change.
	w = doJSON(rig.router, http.MethodGet, "/api/gear/frame", nil, mw.DeviceIDHeader, dev)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Changed)
}

func TestGear_FrameSwitchesToAccountWithToken(t *testing.T) {
	rig := newGearRig(t)
	ctx := context.Background()
	dev := "device-gear-2"

	_, err := rig.guests.InitSession(ctx, dev)
	require.NoError(t, err)
	require.NoError(t, rig.guests.Equip(ctx, dev, gear.SlotHat, 3))

	mirror, err := rig.account.Mirror(ctx, rig.accID)
	require.NoError(t, err)
	require.NoError(t, mirror.PurchaseItem(ctx, 7, model.SourceShop))
	require.NoError(t, mirror.EquipItem(ctx, gear.SlotGlasses, 7))

	// With a valid token the frame projects the account's equipment.
	w := doJSON(rig.router, http.MethodGet, "/api/gear/frame", nil,
		mw.DeviceIDHeader, dev, "Authorization", "Bearer "+rig.token)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Frame []int64 `json:"frame"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	hatIdx, err := gear.SlotHat.LegacyIndex()
	require.NoError(t, err)
	glassesIdx, err := gear.SlotGlasses.LegacyIndex()
	require.NoError(t, err)
	assert.Zero(t, resp.Frame[hatIdx], "guest hat is not projected for a signed-in request")
	assert.Equal(t, int64(7), resp.Frame[glassesIdx])

	// Without the token the same device still projects its guest state.
	w = doJSON(rig.router, http.MethodGet, "/api/gear/frame", nil, mw.DeviceIDHeader, dev)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.Frame[hatIdx])
}
