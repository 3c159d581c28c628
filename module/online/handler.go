package online

import (
	"net/http"
	"strconv"
	"time"

	"OnlineGate/logger"
	"OnlineGate/service/gateway"
	"OnlineGate/service/presence"
	"OnlineGate/service/storage"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// Handler exposes the read/command surface over the registry and the
// daily aggregate store.
type Handler struct {
	reg   *presence.Registry
	stats storage.Stats
}

func NewHandler(reg *presence.Registry, stats storage.Stats) *Handler {
	return &Handler{reg: reg, stats: stats}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/v1/presence/room", h.RoomPresence)
	r.POST("/v1/presence/update", h.UpdatePresence)
	r.GET("/v1/rooms/active", h.ActiveRooms)
	r.GET("/v1/rooms", h.RoomsInfo)
	r.GET("/v1/metrics/online", h.Online)
	r.GET("/v1/metrics/online/today", h.OnlineToday)
}

type presenceView struct {
	Identity  string `json:"identity"`
	JoinedAt  int64  `json:"joined_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// RoomPresence returns the room's member roster, join order first.
func (h *Handler) RoomPresence(c *gin.Context) {
	room := c.Query("room_name")
	if room == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room_name required"})
		return
	}
	snap := h.reg.SnapshotRoom(room)
	out := make([]presenceView, 0, len(snap.Members))
	for _, m := range snap.Members {
		out = append(out, presenceView{Identity: m.Identity, JoinedAt: m.JoinedAt, UpdatedAt: m.UpdatedAt})
	}
	c.JSON(http.StatusOK, out)
}

type presenceUpdateBody struct {
	RoomName    string  `json:"room_name" binding:"required"`
	DisplayName *string `json:"display_name"`
	Position    *int    `json:"position"`
}

// UpdatePresence merges metadata for the identity named by the session
// header and broadcasts the change to the room. Unknown identities are
// rejected; an expired session must rejoin over the socket, a metadata
// write does not resurrect it.
func (h *Handler) UpdatePresence(c *gin.Context) {
	key := c.GetHeader(gateway.HeaderSessionID)
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing session header"})
		return
	}
	var body presenceUpdateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fields := make(map[string]any)
	if body.DisplayName != nil {
		fields["displayName"] = *body.DisplayName
	}
	if body.Position != nil {
		fields["position"] = *body.Position
	}
	res, err := h.reg.UpdateMeta(key, body.RoomName, fields)
	if err != nil {
		if errors.Is(err, presence.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"identity": res.Identity, "updated_at": res.UpdatedAt})
}

type topRoom struct {
	Room  string `json:"room"`
	Count int    `json:"count"`
	Path  string `json:"path"`
	Title string `json:"title"`
}

const (
	defaultActiveLimit = 10
	maxActiveLimit     = 100
)

// ActiveRooms lists the busiest rooms, count descending.
func (h *Handler) ActiveRooms(c *gin.Context) {
	limit := defaultActiveLimit
	if v, ok := queryInt(c, "limit"); ok && v > 0 {
		limit = v
	}
	if limit > maxActiveLimit {
		limit = maxActiveLimit
	}
	list := h.reg.TopRooms(limit)
	out := make([]topRoom, 0, len(list))
	for _, rc := range list {
		// No room metadata source yet; room doubles as path/title.
		out = append(out, topRoom{Room: rc.Room, Count: rc.Count, Path: rc.Room, Title: rc.Room})
	}
	c.JSON(http.StatusOK, out)
}

// RoomsInfo enumerates all known rooms with counts.
func (h *Handler) RoomsInfo(c *gin.Context) {
	counts := h.reg.Rooms()
	rooms := make([]string, 0, len(counts))
	for name := range counts {
		rooms = append(rooms, name)
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms, "room_count": counts})
}

// Online reports the live global count of this instance.
func (h *Handler) Online(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"online": h.reg.GlobalCount()})
}

// OnlineToday reports the daily aggregate; when the store cannot answer
// it degrades to local-only figures rather than failing the request.
func (h *Handler) OnlineToday(c *gin.Context) {
	st, err := h.stats.Today(c.Request.Context())
	if err != nil {
		logger.Errorf("[online] daily stats unavailable: %v", err)
		st = storage.StatsToday{
			Date:    time.Now().Format("2006-01-02"),
			Max:     h.reg.GlobalCount(),
			Total:   0,
			Backend: "memory",
		}
	}
	c.JSON(http.StatusOK, st)
}

func queryInt(c *gin.Context, name string) (int, bool) {
	v := c.Query(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
