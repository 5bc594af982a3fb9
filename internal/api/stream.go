package api

import (
	"context"
	"log"
	"net/http"
	"sync"

	"ffxiv-market/internal/models"
	"ffxiv-market/internal/services/gamedata"
	"ffxiv-market/internal/services/market"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// 前端與 API 同源部署，開發模式下放行跨來源
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamQuery 客戶端送來的查詢訊息
// kind: search（名稱搜尋）、items（自有清單）、filter（進階篩選）
type streamQuery struct {
	Action  string               `json:"action"` // query 或 reset
	Kind    string               `json:"kind"`
	Term    string               `json:"term"`
	ItemIDs []int                `json:"item_ids"`
	Filter  gamedata.FilterQuery `json:"filter"`
	Server  string               `json:"server"`
	Offset  int                  `json:"offset"`
}

// streamSession 一條 websocket 連線：一個守衛、一個彙整槽
// 新的查詢訊息會讓前一個查詢的世代立即失效
type streamSession struct {
	handler *APIHandler
	conn    *websocket.Conn
	guard   *market.Guard
	sink    *market.Sink
	writeMu sync.Mutex
}

// StreamMarket GET /ws 漸進式市場查詢
func (h *APIHandler) StreamMarket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket 升級失敗: %v", err)
		return
	}

	session := &streamSession{
		handler: h,
		conn:    conn,
		guard:   market.NewGuard(),
		sink:    market.NewSink(),
	}
	session.readLoop(c.Request.Context())
}

func (s *streamSession) readLoop(parent context.Context) {
	defer func() {
		s.guard.Reset()
		s.conn.Close()
	}()

	for {
		var query streamQuery
		if err := s.conn.ReadJSON(&query); err != nil {
			return
		}

		switch query.Action {
		case "reset":
			// 物品集合清空或伺服器取消選擇：取消抓取並清空狀態
			s.guard.Reset()
			s.sink.Reset()
			s.send(gin.H{"type": "reset"})
		case "query":
			// 世代在讀取迴圈內同步分配，訊息到達順序就是世代順序；
			// 資料庫查詢與抓取都搬進 goroutine，下一則訊息隨時讀得到
			ctx, gen := s.guard.Begin(parent)
			go s.runQuery(ctx, gen, query)
		default:
			s.send(gin.H{"type": "error", "message": "未知的 action"})
		}
	}
}

// runQuery 解析查詢、啟動分批抓取，批次結果邊到邊推送
// ctx 綁在這次查詢的世代上：被後來的查詢取代時，資料庫查詢也一併中止
func (s *streamSession) runQuery(ctx context.Context, gen uint64, query streamQuery) {
	h := s.handler

	items, err := s.resolveItemSet(ctx, query)
	if err != nil {
		if ctx.Err() == nil {
			s.send(gin.H{"type": "error", "message": err.Error()})
		}
		return
	}

	ids := make([]int, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}

	sorted, err := h.prepareIDs(ctx, ids)
	if err != nil {
		if ctx.Err() == nil {
			s.send(gin.H{"type": "error", "message": err.Error()})
		}
		return
	}

	if len(sorted) == 0 {
		if s.guard.IfLive(gen, func() { s.sink.Reset() }) {
			s.send(gin.H{"type": "complete", "order": []int{}, "total": 0})
		}
		return
	}

	target := h.parseTarget(query.Server)
	key := market.CacheKey(sorted, target.PathSegment())

	if s.guard.ShouldSkip(gen, key) {
		// 物品集合與伺服器都沒變：不重抓，回放既有狀態
		s.send(gin.H{"type": "skipped", "prices": s.sink.Snapshot()})
		return
	}

	// 新的頂層查詢：清空舊狀態再開始
	if !s.guard.IfLive(gen, func() { s.sink.Reset() }) {
		return
	}
	s.send(gin.H{
		"type":  "start",
		"order": sorted,
		"items": items,
		"total": len(sorted),
	})

	h.scheduler.Run(ctx, s.guard, gen, sorted, target, func(partial map[int]market.ResolvedItemMarketInfo) {
		s.sink.Merge(partial)
		s.send(gin.H{"type": "batch", "generation": gen, "prices": partial})
	})

	if s.guard.Live(gen) {
		s.guard.Complete(gen, key)
		s.send(gin.H{"type": "complete", "generation": gen, "total": len(sorted)})
	}
}

func (s *streamSession) resolveItemSet(ctx context.Context, query streamQuery) ([]models.Item, error) {
	h := s.handler

	switch query.Kind {
	case "items":
		itemsByID, err := h.gamedata.ItemsByIDs(ctx, query.ItemIDs)
		if err != nil {
			return nil, err
		}
		items := make([]models.Item, 0, len(query.ItemIDs))
		for _, id := range query.ItemIDs {
			if item, ok := itemsByID[id]; ok {
				items = append(items, item)
			} else {
				items = append(items, models.Item{ID: id})
			}
		}
		return items, nil
	case "filter":
		return h.gamedata.FilterItems(ctx, query.Filter)
	default: // search
		return h.gamedata.SearchItems(ctx, query.Term, 0)
	}
}

// send 單一寫入者：gorilla 連線不允許並發寫入
func (s *streamSession) send(payload interface{}) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(payload); err != nil {
		log.Printf("websocket 推送失敗: %v", err)
	}
}
