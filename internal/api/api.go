package api

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"ffxiv-market/internal/config"
	"ffxiv-market/internal/models"
	"ffxiv-market/internal/services/gamedata"
	"ffxiv-market/internal/services/market"
	"ffxiv-market/internal/services/universalis"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type APIHandler struct {
	db        *gorm.DB
	cfg       *config.Config
	gamedata  *gamedata.Service
	uni       *universalis.Client
	scheduler *market.Scheduler
}

func SetupRoutes(r *gin.RouterGroup, db *gorm.DB, cfg *config.Config, uni *universalis.Client) *APIHandler {
	handler := &APIHandler{
		db:        db,
		cfg:       cfg,
		gamedata:  gamedata.NewService(db),
		uni:       uni,
		scheduler: market.NewScheduler(uni),
	}

	// 物品與伺服器靜態資料
	items := r.Group("/items")
	{
		items.GET("/search", handler.SearchItems)
	}
	r.GET("/servers", handler.GetServers)
	r.GET("/patches", handler.GetPatches)

	// 市場價格查詢（四個呼叫端：搜尋、清單、篩選、繼續搜尋）
	marketGroup := r.Group("/market")
	{
		marketGroup.GET("/search", handler.MarketSearch)
		marketGroup.GET("/search/continue", handler.MarketSearchContinue)
		marketGroup.POST("/items", handler.MarketItems)
		marketGroup.POST("/filter", handler.MarketFilter)
		marketGroup.GET("/export", handler.ExportMarketSearch)
	}

	// 製作成本
	r.GET("/recipe/:id/cost", handler.RecipeCost)

	return handler
}

// parseTarget 解析 server 參數：純數字視為世界 ID，其餘視為資料中心名稱
func (h *APIHandler) parseTarget(server string) market.QueryTarget {
	if server == "" {
		return market.DatacenterTarget(h.cfg.DefaultDatacenter)
	}
	if id, err := strconv.Atoi(server); err == nil {
		return market.WorldTarget(id)
	}
	return market.DatacenterTarget(server)
}

// prepareIDs 市場查詢前置：過濾掉不可交易的物品，再依物品等級排序
// 排序每個查詢只做一次
func (h *APIHandler) prepareIDs(ctx context.Context, ids []int) ([]int, error) {
	marketable, err := h.gamedata.MarketableIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	filtered := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := marketable[id]; ok {
			filtered = append(filtered, id)
		}
	}

	ilvls, err := h.gamedata.ItemLevelsByIDs(ctx, filtered)
	if err != nil {
		return nil, err
	}
	return market.SortByItemLevel(filtered, ilvls), nil
}

// collectPrices 同步跑完全部批次，回傳彙整後的價格
// 排程器本身不回傳錯誤：失敗的批次已以不可交易佔位結果併入
func (h *APIHandler) collectPrices(ctx context.Context, sortedIDs []int, target market.QueryTarget) map[int]market.ResolvedItemMarketInfo {
	guard := market.NewGuard()
	sink := market.NewSink()

	runCtx, gen := guard.Begin(ctx)
	h.scheduler.Run(runCtx, guard, gen, sortedIDs, target, sink.Merge)
	return sink.Snapshot()
}

// marketResponse 市場查詢的共用回應格式
type marketResponse struct {
	Items     []models.Item                         `json:"items"`
	Order     []int                                 `json:"order"`
	Prices    map[int]market.ResolvedItemMarketInfo `json:"prices"`
	Target    string                                `json:"target"`
	Truncated bool                                  `json:"truncated,omitempty"`
	Total     int                                   `json:"total"`
}

// respondWithPrices 共用的「物品清單 → 排序 → 抓價 → 回應」流程
// offset/limit 用於繼續搜尋：limit<=0 表示不截斷
func (h *APIHandler) respondWithPrices(c *gin.Context, items []models.Item, target market.QueryTarget, offset, limit int) {
	ids := make([]int, len(items))
	byID := make(map[int]models.Item, len(items))
	for i, item := range items {
		ids[i] = item.ID
		byID[item.ID] = item
	}

	sorted, err := h.prepareIDs(c.Request.Context(), ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	total := len(sorted)
	sorted, truncated := paginateSorted(sorted, offset, limit)

	prices := h.collectPrices(c.Request.Context(), sorted, target)

	ordered := make([]models.Item, 0, len(sorted))
	for _, id := range sorted {
		if item, ok := byID[id]; ok {
			ordered = append(ordered, item)
		}
	}

	c.JSON(http.StatusOK, marketResponse{
		Items:     ordered,
		Order:     sorted,
		Prices:    prices,
		Target:    target.PathSegment(),
		Truncated: truncated,
		Total:     total,
	})
}

// paginateSorted 取排序後清單的一頁：offset 跳過已看過的部分，
// limit>0 且還有剩時截斷並回報，讓前端知道可以繼續搜尋
func paginateSorted(sorted []int, offset, limit int) ([]int, bool) {
	if offset > 0 {
		if offset >= len(sorted) {
			sorted = nil
		} else {
			sorted = sorted[offset:]
		}
	}
	if limit > 0 && len(sorted) > limit {
		return sorted[:limit], true
	}
	return sorted, false
}

// SearchItems GET /items/search?q= 只查名稱，不抓價格
func (h *APIHandler) SearchItems(c *gin.Context) {
	term := c.Query("q")
	if term == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少搜尋關鍵字 q"})
		return
	}

	items, err := h.gamedata.SearchItems(c.Request.Context(), term, h.cfg.SearchResultLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

// GetServers GET /servers 資料中心與世界清單（含重試的載入）
// Universalis 連不上時退回本地鏡像，成功時順手更新鏡像
func (h *APIHandler) GetServers(c *gin.Context) {
	ctx := c.Request.Context()

	dcs, dcErr := h.uni.DataCenters(ctx)
	worlds, wErr := h.uni.Worlds(ctx)
	if dcErr != nil || wErr != nil {
		mdcs, mworlds, err := h.gamedata.MirrorServers(ctx)
		if err != nil || (len(mdcs) == 0 && len(mworlds) == 0) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "載入伺服器清單失敗"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"datacenters": mdcs, "worlds": mworlds, "source": "mirror"})
		return
	}

	mdcs, mworlds := mirrorServers(dcs, worlds)
	if err := h.gamedata.SaveServers(ctx, mdcs, mworlds); err != nil {
		log.Printf("更新伺服器鏡像失敗: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{"datacenters": dcs, "worlds": worlds})
}

// mirrorServers 把 Universalis 的清單轉成鏡像模型，世界依所屬資料中心標記
func mirrorServers(dcs []universalis.DataCenter, worlds []universalis.World) ([]models.Datacenter, []models.World) {
	dcByWorld := make(map[int]string)
	outDCs := make([]models.Datacenter, 0, len(dcs))
	for _, dc := range dcs {
		outDCs = append(outDCs, models.Datacenter{Name: dc.Name, Region: dc.Region})
		for _, id := range dc.Worlds {
			dcByWorld[id] = dc.Name
		}
	}

	outWorlds := make([]models.World, 0, len(worlds))
	for _, w := range worlds {
		outWorlds = append(outWorlds, models.World{ID: w.ID, Name: w.Name, DatacenterName: dcByWorld[w.ID]})
	}
	return outDCs, outWorlds
}

// GetPatches GET /patches 版本清單，供進階篩選的版本下拉選單使用
func (h *APIHandler) GetPatches(c *gin.Context) {
	patches, err := h.gamedata.PatchVersions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"patches": patches})
}

// MarketSearch GET /market/search?q=&server= 搜尋呼叫端
// 結果超過上限時截斷並附帶警告，由繼續搜尋接續
func (h *APIHandler) MarketSearch(c *gin.Context) {
	term := c.Query("q")
	if term == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少搜尋關鍵字 q"})
		return
	}

	items, err := h.gamedata.SearchItems(c.Request.Context(), term, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	target := h.parseTarget(c.Query("server"))
	h.respondWithPrices(c, items, target, 0, h.cfg.SearchResultLimit)
}

// MarketSearchContinue GET /market/search/continue?q=&server=&offset= 繼續搜尋呼叫端
func (h *APIHandler) MarketSearchContinue(c *gin.Context) {
	term := c.Query("q")
	if term == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少搜尋關鍵字 q"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset 參數無效"})
		return
	}

	items, err := h.gamedata.SearchItems(c.Request.Context(), term, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	target := h.parseTarget(c.Query("server"))
	h.respondWithPrices(c, items, target, offset, 0)
}

type marketItemsRequest struct {
	ItemIDs []int  `json:"item_ids" binding:"required"`
	Server  string `json:"server"`
}

// MarketItems POST /market/items 清單呼叫端（瀏覽歷史等客戶端自有清單）
func (h *APIHandler) MarketItems(c *gin.Context) {
	var req marketItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "請求格式錯誤"})
		return
	}
	if len(req.ItemIDs) == 0 {
		c.JSON(http.StatusOK, marketResponse{Prices: map[int]market.ResolvedItemMarketInfo{}})
		return
	}

	itemsByID, err := h.gamedata.ItemsByIDs(c.Request.Context(), req.ItemIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]models.Item, 0, len(req.ItemIDs))
	for _, id := range req.ItemIDs {
		if item, ok := itemsByID[id]; ok {
			items = append(items, item)
		} else {
			// 鏡像資料裡沒有的 ID 仍保留，由可交易性過濾決定去留
			items = append(items, models.Item{ID: id})
		}
	}

	target := h.parseTarget(req.Server)
	h.respondWithPrices(c, items, target, 0, 0)
}

type marketFilterRequest struct {
	Filter gamedata.FilterQuery `json:"filter"`
	Server string               `json:"server"`
}

// MarketFilter POST /market/filter 進階篩選呼叫端
func (h *APIHandler) MarketFilter(c *gin.Context) {
	var req marketFilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "請求格式錯誤"})
		return
	}

	items, err := h.gamedata.FilterItems(c.Request.Context(), req.Filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	target := h.parseTarget(req.Server)
	h.respondWithPrices(c, items, target, 0, h.cfg.SearchResultLimit)
}

// RecipeCost GET /recipe/:id/cost?server= 製作成本樹與素材價格
func (h *APIHandler) RecipeCost(c *gin.Context) {
	itemID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "物品 ID 無效"})
		return
	}

	tree, err := h.gamedata.RecipeTree(c.Request.Context(), itemID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ids := gamedata.IngredientItemIDs(tree)
	sorted, err := h.prepareIDs(c.Request.Context(), ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	target := h.parseTarget(c.Query("server"))
	prices := h.collectPrices(c.Request.Context(), sorted, target)
	costs := craftCosts(tree, prices)

	c.JSON(http.StatusOK, gin.H{
		"tree":   tree,
		"prices": prices,
		"costs":  costs,
		"target": target.PathSegment(),
	})
}

// craftCosts 計算素材樹各節點的最佳單價：直接購買與製作取便宜者
func craftCosts(root *gamedata.RecipeNode, prices map[int]market.ResolvedItemMarketInfo) map[int]float64 {
	costs := make(map[int]float64)

	var unitCost func(n *gamedata.RecipeNode) float64
	unitCost = func(n *gamedata.RecipeNode) float64 {
		buy := 0.0
		if info, ok := prices[n.ItemID]; ok && info.MinListing != nil {
			buy = info.MinListing.Price
		}

		if len(n.Ingredients) == 0 {
			costs[n.ItemID] = buy
			return buy
		}

		craft := 0.0
		craftable := true
		for _, child := range n.Ingredients {
			childCost := unitCost(child)
			if childCost == 0 {
				craftable = false
			}
			craft += childCost * float64(child.Quantity)
		}
		if n.Yield > 1 {
			craft /= float64(n.Yield)
		}

		best := buy
		if craftable && (best == 0 || craft < best) {
			best = craft
		}
		costs[n.ItemID] = best
		return best
	}
	unitCost(root)
	return costs
}
