package api

import (
	"fmt"
	"net/http"
	"time"

	"ffxiv-market/internal/services/market"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

var exportHeaders = []string{"物品ID", "名稱", "物品等級", "版本", "日銷量", "平均價格", "最低在售", "最近成交", "可交易"}

// ExportMarketSearch GET /market/export?q=&server= 匯出搜尋結果為 xlsx 報表
func (h *APIHandler) ExportMarketSearch(c *gin.Context) {
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

	ids := make([]int, len(items))
	byID := make(map[int]int, len(items)) // item id -> items index
	for i, item := range items {
		ids[i] = item.ID
		byID[item.ID] = i
	}

	sorted, err := h.prepareIDs(c.Request.Context(), ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	target := h.parseTarget(c.Query("server"))
	prices := h.collectPrices(c.Request.Context(), sorted, target)

	f := excelize.NewFile()
	defer f.Close()

	sheet := "市場價格"
	f.SetSheetName("Sheet1", sheet)

	for col, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheet, cell, header)
	}

	for row, id := range sorted {
		item := items[byID[id]]
		info := prices[id]

		values := []interface{}{
			item.ID,
			item.NameZh,
			item.ItemLevel,
			item.Patch,
			cellOrEmpty(info.Velocity),
			cellOrEmpty(info.AveragePrice),
			pricePointCell(info.MinListing),
			pricePointCell(info.RecentPurchase),
			tradableLabel(info.Tradable),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, value)
		}
	}

	filename := fmt.Sprintf("market-%s-%s.xlsx", target.PathSegment(), time.Now().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")

	if err := f.Write(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("匯出報表失敗: %v", err)})
	}
}

func cellOrEmpty[T any](v *T) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func pricePointCell(p *market.PricePoint) interface{} {
	if p == nil {
		return ""
	}
	if p.Region != "" {
		return fmt.Sprintf("%.0f (%s)", p.Price, p.Region)
	}
	return p.Price
}

func tradableLabel(tradable bool) string {
	if tradable {
		return "可"
	}
	return "不可"
}
