package market

import (
	"math"

	"ffxiv-market/internal/services/universalis"
)

// PricePoint 單一價格點，世界查詢時附帶地區與品質，跨服查詢只存價格
type PricePoint struct {
	Price  float64 `json:"price"`
	Region string  `json:"region,omitempty"`
	HQ     bool    `json:"hq,omitempty"`
}

// ResolvedItemMarketInfo 單一物品解析後的市場資訊
type ResolvedItemMarketInfo struct {
	Velocity       *float64    `json:"velocity"`
	AveragePrice   *int        `json:"average_price"`
	MinListing     *PricePoint `json:"min_listing"`
	RecentPurchase *PricePoint `json:"recent_purchase"`
	Tradable       bool        `json:"tradable"`
}

// Resolve 把一筆聚合結果（NQ/HQ 兩份）解析成五個輸出欄位
// isDatacenterQuery 決定 world/dc 範圍的取值優先序
func Resolve(nq, hq *universalis.QualityAggregates, isDatacenterQuery bool) ResolvedItemMarketInfo {
	info := ResolvedItemMarketInfo{Tradable: true}

	info.Velocity = resolveVelocity(nq, hq, isDatacenterQuery)
	info.AveragePrice = resolveAveragePrice(nq, hq, isDatacenterQuery)
	info.MinListing = resolvePricePoint(fieldMinListing, nq, hq, isDatacenterQuery)
	info.RecentPurchase = resolvePricePoint(fieldRecentPurchase, nq, hq, isDatacenterQuery)

	return info
}

type priceField int

const (
	fieldMinListing priceField = iota
	fieldRecentPurchase
)

// pickScope 依查詢模式選出一個範圍的資料
// 跨服查詢：dc 優先，無 dc 時退回 world
// 世界查詢：只取 world；dcFallback 為真時（僅平均價格）無 world 才退回 dc
func pickScope(fs *universalis.FieldScopes, isDatacenterQuery, dcFallback bool) *universalis.ScopeEntry {
	if fs == nil {
		return nil
	}
	if isDatacenterQuery {
		if fs.Dc != nil {
			return fs.Dc
		}
		return fs.World
	}
	if fs.World != nil {
		return fs.World
	}
	if dcFallback {
		return fs.Dc
	}
	return nil
}

func velocityScopes(q *universalis.QualityAggregates) *universalis.FieldScopes {
	if q == nil {
		return nil
	}
	return q.DailySaleVelocity
}

// resolveVelocity NQ 與 HQ 的銷量相加，缺少的一邊視為 0，兩邊都缺才是 nil
func resolveVelocity(nq, hq *universalis.QualityAggregates, isDatacenterQuery bool) *float64 {
	nqEntry := pickScope(velocityScopes(nq), isDatacenterQuery, false)
	hqEntry := pickScope(velocityScopes(hq), isDatacenterQuery, false)
	if nqEntry == nil && hqEntry == nil {
		return nil
	}

	total := 0.0
	if nqEntry != nil {
		total += nqEntry.Quantity
	}
	if hqEntry != nil {
		total += hqEntry.Quantity
	}
	return &total
}

// resolveAveragePrice 全服平均價格：即使是世界查詢，world 無資料時也退回 dc
// （「全服平均價格」在單一伺服器沒有成交均價時應顯示資料中心的均價）
func resolveAveragePrice(nq, hq *universalis.QualityAggregates, isDatacenterQuery bool) *int {
	var nqScopes, hqScopes *universalis.FieldScopes
	if nq != nil {
		nqScopes = nq.AverageSalePrice
	}
	if hq != nil {
		hqScopes = hq.AverageSalePrice
	}

	nqEntry := pickScope(nqScopes, isDatacenterQuery, true)
	hqEntry := pickScope(hqScopes, isDatacenterQuery, true)

	var value *float64
	if nqEntry != nil {
		value = &nqEntry.Price
	}
	if hqEntry != nil && (value == nil || hqEntry.Price < *value) {
		value = &hqEntry.Price
	}
	if value == nil {
		return nil
	}

	rounded := int(math.Round(*value))
	return &rounded
}

// resolvePricePoint 最低在售 / 最近成交：NQ 與 HQ 都有值時取便宜的一邊
func resolvePricePoint(field priceField, nq, hq *universalis.QualityAggregates, isDatacenterQuery bool) *PricePoint {
	pick := func(q *universalis.QualityAggregates) *universalis.ScopeEntry {
		if q == nil {
			return nil
		}
		switch field {
		case fieldMinListing:
			return pickScope(q.MinListing, isDatacenterQuery, false)
		default:
			return pickScope(q.RecentPurchase, isDatacenterQuery, false)
		}
	}

	nqEntry := pick(nq)
	hqEntry := pick(hq)
	if nqEntry == nil && hqEntry == nil {
		return nil
	}

	winner := nqEntry
	winnerHQ := false
	if winner == nil || (hqEntry != nil && hqEntry.Price < winner.Price) {
		winner = hqEntry
		winnerHQ = true
	}

	point := &PricePoint{Price: winner.Price}
	if !isDatacenterQuery {
		// 世界查詢才記錄得勝品質與地區
		point.HQ = winnerHQ
		point.Region = winner.Region
	}
	return point
}
