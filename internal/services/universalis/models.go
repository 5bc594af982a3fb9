package universalis

// ScopeEntry 單一範圍（world 或 dc）的統計值
// 價格類欄位使用 Price，銷售速度使用 Quantity
type ScopeEntry struct {
	Price    float64 `json:"price,omitempty"`
	Quantity float64 `json:"quantity,omitempty"`
	Region   string  `json:"region,omitempty"`
}

// FieldScopes 一個統計欄位的 world/dc 兩層資料，缺少表示該範圍無資料
type FieldScopes struct {
	World *ScopeEntry `json:"world,omitempty"`
	Dc    *ScopeEntry `json:"dc,omitempty"`
}

// QualityAggregates 單一品質（NQ 或 HQ）的市場統計
type QualityAggregates struct {
	DailySaleVelocity *FieldScopes `json:"dailySaleVelocity,omitempty"`
	AverageSalePrice  *FieldScopes `json:"averageSalePrice,omitempty"`
	MinListing        *FieldScopes `json:"minListing,omitempty"`
	RecentPurchase    *FieldScopes `json:"recentPurchase,omitempty"`
}

// AggregatedItemResult aggregated 端點回傳的單一物品快照
type AggregatedItemResult struct {
	ItemID int                `json:"itemId"`
	Nq     *QualityAggregates `json:"nq,omitempty"`
	Hq     *QualityAggregates `json:"hq,omitempty"`
}

// AggregatedResponse aggregated 端點回應主體
type AggregatedResponse struct {
	Results     []AggregatedItemResult `json:"results"`
	FailedItems []int                  `json:"failedItems,omitempty"`
}

// DataCenter 資料中心
type DataCenter struct {
	Name   string `json:"name"`
	Region string `json:"region"`
	Worlds []int  `json:"worlds"`
}

// World 遊戲伺服器
type World struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
