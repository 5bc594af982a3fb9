package market

import (
	"sort"
	"sync"
)

// Sink 市場資料彙整槽：五個以物品 ID 為鍵的獨立對照表
// 每個批次以鍵為單位淺合併進來，已有而本批沒有的鍵不會被移除
type Sink struct {
	mu             sync.Mutex
	velocity       map[int]*float64
	averagePrice   map[int]*int
	minListing     map[int]*PricePoint
	recentPurchase map[int]*PricePoint
	tradable       map[int]bool
}

func NewSink() *Sink {
	s := &Sink{}
	s.clearLocked()
	return s
}

func (s *Sink) clearLocked() {
	s.velocity = make(map[int]*float64)
	s.averagePrice = make(map[int]*int)
	s.minListing = make(map[int]*PricePoint)
	s.recentPurchase = make(map[int]*PricePoint)
	s.tradable = make(map[int]bool)
}

// Merge 把一個批次的解析結果合併進五個對照表（同鍵後寫者勝）
func (s *Sink) Merge(partial map[int]ResolvedItemMarketInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, info := range partial {
		s.velocity[id] = info.Velocity
		s.averagePrice[id] = info.AveragePrice
		s.minListing[id] = info.MinListing
		s.recentPurchase[id] = info.RecentPurchase
		s.tradable[id] = info.Tradable
	}
}

// Reset 全部清空：物品集合變空、伺服器取消選擇或新的搜尋開始時
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

// Snapshot 取出目前已知的全部解析結果
func (s *Sink) Snapshot() map[int]ResolvedItemMarketInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[int]ResolvedItemMarketInfo, len(s.tradable))
	for id, tradable := range s.tradable {
		out[id] = ResolvedItemMarketInfo{
			Velocity:       s.velocity[id],
			AveragePrice:   s.averagePrice[id],
			MinListing:     s.minListing[id],
			RecentPurchase: s.recentPurchase[id],
			Tradable:       tradable,
		}
	}
	return out
}

// Len 已有結果的物品數
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tradable)
}

// SortByItemLevel 依物品等級由高到低排序，決定漸進載入時列的出現順序
// 等級未知的排在已知的後面；同級或都未知時 ID 大的在前
// 每個抓取世代只計算一次，不是每個批次
func SortByItemLevel(ids []int, ilvls map[int]int) []int {
	out := append([]int(nil), ids...)
	sort.SliceStable(out, func(i, j int) bool {
		a, aok := ilvls[out[i]]
		b, bok := ilvls[out[j]]
		if aok && bok {
			if a != b {
				return a > b
			}
			return out[i] > out[j]
		}
		if aok != bok {
			return aok
		}
		return out[i] > out[j]
	})
	return out
}
