package market

import (
	"context"
	"strconv"
	"time"

	"ffxiv-market/internal/services/universalis"
)

// QueryTarget 查詢目標：資料中心用名稱，單一伺服器用世界 ID
type QueryTarget struct {
	Datacenter string
	WorldID    int
}

func DatacenterTarget(name string) QueryTarget {
	return QueryTarget{Datacenter: name}
}

func WorldTarget(id int) QueryTarget {
	return QueryTarget{WorldID: id}
}

func (t QueryTarget) IsDatacenter() bool {
	return t.Datacenter != ""
}

// PathSegment 產生 aggregated 端點的路徑片段
func (t QueryTarget) PathSegment() string {
	if t.IsDatacenter() {
		return t.Datacenter
	}
	return strconv.Itoa(t.WorldID)
}

// AggregatedFetcher 聚合價格端點的抽象，由 universalis.Client 實作
type AggregatedFetcher interface {
	AggregatedPrices(ctx context.Context, target string, ids []int) ([]universalis.AggregatedItemResult, error)
}

// BatchFunc 每個批次解析完成後的回呼
type BatchFunc func(partial map[int]ResolvedItemMarketInfo)

// BatchSize 批次大小遞增策略：第一批20、第二批50、之後都是100
// 最前面的一頁結果要儘快出現，後面的大批次攤平請求開銷
func BatchSize(index int) int {
	switch index {
	case 0:
		return 20
	case 1:
		return 50
	default:
		return 100
	}
}

// interBatchDelay 第一批之後每批之間讓出控制權的最小間隔
const interBatchDelay = 100 * time.Millisecond

// Scheduler 分批抓取排程器
type Scheduler struct {
	fetcher AggregatedFetcher
	delay   time.Duration
}

func NewScheduler(fetcher AggregatedFetcher) *Scheduler {
	return &Scheduler{
		fetcher: fetcher,
		delay:   interBatchDelay,
	}
}

// Run 依批次策略抓完整個 ID 清單，每批解析後呼叫 onBatch
// 失敗的批次以不可交易佔位結果回報後繼續，不中斷後續批次
// 取消或世代過期時靜默結束，不再有任何回呼
// onBatch 在守衛的鎖內執行，裡面不可再呼叫守衛方法
func (s *Scheduler) Run(ctx context.Context, guard *Guard, gen uint64, sortedIDs []int, target QueryTarget, onBatch BatchFunc) {
	offset := 0
	index := 0

	for offset < len(sortedIDs) {
		end := offset + BatchSize(index)
		if end > len(sortedIDs) {
			end = len(sortedIDs)
		}
		slice := sortedIDs[offset:end]

		// 第一批不等待，之後每批之間讓出控制權
		if index > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.delay):
			}
		}

		// 發出請求前檢查
		if ctx.Err() != nil || !guard.Live(gen) {
			return
		}

		results, err := s.fetcher.AggregatedPrices(ctx, target.PathSegment(), slice)

		// 回應後檢查：取消優先於失敗判定
		if ctx.Err() != nil || !guard.Live(gen) {
			return
		}

		var partial map[int]ResolvedItemMarketInfo
		if err != nil {
			partial = placeholderBatch(slice)
		} else {
			partial = resolveBatch(slice, results, target.IsDatacenter())
		}

		// 合併與世代檢查在同一把鎖內：取代中的新世代要嘛排在合併
		// 之後（隨後的清空會蓋掉），要嘛讓這裡直接放棄，插不進中間
		if !guard.IfLive(gen, func() { onBatch(partial) }) {
			return
		}

		offset = end
		index++
	}
}

// resolveBatch 解析一個批次，回應中缺少的 ID 一律補上不可交易的空結果
func resolveBatch(slice []int, results []universalis.AggregatedItemResult, isDatacenterQuery bool) map[int]ResolvedItemMarketInfo {
	byID := make(map[int]universalis.AggregatedItemResult, len(results))
	for _, r := range results {
		byID[r.ItemID] = r
	}

	partial := make(map[int]ResolvedItemMarketInfo, len(slice))
	for _, id := range slice {
		r, ok := byID[id]
		if !ok {
			partial[id] = ResolvedItemMarketInfo{Tradable: false}
			continue
		}
		partial[id] = Resolve(r.Nq, r.Hq, isDatacenterQuery)
	}
	return partial
}

// placeholderBatch 整批失敗時的佔位結果
func placeholderBatch(slice []int) map[int]ResolvedItemMarketInfo {
	partial := make(map[int]ResolvedItemMarketInfo, len(slice))
	for _, id := range slice {
		partial[id] = ResolvedItemMarketInfo{Tradable: false}
	}
	return partial
}
