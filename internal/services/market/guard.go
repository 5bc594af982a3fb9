package market

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Guard 抓取世代守衛：每個消費端持有一個
// 搜尋字串、伺服器選擇或物品集合改變時開始新世代，舊世代的一切工作立即失效
type Guard struct {
	mu           sync.Mutex
	gen          uint64
	cancel       context.CancelFunc
	completedKey string
}

func NewGuard() *Guard {
	return &Guard{}
}

// Begin 開始新的抓取世代：取消前一個世代並遞增計數
func (g *Guard) Begin(parent context.Context) (ctx context.Context, gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cancel != nil {
		g.cancel()
	}
	g.gen++

	ctx, g.cancel = context.WithCancel(parent)
	return ctx, g.gen
}

// Live 世代是否仍為當前世代
func (g *Guard) Live(gen uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return gen == g.gen
}

// IfLive 世代仍有效時才執行 fn，檢查與執行在同一把鎖內：
// 取代中的新世代無法插進檢查與合併之間
// fn 內不可再呼叫守衛的其他方法
func (g *Guard) IfLive(gen uint64, fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.gen {
		return false
	}
	fn()
	return true
}

// ShouldSkip 世代仍有效、且快取鍵與上一次「完整完成」的抓取相同時回傳 true，
// 呼叫端不應再啟動排程（無關的狀態變動重算出相同的鍵時跳過重複抓取）
func (g *Guard) ShouldSkip(gen uint64, key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return gen == g.gen && key != "" && key == g.completedKey
}

// Complete 標記一次抓取完整完成，記下快取鍵供 ShouldSkip 去重
// 已被後續世代取代時不記錄
func (g *Guard) Complete(gen uint64, key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen == g.gen {
		g.completedKey = key
	}
}

// Reset 取消當前世代並清除完成記錄（物品集合清空、伺服器取消選擇時）
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	g.gen++
	g.completedKey = ""
}

// CacheKey 穩定的抓取快取鍵：排序後逗號相接的 ID 清單加伺服器選擇值
func CacheKey(ids []int, selector string) string {
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)

	var b strings.Builder
	for i, id := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(id))
	}
	b.WriteByte('@')
	b.WriteString(selector)
	return b.String()
}
