package universalis

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultBaseURL = "https://universalis.app"

// 伺服器清單載入的重試參數
const (
	serverListAttempts = 3
	serverListTimeout  = 2 * time.Second
)

// Client Universalis API 客戶端
type Client struct {
	baseURL string
	client  *resty.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := resty.New()
	client.SetTimeout(30 * time.Second)

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// AggregatedPrices 查詢一批物品的聚合市場統計
// target 為資料中心名稱或世界 ID 字串
func (c *Client) AggregatedPrices(ctx context.Context, target string, ids []int) ([]AggregatedItemResult, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	joined := make([]string, len(ids))
	for i, id := range ids {
		joined[i] = strconv.Itoa(id)
	}

	var result AggregatedResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&result).
		Get(fmt.Sprintf("%s/api/v2/aggregated/%s/%s", c.baseURL, url.PathEscape(target), strings.Join(joined, ",")))
	if err != nil {
		return nil, fmt.Errorf("查詢聚合價格失敗: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("聚合價格端點回應異常 (HTTP %d)", resp.StatusCode())
	}

	return result.Results, nil
}

// DataCenters 取得資料中心清單，失敗時重試（最多3次，每次2秒逾時）
func (c *Client) DataCenters(ctx context.Context) ([]DataCenter, error) {
	var dcs []DataCenter
	err := c.getWithRetry(ctx, "/api/v2/data-centers", &dcs)
	if err != nil {
		return nil, err
	}
	return dcs, nil
}

// Worlds 取得世界清單，失敗時重試（最多3次，每次2秒逾時）
func (c *Client) Worlds(ctx context.Context) ([]World, error) {
	var worlds []World
	err := c.getWithRetry(ctx, "/api/v2/worlds", &worlds)
	if err != nil {
		return nil, err
	}
	return worlds, nil
}

func (c *Client) getWithRetry(ctx context.Context, path string, out interface{}) error {
	var lastErr error
	for attempt := 1; attempt <= serverListAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, serverListTimeout)
		resp, err := c.client.R().
			SetContext(attemptCtx).
			SetResult(out).
			Get(c.baseURL + path)
		cancel()

		if err == nil && resp.StatusCode() == 200 {
			return nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode())
		}
		log.Printf("載入 %s 失敗 (第%d次): %v", path, attempt, lastErr)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("載入 %s 重試%d次後仍失敗: %w", path, serverListAttempts, lastErr)
}
