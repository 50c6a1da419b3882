package pricesource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/betbot/coinwatch/pkg/ratelimit"
	sdkhttp "github.com/betbot/coinwatch/pkg/sdk/http"
)

const simplePriceEndpoint = "/api/v3/simple/price"

// CoinGecko 基于 CoinGecko simple/price 接口的价格源
type CoinGecko struct {
	client  *sdkhttp.Client
	limiter *ratelimit.SlidingWindow
}

// NewCoinGecko 创建 CoinGecko 价格源，timeout 为单次请求超时
func NewCoinGecko(baseURL string, timeout time.Duration) *CoinGecko {
	return &CoinGecko{client: sdkhttp.NewClient(baseURL, timeout)}
}

// WithRateLimit 本地限流（每分钟最多 perMinute 次），超出时本轮直接按拉取失败处理
func (c *CoinGecko) WithRateLimit(perMinute int) *CoinGecko {
	c.limiter = ratelimit.NewSlidingWindow(perMinute, time.Minute)
	return c
}

// Fetch 响应格式：{"bitcoin":{"usd":67187.3}, ...}
// 缺少的资产或缺少报价币种的资产直接跳过。
func (c *CoinGecko) Fetch(ctx context.Context, ids []string, vsCurrency string) (map[string]float64, error) {
	if len(ids) == 0 {
		return map[string]float64{}, nil
	}
	if !c.limiter.Allow() {
		return nil, fmt.Errorf("%w: rate limited, retry after %s", ErrFetch, c.limiter.ResetTime().Format(time.RFC3339))
	}
	resp, err := c.client.DoRequest(ctx, http.MethodGet, simplePriceEndpoint, &sdkhttp.RequestOptions{
		Params: map[string]any{
			"ids":           strings.Join(ids, ","),
			"vs_currencies": vsCurrency,
		},
	}, nil)
	if err := sdkhttp.ParseHTTPError(resp, err); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	var body map[string]map[string]json.Number
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrFetch, err)
	}

	out := make(map[string]float64, len(ids))
	for _, id := range ids {
		quotes, ok := body[id]
		if !ok {
			continue
		}
		raw, ok := quotes[vsCurrency]
		if !ok {
			continue
		}
		price, err := raw.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: bad price for %s: %v", ErrFetch, id, err)
		}
		out[id] = price
	}
	return out, nil
}
