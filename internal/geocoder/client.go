package geocoder

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// nominatimResponse Nominatim 反向地理编码应答
type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// Client 反向地理编码客户端。
// 只做尽力而为的地址解析：超时或失败时采集路径继续，地址留空。
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewClient 创建地理编码客户端
// timeout 是单次查询的硬上限——采集请求不能被外部查询无限阻塞
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "lapso-registry")

	return &Client{
		httpClient: client,
		logger:     logger,
	}
}

// ReverseGeocode 把坐标解析为可读地址
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	var result nominatimResponse

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"lat":    fmt.Sprintf("%f", lat),
			"lon":    fmt.Sprintf("%f", lng),
			"format": "jsonv2",
		}).
		SetResult(&result).
		Get("/reverse")
	if err != nil {
		return "", fmt.Errorf("reverse geocode request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("reverse geocode returned status %d", resp.StatusCode())
	}
	if result.Error != "" {
		return "", fmt.Errorf("reverse geocode error: %s", result.Error)
	}
	return result.DisplayName, nil
}
