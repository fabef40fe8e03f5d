// overpass.go 建筑数据查询客户端
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/GrainArc/SceneMap/tilemath"
)

// LonLat 经纬度点
type LonLat struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Element 建筑要素
// 几何环可能不闭合、退化或自相交，使用方必须按不可信数据处理
type Element struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Tags     map[string]string `json:"tags"`
	Geometry []LonLat          `json:"geometry"`
}

type queryResponse struct {
	Elements []Element `json:"elements"`
}

// Client Overpass查询客户端
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient 创建查询客户端
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// QueryBuildings 查询边界框内的建筑要素
// 查询失败对整个导出任务是致命的，错误直接上抛
func (c *Client) QueryBuildings(ctx context.Context, b tilemath.Bounds) ([]Element, error) {
	query := fmt.Sprintf(`
    [out:json][timeout:60];
    (
      way["building"](%f,%f,%f,%f);
      relation["building"](%f,%f,%f,%f);
    );
    out geom;
    `, b.MinLat, b.MinLon, b.MaxLat, b.MaxLon,
		b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)

	form := url.Values{}
	form.Set("data", query)

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("获取建筑数据失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("建筑数据服务返回状态: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response failed: %v", err)
	}

	var result queryResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("解析建筑数据失败: %v", err)
	}

	// 只保留带building标签且有几何的要素
	buildings := make([]Element, 0, len(result.Elements))
	for _, e := range result.Elements {
		if e.Tags["building"] == "" || len(e.Geometry) == 0 {
			continue
		}
		buildings = append(buildings, e)
	}

	return buildings, nil
}
