// fetcher.go 瓦片获取
package mosaic

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GrainArc/SceneMap/tilemath"
)

const (
	// MaxRetries 单瓦片最大重试次数
	MaxRetries = 2
	// RetryDelay 重试初始间隔
	RetryDelay = 500 * time.Millisecond
	// RetryBackoff 重试间隔倍增系数
	RetryBackoff = 2
)

// TileFetcher 瓦片获取接口
// 任何错误都由拼接方以占位色块代替，不会导致整个任务失败
type TileFetcher interface {
	Fetch(ctx context.Context, tile tilemath.TileCoord) ([]byte, error)
}

// HTTPTileFetcher 网络瓦片获取器
type HTTPTileFetcher struct {
	urlTemplate string
	httpClient  *http.Client
}

// NewHTTPTileFetcher 创建网络瓦片获取器
// urlTemplate 中的 {z} {x} {y} 占位符会被替换为瓦片坐标
func NewHTTPTileFetcher(urlTemplate string, timeout time.Duration) *HTTPTileFetcher {
	return &HTTPTileFetcher{
		urlTemplate: urlTemplate,
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

// Fetch 带重试获取单个瓦片
func (f *HTTPTileFetcher) Fetch(ctx context.Context, tile tilemath.TileCoord) ([]byte, error) {
	url := f.buildTileURL(tile)

	var lastErr error
	delay := RetryDelay

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
				delay = delay * time.Duration(RetryBackoff)
			}
		}

		data, err := f.fetchTile(ctx, url)
		if err == nil && isValidTileData(data) {
			return data, nil
		}

		lastErr = err
		if err == nil && !isValidTileData(data) {
			lastErr = fmt.Errorf("invalid tile data")
		}
	}

	return nil, fmt.Errorf("all %d attempts failed: %v", MaxRetries+1, lastErr)
}

func (f *HTTPTileFetcher) buildTileURL(tile tilemath.TileCoord) string {
	url := f.urlTemplate
	url = strings.ReplaceAll(url, "{z}", strconv.Itoa(tile.Z))
	url = strings.ReplaceAll(url, "{x}", strconv.Itoa(tile.X))
	url = strings.ReplaceAll(url, "{y}", strconv.Itoa(tile.Y))
	url = strings.ReplaceAll(url, "{-y}", strconv.Itoa(int(1<<uint(tile.Z))-1-tile.Y))
	return url
}

func (f *HTTPTileFetcher) fetchTile(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %v", err)
	}

	req.Header.Set("User-Agent", "SceneMap/1.0")
	req.Header.Set("Accept", "image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch tile failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tile server returned status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response failed: %v", err)
	}

	return data, nil
}

// isValidTileData 检查瓦片字节是否为可解码的图片
func isValidTileData(data []byte) bool {
	if len(data) < 100 {
		return false
	}

	// PNG签名
	if len(data) >= 8 {
		pngSignature := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
		isPNG := true
		for i := 0; i < 8; i++ {
			if data[i] != pngSignature[i] {
				isPNG = false
				break
			}
		}
		if isPNG {
			return true
		}
	}

	// JPEG签名
	if len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return true
	}

	// WebP签名
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP" {
		return true
	}

	return false
}
