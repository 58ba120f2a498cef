// Package proxysrc 从外部来源加载代理列表。
// 底层匿名网络的成员可能在两次刷新之间完全换血，
// 所以取回的永远是完整列表，由调用方整体替换。
package proxysrc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
)

// Record 外部代理列表中的一条记录。
type Record struct {
	Host     string `json:"host"     validate:"required"`
	Port     int    `json:"port"     validate:"gt=0,lte=65535"`
	Country  string `json:"country"  validate:"required"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Source 代理列表来源。
type Source interface {
	Fetch(ctx context.Context) ([]Record, error)
}

// NewFile 从本地 JSON 文件读取代理列表。
func NewFile(path string) Source {
	return &fileSource{path: path}
}

type fileSource struct {
	path string
}

func (fs *fileSource) Fetch(_ context.Context) ([]Record, error) {
	raw, err := os.ReadFile(fs.path)
	if err != nil {
		return nil, err
	}

	var records []Record
	if err = json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("解析代理列表 %s 出错: %w", fs.path, err)
	}

	return records, nil
}

// NewURL 从远程地址拉取代理列表。
func NewURL(rawURL string, hc *http.Client) Source {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &urlSource{url: rawURL, hc: hc}
}

type urlSource struct {
	url string
	hc  *http.Client
}

func (us *urlSource) Fetch(ctx context.Context) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, us.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := us.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("拉取代理列表失败: 状态码 %d", resp.StatusCode)
	}

	var records []Record
	if err = json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("解析代理列表响应出错: %w", err)
	}

	return records, nil
}
