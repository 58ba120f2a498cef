// Package mwdbcli 对接外部制品库（内容寻址存储）。
// 制品库按内容哈希去重：重复上传同一份内容不会产生新对象，
// 返回的都是同一个 sha256 标识。
package mwdbcli

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ErrUnavailable 制品库不可达或返回异常。
var ErrUnavailable = errors.New("制品库不可用")

type Options struct {
	URL   string  // 服务地址，不带尾部斜杠
	Token string  // API token
	QPS   float64 // 上传限速
}

func New(opt Options, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	qps := opt.QPS
	if qps <= 0 {
		qps = 5
	}

	return &Client{
		base:  strings.TrimRight(opt.URL, "/"),
		token: opt.Token,
		hc:    hc,
		lim:   rate.NewLimiter(rate.Limit(qps), 1),
	}
}

type Client struct {
	base  string
	token string
	hc    *http.Client
	lim   *rate.Limiter
}

// UploadFile 上传二进制样本，返回内容哈希。
func (c *Client) UploadFile(ctx context.Context, name string, content []byte, parent string) (string, error) {
	body := map[string]any{
		"name":   name,
		"data":   base64.StdEncoding.EncodeToString(content),
		"parent": parent,
	}
	return c.push(ctx, "/api/file", body)
}

// UploadConfig 上传结构化配置，返回内容哈希。
func (c *Client) UploadConfig(ctx context.Context, family, configType string, cfg map[string]any, parent string) (string, error) {
	body := map[string]any{
		"family":      family,
		"config_type": configType,
		"cfg":         cfg,
		"parent":      parent,
	}
	return c.push(ctx, "/api/config", body)
}

// UploadBlob 上传文本 blob，返回内容哈希。
func (c *Client) UploadBlob(ctx context.Context, name, blobType, content, parent string) (string, error) {
	body := map[string]any{
		"blob_name": name,
		"blob_type": blobType,
		"content":   content,
		"parent":    parent,
	}
	return c.push(ctx, "/api/blob", body)
}

// AddTag 给已上传对象打标签。
func (c *Client) AddTag(ctx context.Context, sha256, tag string) error {
	body := map[string]any{"tag": tag}
	_, err := c.push(ctx, "/api/object/"+sha256+"/tag", body)
	return err
}

func (c *Client) push(ctx context.Context, path string, body map[string]any) (string, error) {
	if err := c.lim.Wait(ctx); err != nil {
		return "", err
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString()) // 便于与制品库对账
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: 状态码 %d: %s", ErrUnavailable, resp.StatusCode, msg)
	}

	var ret struct {
		ID string `json:"id"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&ret); err != nil {
		return "", fmt.Errorf("%w: 响应解析失败: %s", ErrUnavailable, err)
	}

	return ret.ID, nil
}
