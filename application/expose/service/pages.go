// Package service 业务服务层，REST 接口和定时任务共用。
package service

// Pages 分页参数。
type Pages struct {
	Page int `json:"page" query:"page" validate:"gte=0"`
	Size int `json:"size" query:"size" validate:"gte=0,lte=1000"`
}

func (p Pages) normalize() Pages {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Size <= 0 {
		p.Size = 20
	}
	return p
}

func (p Pages) offset() int { return (p.Page - 1) * p.Size }

// PageResult 分页查询结果。
type PageResult[T any] struct {
	Page    int   `json:"page"`
	Size    int   `json:"size"`
	Total   int64 `json:"total"`
	Records []T   `json:"records"`
}

func newPageResult[T any](p Pages, total int64, records []T) *PageResult[T] {
	if records == nil {
		records = []T{}
	}
	return &PageResult[T]{Page: p.Page, Size: p.Size, Total: total, Records: records}
}
