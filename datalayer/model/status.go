package model

import "encoding/json"

// Status 追踪目标/任务的状态。
//
// 数值顺序有意义：tracker 的状态取其名下所有 bot 状态的最小值，
// 所以越靠前的状态越“严重”。
type Status uint8

const (
	SCrashed    Status = iota // 模块执行崩溃
	SInprogress               // 任务执行中
	SWorking                  // 正常产出
	SFailing                  // 连续无产出
	SNew                      // 刚创建，尚未执行过
	SArchived                 // 已归档，终态
)

var statusNames = map[Status]string{
	SCrashed:    "crashed",
	SInprogress: "inprogress",
	SWorking:    "working",
	SFailing:    "failing",
	SNew:        "new",
	SArchived:   "archived",
}

var statusValues = map[string]Status{
	"crashed":    SCrashed,
	"inprogress": SInprogress,
	"working":    SWorking,
	"failing":    SFailing,
	"new":        SNew,
	"archived":   SArchived,
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStatus 解析状态名，例如 API 中的过滤参数。
func ParseStatus(name string) (Status, bool) {
	s, ok := statusValues[name]
	return s, ok
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(raw []byte) error {
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return err
	}
	if v, ok := statusValues[name]; ok {
		*s = v
	}
	return nil
}

// Terminal 是否为终态。
func (s Status) Terminal() bool { return s == SArchived }
