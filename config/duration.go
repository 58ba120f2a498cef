package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration 支持 "30s" "12h" 这样的字符串写法，方便在配置文件中书写。
type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(raw []byte) error {
	var val any
	if err := json.Unmarshal(raw, &val); err != nil {
		return err
	}

	switch v := val.(type) {
	case string:
		du, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*d = Duration(du)
	case float64: // 纯数字按秒处理
		*d = Duration(time.Duration(v) * time.Second)
	default:
		return fmt.Errorf("无法解析的时间格式: %s", raw)
	}

	return nil
}
