package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Reader 读取并解析配置。
type Reader[T any] interface {
	Read(ctx context.Context) (T, error)
}

// NewFile 从本地 JSONC 文件读取配置，允许 // 与 /* */ 注释。
func NewFile[T any](name string) Reader[T] {
	return &fileReader[T]{name: name}
}

type fileReader[T any] struct {
	name string
}

func (fr *fileReader[T]) Read(_ context.Context) (T, error) {
	var cfg T
	raw, err := os.ReadFile(fr.name)
	if err != nil {
		return cfg, err
	}
	if err = json.Unmarshal(decomment(raw), &cfg); err != nil {
		return cfg, fmt.Errorf("解析配置文件 %s 出错: %w", fr.name, err)
	}

	return cfg, nil
}

// decomment 剔除 JSONC 中的注释，字符串内部的 // 不受影响。
// 注释位置用空格占位，保证报错时行列号不变。
func decomment(raw []byte) []byte {
	const (
		plain = iota
		inString
		inEscape
		inLine  // // 注释
		inBlock // /* 注释 */
	)

	out := make([]byte, len(raw))
	state := plain
	for i := 0; i < len(raw); i++ {
		b := raw[i]
		out[i] = b
		switch state {
		case plain:
			switch {
			case b == '"':
				state = inString
			case b == '/' && i+1 < len(raw) && raw[i+1] == '/':
				state = inLine
				out[i] = ' '
			case b == '/' && i+1 < len(raw) && raw[i+1] == '*':
				state = inBlock
				out[i] = ' '
			}
		case inString:
			if b == '\\' {
				state = inEscape
			} else if b == '"' {
				state = plain
			}
		case inEscape:
			state = inString
		case inLine:
			if b == '\n' {
				state = plain
			} else {
				out[i] = ' '
			}
		case inBlock:
			if b == '*' && i+1 < len(raw) && raw[i+1] == '/' {
				out[i], out[i+1] = ' ', ' '
				i++
				state = plain
			} else if b != '\n' {
				out[i] = ' '
			}
		}
	}

	return out
}
