package mwdbcli

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// ConfigHash 计算配置指纹，用于变更检测和去重。
// 先把输入归一化成标准 JSON（map 键有序），再取 sha256。
func ConfigHash(cfg any) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}

	// 经过一次 Unmarshal/Marshal，消除输入中键序和空白的差异。
	var norm any
	if err = json.Unmarshal(raw, &norm); err != nil {
		return "", err
	}
	canon, err := json.Marshal(norm)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
