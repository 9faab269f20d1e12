package utils

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// 按内容生成稳定的短缓存键 用于贴纸转换结果复用
func CacheKey(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:12])
}
