package models

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/gosimple/slug"
)

// GenerateSlug 根据商品名生成URL别名
func GenerateSlug(name string) string {
	return slug.Make(name)
}

// GenerateRandomCode 生成随机码（激活码/找回码）
func GenerateRandomCode(length int) string {
	b := make([]byte, length)
	rand.Read(b)
	return hex.EncodeToString(b)[:length]
}
