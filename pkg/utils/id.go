package utils

import "github.com/google/uuid"

// NewID 生成 UUIDv7：同一进程内单调递增，按 id 排序即创建顺序
func NewID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
