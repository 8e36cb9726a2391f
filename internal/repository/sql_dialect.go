package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// isDuplicateKeyError 判断是否唯一约束冲突，兼容 sqlite 与 postgres。
// 唯一索引冲突是事件去重与周期锁的判定依据，不是异常路径。
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "constraint failed: unique") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "sqlstate 23505")
}
