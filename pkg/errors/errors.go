package errors

import (
	"errors"

	"gorm.io/gorm"
)

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// ErrDuplicateKey 唯一索引冲突：未签退记录、进行中申请等“至多一条”约束被并发写入突破
var ErrDuplicateKey = errors.New("记录已存在")

// TranslateDuplicate 将驱动层的唯一约束错误统一为 ErrDuplicateKey，其余错误原样返回
// 需在 gorm.Config 中开启 TranslateError
func TranslateDuplicate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateKey
	}
	return err
}
