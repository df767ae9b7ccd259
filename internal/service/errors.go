package service

import (
	"errors"
	"fmt"

	"github.com/yuqie6/ActivityRank/internal/repository"
)

var (
	// ErrValidation 单条输入非法（邀请码、导出行），跳过该条
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized 非管理员调用管理命令
	ErrUnauthorized = errors.New("not authorized")
	// ErrNoCandidates 抽奖候选为空
	ErrNoCandidates = errors.New("no candidates")
	// ErrDuplicate 并发下被唯一索引拦截的重复计分
	ErrDuplicate = repository.ErrDuplicate
)

// StoreError 存储调用失败：记录日志后放弃本次操作，不重试
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
