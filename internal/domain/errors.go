package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// 三类业务错误，调用方用 errors.Is 判断
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
)

// 已有根分类时再建根：既是冲突也是缺少 supercategory 的校验错误
var ErrSupercategoryRequired = fmt.Errorf("%w: %w: supercategory required", ErrConflict, ErrValidation)

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// LoanConflictError 描述与新申请重叠的第一条已批准借用
type LoanConflictError struct {
	InstanceID uuid.UUID
	LoanID     uuid.UUID
	UserID     uuid.UUID
	UserName   string
	Start      time.Time
	End        time.Time
}

func (e *LoanConflictError) Error() string {
	who := e.UserName
	if who == "" {
		who = e.UserID.String()
	}
	return fmt.Sprintf("conflict: instance %s already loaned to %s from %s to %s",
		e.InstanceID, who, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

func (e *LoanConflictError) Unwrap() error { return ErrConflict }
