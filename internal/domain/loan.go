package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// 超过这个时长的申请进入人工审核（accepted=false）
const DefaultAutoAcceptMax = 7 * 24 * time.Hour

// Loan 一经创建不再修改；Instances 按申请时的顺序保存
type Loan struct {
	ID          uuid.UUID  `json:"id"`
	User        User       `json:"user"`
	Start       time.Time  `json:"dateStart"`
	End         time.Time  `json:"dateEnd"`
	Accepted    bool       `json:"accepted"`
	Description *string    `json:"description,omitempty"`
	Instances   []Instance `json:"instances"`
}

// Overlaps 闭区间相交，端点相接也算冲突
func (l Loan) Overlaps(start, end time.Time) bool {
	return !l.End.Before(start) && !l.Start.After(end)
}

// LoanFilter 每个字段独立可选，nil 表示不限制
type LoanFilter struct {
	LoanID       *uuid.UUID
	AcceptedOnly *bool
	UserID       *uuid.UUID
	ProductID    *uuid.UUID
	InstanceID   *uuid.UUID
	CategoryID   *uuid.UUID
	RangeStart   *time.Time
	RangeEnd     *time.Time
}

type LoanRequest struct {
	UserID      uuid.UUID
	InstanceIDs []uuid.UUID
	Start       time.Time
	End         time.Time
	Description *string
}

// NewLoan 是写入前的扁平记录
type NewLoan struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Start       time.Time
	End         time.Time
	Accepted    bool
	Description *string
	InstanceIDs []uuid.UUID
}

type LoanRepository interface {
	Query(ctx context.Context, f LoanFilter) ([]Loan, error)
	Create(ctx context.Context, l NewLoan) error
}

// TxRunner 把 fn 包在一个事务里，事务通过 ctx 传给各 repository
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
