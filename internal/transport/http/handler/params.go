package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"loan-ledger/internal/domain"
	"loan-ledger/internal/transport/http/ez"
)

func pathID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, ez.BadRequest("invalid " + name)
	}
	return id, nil
}

// optionalID 空串表示未提供
func optionalID(field, s string) (*uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, ez.BadRequest("invalid " + field)
	}
	return &id, nil
}

func optionalTime(field, s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, ez.BadRequest("invalid " + field + ", want RFC3339")
	}
	return &t, nil
}

type loanQuery struct {
	LoanID       string `form:"loan_id"`
	AcceptedOnly *bool  `form:"accepted_only"`
	UserID       string `form:"user_id"`
	ProductID    string `form:"product_id"`
	InstanceID   string `form:"instance_id"`
	CategoryID   string `form:"category_id"`
	From         string `form:"from"`
	To           string `form:"to"`
}

func (q loanQuery) filter() (domain.LoanFilter, error) {
	var (
		f   domain.LoanFilter
		err error
	)
	if f.LoanID, err = optionalID("loan_id", q.LoanID); err != nil {
		return f, err
	}
	if f.UserID, err = optionalID("user_id", q.UserID); err != nil {
		return f, err
	}
	if f.ProductID, err = optionalID("product_id", q.ProductID); err != nil {
		return f, err
	}
	if f.InstanceID, err = optionalID("instance_id", q.InstanceID); err != nil {
		return f, err
	}
	if f.CategoryID, err = optionalID("category_id", q.CategoryID); err != nil {
		return f, err
	}
	if f.RangeStart, err = optionalTime("from", q.From); err != nil {
		return f, err
	}
	if f.RangeEnd, err = optionalTime("to", q.To); err != nil {
		return f, err
	}
	f.AcceptedOnly = q.AcceptedOnly
	return f, nil
}

// 展示时区只影响输出，比较都在存储层按 UTC 做
func renderLoans(loans []domain.Loan, loc *time.Location) []domain.Loan {
	out := make([]domain.Loan, len(loans))
	for i, l := range loans {
		out[i] = renderLoan(l, loc)
	}
	return out
}

func renderLoan(l domain.Loan, loc *time.Location) domain.Loan {
	l.Start = l.Start.In(loc)
	l.End = l.End.In(loc)
	return l
}
