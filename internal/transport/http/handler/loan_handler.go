package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"loan-ledger/internal/core/auth"
	"loan-ledger/internal/domain"
	"loan-ledger/internal/service"
	"loan-ledger/internal/transport/http/ez"
	mdw "loan-ledger/internal/transport/http/middleware"
)

type LoanHandler struct {
	svc *service.LoanService
	loc *time.Location
}

func NewLoanHandler(svc *service.LoanService, loc *time.Location) *LoanHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &LoanHandler{svc: svc, loc: loc}
}

func (h *LoanHandler) Priority() int { return 30 }

type loanRequestIn struct {
	InstanceIDs []uuid.UUID `json:"instanceIds"`
	Start       time.Time   `json:"dateStart" binding:"required"`
	End         time.Time   `json:"dateEnd" binding:"required"`
	Description *string     `json:"description" binding:"omitempty,max=1024"`
}

type adminLoanRequestIn struct {
	loanRequestIn
	UserID uuid.UUID `json:"userId"`
}

func (in loanRequestIn) request(user uuid.UUID) domain.LoanRequest {
	return domain.LoanRequest{
		UserID:      user,
		InstanceIDs: in.InstanceIDs,
		Start:       in.Start,
		End:         in.End,
		Description: in.Description,
	}
}

func (h *LoanHandler) mountQueries(e ez.EZ) {
	ez.RegisterAction(e, ez.Action[loanQuery, []domain.Loan]{
		Method: http.MethodGet,
		Path:   "/loans",
		Binder: ez.BindQuery,
		Handler: func(c *gin.Context, in *loanQuery) ([]domain.Loan, error) {
			f, err := in.filter()
			if err != nil {
				return nil, err
			}
			loans, err := h.svc.QueryLoans(c.Request.Context(), f)
			if err != nil {
				return nil, err
			}
			return renderLoans(loans, h.loc), nil
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, domain.Loan]{
		Method: http.MethodGet,
		Path:   "/loans/:id",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (domain.Loan, error) {
			id, err := pathID(c, "id")
			if err != nil {
				return domain.Loan{}, err
			}
			l, err := h.svc.GetLoan(c.Request.Context(), id)
			if err != nil {
				return domain.Loan{}, err
			}
			return renderLoan(*l, h.loc), nil
		},
	})
}

func (h *LoanHandler) MountAPI(g *gin.RouterGroup) {
	e := ez.New(g)
	h.mountQueries(e)

	// 借用人就是 token 的主体
	ez.RegisterAction(e, ez.Action[loanRequestIn, domain.Loan]{
		Method: http.MethodPost,
		Path:   "/loans",
		Binder: ez.BindJSON,
		Roles:  []string{auth.RoleBorrower},
		Handler: func(c *gin.Context, in *loanRequestIn) (domain.Loan, error) {
			u, ok := mdw.BorrowerFrom(c)
			if !ok {
				return domain.Loan{}, ez.Unauthorized("unauthorized")
			}
			l, err := h.svc.RequestLoan(c.Request.Context(), in.request(u.ID))
			if err != nil {
				return domain.Loan{}, err
			}
			return renderLoan(*l, h.loc), nil
		},
	})

	ez.RegisterAction(e, ez.Action[loanQuery, []domain.Loan]{
		Method: http.MethodGet,
		Path:   "/me/loans",
		Binder: ez.BindQuery,
		Roles:  []string{auth.RoleBorrower},
		Handler: func(c *gin.Context, in *loanQuery) ([]domain.Loan, error) {
			u, ok := mdw.BorrowerFrom(c)
			if !ok {
				return nil, ez.Unauthorized("unauthorized")
			}
			f, err := in.filter()
			if err != nil {
				return nil, err
			}
			f.UserID = &u.ID
			loans, err := h.svc.QueryLoans(c.Request.Context(), f)
			if err != nil {
				return nil, err
			}
			return renderLoans(loans, h.loc), nil
		},
	})
}

func (h *LoanHandler) MountAdmin(g *gin.RouterGroup) {
	e := ez.New(g)
	h.mountQueries(e)

	ez.RegisterAction(e, ez.Action[adminLoanRequestIn, domain.Loan]{
		Method: http.MethodPost,
		Path:   "/loans",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *adminLoanRequestIn) (domain.Loan, error) {
			l, err := h.svc.RequestLoan(c.Request.Context(), in.request(in.UserID))
			if err != nil {
				return domain.Loan{}, err
			}
			return renderLoan(*l, h.loc), nil
		},
	})
}
