package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"loan-ledger/internal/core/lock"
	"loan-ledger/internal/core/metrics"
	"loan-ledger/internal/domain"
	"loan-ledger/pkg/utils"
)

type LoanService struct {
	loans         domain.LoanRepository
	catalogue     domain.CatalogueRepository
	users         domain.UserRepository
	tx            domain.TxRunner
	locker        lock.Locker
	log           *zap.Logger
	autoAcceptMax time.Duration
}

type LoanDeps struct {
	Loans     domain.LoanRepository
	Catalogue domain.CatalogueRepository
	Users     domain.UserRepository
	Tx        domain.TxRunner
	Locker    lock.Locker
	Log       *zap.Logger
	// 申请时长不超过该值自动批准，<=0 时用 domain.DefaultAutoAcceptMax
	AutoAcceptMax time.Duration
}

func NewLoanService(d LoanDeps) *LoanService {
	limit := d.AutoAcceptMax
	if limit <= 0 {
		limit = domain.DefaultAutoAcceptMax
	}
	return &LoanService{
		loans:         d.Loans,
		catalogue:     d.Catalogue,
		users:         d.Users,
		tx:            d.Tx,
		locker:        d.Locker,
		log:           d.Log,
		autoAcceptMax: limit,
	}
}

// 存储用定宽四位年份的 UTC 文本，超出范围的时间无法排序也无法读回
func storableYear(t time.Time) bool {
	y := t.UTC().Year()
	return y >= 1 && y <= 9999
}

func instanceLockKey(id uuid.UUID) string { return "instance:" + id.String() }

// dedupe 去掉重复 id，保留第一次出现的位置
func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// RequestLoan 校验、检查冲突并写入一条借用。
// 同一实例上已批准的借用与 [Start, End] 闭区间相交即冲突；未批准的不占用。
func (s *LoanService) RequestLoan(ctx context.Context, req domain.LoanRequest) (_ *domain.Loan, err error) {
	began := time.Now()
	defer func() {
		metrics.ObserveSince(metrics.AdmissionLatency, began)
		if err != nil {
			metrics.Admissions.WithLabelValues(admissionOutcome(err)).Inc()
		}
	}()

	if !req.End.After(req.Start) {
		return nil, domain.Invalidf("loan end %s must be after start %s",
			req.End.Format(time.RFC3339), req.Start.Format(time.RFC3339))
	}
	for _, t := range []time.Time{req.Start, req.End} {
		if !storableYear(t) {
			return nil, domain.Invalidf("loan time %s out of range, year must be 0001-9999 in UTC",
				t.Format(time.RFC3339))
		}
	}
	ids := dedupe(req.InstanceIDs)
	if len(ids) == 0 {
		return nil, domain.Invalidf("loan needs at least one instance")
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, instanceLockKey(id))
	}
	unlock, err := s.locker.Lock(ctx, keys...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	nl := domain.NewLoan{
		ID:          utils.NewID(),
		UserID:      req.UserID,
		Start:       req.Start,
		End:         req.End,
		Accepted:    req.End.Sub(req.Start) <= s.autoAcceptMax,
		Description: req.Description,
		InstanceIDs: ids,
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		// 加锁读必须是事务里的第一条语句：MySQL 可重复读下普通读会固定快照，
		// 之后的冲突查询就看不到前一个持锁者刚提交的借用
		locked, err := s.catalogue.LockInstances(ctx, ids)
		if err != nil {
			return err
		}

		u, err := s.users.FindByID(ctx, req.UserID)
		if err != nil {
			return err
		}
		if u == nil {
			return domain.NotFoundf("user %s", req.UserID)
		}
		if missing := missingInstance(ids, locked); missing != nil {
			return domain.NotFoundf("instance %s", *missing)
		}

		if err := s.checkConflicts(ctx, ids, req.Start, req.End); err != nil {
			return err
		}
		return s.loans.Create(ctx, nl)
	})
	if err != nil {
		var lc *domain.LoanConflictError
		if errors.As(err, &lc) {
			s.log.Info("loan conflict",
				zap.Stringer("user_id", req.UserID),
				zap.Stringer("instance_id", lc.InstanceID),
				zap.Stringer("conflicting_loan", lc.LoanID))
		}
		return nil, err
	}

	loan, err := s.GetLoan(ctx, nl.ID)
	if err != nil {
		return nil, err
	}
	outcome := metrics.OutcomeAccepted
	if !loan.Accepted {
		outcome = metrics.OutcomePending
	}
	metrics.Admissions.WithLabelValues(outcome).Inc()
	s.log.Info("loan admitted",
		zap.Stringer("loan_id", loan.ID),
		zap.Stringer("user_id", req.UserID),
		zap.Int("instances", len(loan.Instances)),
		zap.Bool("accepted", loan.Accepted),
		zap.Duration("took", time.Since(began)))
	return loan, nil
}

func missingInstance(want []uuid.UUID, got []domain.Instance) *uuid.UUID {
	found := make(map[uuid.UUID]struct{}, len(got))
	for _, in := range got {
		found[in.ID] = struct{}{}
	}
	for _, id := range want {
		if _, ok := found[id]; !ok {
			return &id
		}
	}
	return nil
}

// checkConflicts 按申请顺序逐个实例检查，返回第一个冲突
func (s *LoanService) checkConflicts(ctx context.Context, ids []uuid.UUID, start, end time.Time) error {
	acceptedOnly := true
	for _, id := range ids {
		instanceID := id
		hits, err := s.loans.Query(ctx, domain.LoanFilter{
			InstanceID:   &instanceID,
			AcceptedOnly: &acceptedOnly,
			RangeStart:   &start,
			RangeEnd:     &end,
		})
		if err != nil {
			return err
		}
		if len(hits) > 0 {
			first := hits[0]
			return &domain.LoanConflictError{
				InstanceID: id,
				LoanID:     first.ID,
				UserID:     first.User.ID,
				UserName:   first.User.Name,
				Start:      first.Start,
				End:        first.End,
			}
		}
	}
	return nil
}

func admissionOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, domain.ErrValidation):
		return metrics.OutcomeInvalid
	case errors.Is(err, domain.ErrNotFound):
		return metrics.OutcomeNotFound
	}
	return metrics.OutcomeError
}

func (s *LoanService) QueryLoans(ctx context.Context, f domain.LoanFilter) ([]domain.Loan, error) {
	defer metrics.ObserveSince(metrics.QueryLatency, time.Now())
	return s.loans.Query(ctx, f)
}

func (s *LoanService) GetLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	loans, err := s.QueryLoans(ctx, domain.LoanFilter{LoanID: &id})
	if err != nil {
		return nil, err
	}
	if len(loans) == 0 {
		return nil, domain.NotFoundf("loan %s", id)
	}
	return &loans[0], nil
}
