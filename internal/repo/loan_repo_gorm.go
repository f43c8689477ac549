package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"loan-ledger/internal/domain"
)

type LoanRepo struct {
	db      *gorm.DB
	dialect goqu.DialectWrapper
}

func NewLoanRepo(db *gorm.DB) *LoanRepo {
	return &LoanRepo{db: db, dialect: goqu.Dialect(goquDialect(db))}
}

func goquDialect(db *gorm.DB) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "postgres"
	case "mysql":
		return "mysql"
	default:
		return "sqlite3"
	}
}

// loanPredicate 一个可选过滤条件：present 判断是否启用，expr 生成条件
type loanPredicate struct {
	name    string
	present func(f domain.LoanFilter) bool
	expr    func(d goqu.DialectWrapper, f domain.LoanFilter) exp.Expression
}

// 产品/分类/实例条件走子查询，命中的借用仍然带回全部实例
var loanPredicates = []loanPredicate{
	{
		name:    "loan_id",
		present: func(f domain.LoanFilter) bool { return f.LoanID != nil },
		expr: func(_ goqu.DialectWrapper, f domain.LoanFilter) exp.Expression {
			return goqu.I("l.id").Eq(f.LoanID.String())
		},
	},
	{
		name:    "accepted_only",
		present: func(f domain.LoanFilter) bool { return f.AcceptedOnly != nil && *f.AcceptedOnly },
		expr: func(_ goqu.DialectWrapper, _ domain.LoanFilter) exp.Expression {
			// goqu 会把 Eq(true) 渲染成 IS TRUE，MySQL 不接受占位符
			return goqu.L("l.accepted = ?", true)
		},
	},
	{
		name:    "user_id",
		present: func(f domain.LoanFilter) bool { return f.UserID != nil },
		expr: func(_ goqu.DialectWrapper, f domain.LoanFilter) exp.Expression {
			return goqu.I("l.user_id").Eq(f.UserID.String())
		},
	},
	{
		name:    "instance_id",
		present: func(f domain.LoanFilter) bool { return f.InstanceID != nil },
		expr: func(d goqu.DialectWrapper, f domain.LoanFilter) exp.Expression {
			return goqu.I("l.id").In(
				d.From(goqu.T("loan_instances").As("fi")).
					Select(goqu.I("fi.loan_id")).
					Where(goqu.I("fi.instance_id").Eq(f.InstanceID.String())),
			)
		},
	},
	{
		name:    "product_id",
		present: func(f domain.LoanFilter) bool { return f.ProductID != nil },
		expr: func(d goqu.DialectWrapper, f domain.LoanFilter) exp.Expression {
			return goqu.I("l.id").In(
				d.From(goqu.T("loan_instances").As("fi")).
					InnerJoin(goqu.T("instances").As("fin"), goqu.On(goqu.I("fin.id").Eq(goqu.I("fi.instance_id")))).
					Select(goqu.I("fi.loan_id")).
					Where(goqu.I("fin.product_id").Eq(f.ProductID.String())),
			)
		},
	},
	{
		name:    "category_id",
		present: func(f domain.LoanFilter) bool { return f.CategoryID != nil },
		expr: func(d goqu.DialectWrapper, f domain.LoanFilter) exp.Expression {
			return goqu.I("l.id").In(
				d.From(goqu.T("loan_instances").As("fi")).
					InnerJoin(goqu.T("instances").As("fin"), goqu.On(goqu.I("fin.id").Eq(goqu.I("fi.instance_id")))).
					InnerJoin(goqu.T("products").As("fp"), goqu.On(goqu.I("fp.id").Eq(goqu.I("fin.product_id")))).
					Select(goqu.I("fi.loan_id")).
					Where(goqu.I("fp.category_id").Eq(f.CategoryID.String())),
			)
		},
	},
	{
		// 闭区间：结束不早于查询起点
		name:    "range_start",
		present: func(f domain.LoanFilter) bool { return f.RangeStart != nil },
		expr: func(_ goqu.DialectWrapper, f domain.LoanFilter) exp.Expression {
			return goqu.I("l.ends_at").Gte(encodeBound(*f.RangeStart))
		},
	},
	{
		name:    "range_end",
		present: func(f domain.LoanFilter) bool { return f.RangeEnd != nil },
		expr: func(_ goqu.DialectWrapper, f domain.LoanFilter) exp.Expression {
			return goqu.I("l.starts_at").Lte(encodeBound(*f.RangeEnd))
		},
	},
}

func (r *LoanRepo) buildQuery(f domain.LoanFilter) (string, []any, error) {
	d := r.dialect
	var where []exp.Expression
	for _, p := range loanPredicates {
		if p.present(f) {
			where = append(where, p.expr(d, f))
		}
	}

	ds := d.From(goqu.T("loans").As("l")).
		Select(
			goqu.I("l.id"), goqu.I("l.user_id"), goqu.I("u.name"),
			goqu.I("l.starts_at"), goqu.I("l.start_offset"),
			goqu.I("l.ends_at"), goqu.I("l.end_offset"),
			goqu.I("l.accepted"), goqu.I("l.description"),
			goqu.I("i.id"), goqu.I("i.identifier"),
			goqu.I("p.id"), goqu.I("p.name"),
			goqu.I("c.id"), goqu.I("c.name"), goqu.I("c.supercategory_id"),
		).
		LeftJoin(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("l.user_id")))).
		InnerJoin(goqu.T("loan_instances").As("li"), goqu.On(goqu.I("li.loan_id").Eq(goqu.I("l.id")))).
		InnerJoin(goqu.T("instances").As("i"), goqu.On(goqu.I("i.id").Eq(goqu.I("li.instance_id")))).
		InnerJoin(goqu.T("products").As("p"), goqu.On(goqu.I("p.id").Eq(goqu.I("i.product_id")))).
		InnerJoin(goqu.T("categories").As("c"), goqu.On(goqu.I("c.id").Eq(goqu.I("p.category_id")))).
		Where(where...).
		Order(goqu.I("l.id").Asc(), goqu.I("li.position").Asc()).
		Prepared(true)

	sqlStr, args, err := ds.ToSQL()
	if err != nil {
		return "", nil, errors.Join(ErrBuildingQueryFailed, err)
	}
	return sqlStr, args, nil
}

// Query 一次连表查询，按借用 id 折叠成带实例列表的 Loan，顺序为创建顺序
func (r *LoanRepo) Query(ctx context.Context, f domain.LoanFilter) ([]domain.Loan, error) {
	sqlStr, args, err := r.buildQuery(f)
	if err != nil {
		return nil, err
	}

	rows, err := conn(ctx, r.db).Statement.ConnPool.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query loans: %w", err)
	}
	defer rows.Close()

	loans := make([]domain.Loan, 0)
	index := make(map[string]int)
	for rows.Next() {
		var (
			loanID, userID           string
			userName                 sql.NullString
			startsAt, endsAt         string
			startOffset, endOffset   int
			accepted                 bool
			description              sql.NullString
			instID, identifier       string
			productID, productName   string
			categoryID, categoryName string
			supercategory            sql.NullString
		)
		if err := rows.Scan(
			&loanID, &userID, &userName,
			&startsAt, &startOffset, &endsAt, &endOffset,
			&accepted, &description,
			&instID, &identifier,
			&productID, &productName,
			&categoryID, &categoryName, &supercategory,
		); err != nil {
			return nil, fmt.Errorf("scan loan row: %w", err)
		}

		pos, ok := index[loanID]
		if !ok {
			l, err := newLoanRow(loanID, userID, userName, startsAt, startOffset, endsAt, endOffset, accepted, description)
			if err != nil {
				return nil, err
			}
			loans = append(loans, l)
			pos = len(loans) - 1
			index[loanID] = pos
		}

		cat := domain.Category{ID: uuid.MustParse(categoryID), Name: categoryName}
		if supercategory.Valid {
			cat.Supercategory = parseUUIDPtr(&supercategory.String)
		}
		loans[pos].Instances = append(loans[pos].Instances, domain.Instance{
			ID:         uuid.MustParse(instID),
			Identifier: identifier,
			Product: domain.Product{
				ID:       uuid.MustParse(productID),
				Name:     productName,
				Category: cat,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate loan rows: %w", err)
	}
	return loans, nil
}

func newLoanRow(
	loanID, userID string, userName sql.NullString,
	startsAt string, startOffset int, endsAt string, endOffset int,
	accepted bool, description sql.NullString,
) (domain.Loan, error) {
	start, err := decodeInstant(startsAt, startOffset)
	if err != nil {
		return domain.Loan{}, err
	}
	end, err := decodeInstant(endsAt, endOffset)
	if err != nil {
		return domain.Loan{}, err
	}
	l := domain.Loan{
		ID:        uuid.MustParse(loanID),
		User:      domain.User{ID: uuid.MustParse(userID), Name: userName.String},
		Start:     start,
		End:       end,
		Accepted:  accepted,
		Instances: make([]domain.Instance, 0, 1),
	}
	if description.Valid {
		s := description.String
		l.Description = &s
	}
	return l, nil
}

// Create 写入借用和关联行；调用方负责事务
func (r *LoanRepo) Create(ctx context.Context, nl domain.NewLoan) error {
	if len(nl.InstanceIDs) == 0 {
		return domain.Invalidf("loan without instances")
	}
	startsAt, startOffset := encodeInstant(nl.Start)
	endsAt, endOffset := encodeInstant(nl.End)

	db := conn(ctx, r.db)
	m := loanModel{
		ID:          nl.ID.String(),
		UserID:      nl.UserID.String(),
		StartsAt:    startsAt,
		StartOffset: startOffset,
		EndsAt:      endsAt,
		EndOffset:   endOffset,
		Accepted:    nl.Accepted,
		Description: nl.Description,
	}
	if err := db.Create(&m).Error; err != nil {
		return fmt.Errorf("insert loan: %w", err)
	}

	links := make([]loanInstanceModel, 0, len(nl.InstanceIDs))
	for i, id := range nl.InstanceIDs {
		links = append(links, loanInstanceModel{LoanID: m.ID, InstanceID: id.String(), Position: i})
	}
	if err := db.Create(&links).Error; err != nil {
		switch {
		case isFKViolation(err):
			return domain.NotFoundf("instance in loan %s", nl.ID)
		case isDupKey(err):
			return domain.Conflictf("duplicate instance in loan %s", nl.ID)
		}
		return fmt.Errorf("insert loan instances: %w", err)
	}
	return nil
}
