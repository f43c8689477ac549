package repo

import (
	"time"

	"github.com/google/uuid"

	"loan-ledger/internal/domain"
)

// 表结构。外键只声明在 catalogue 内部和 loan_instances 上；
// loans.user_id 故意不建外键，删除用户不级联检查借用记录。

type categoryModel struct {
	ID              string         `gorm:"primaryKey;size:36"`
	Name            string         `gorm:"uniqueIndex;size:191;not null"`
	SupercategoryID *string        `gorm:"size:36;index"`
	Supercategory   *categoryModel `gorm:"foreignKey:SupercategoryID;constraint:OnDelete:RESTRICT"`
	CreatedAt       time.Time      `gorm:"autoCreateTime"`
}

func (categoryModel) TableName() string { return "categories" }

type productModel struct {
	ID         string         `gorm:"primaryKey;size:36"`
	Name       string         `gorm:"uniqueIndex;size:191;not null"`
	CategoryID string         `gorm:"size:36;not null;index"`
	Category   *categoryModel `gorm:"foreignKey:CategoryID;constraint:OnDelete:RESTRICT"`
	CreatedAt  time.Time      `gorm:"autoCreateTime"`
}

func (productModel) TableName() string { return "products" }

type instanceModel struct {
	ID         string        `gorm:"primaryKey;size:36"`
	Identifier string        `gorm:"size:191;not null;uniqueIndex:idx_instances_product_identifier,priority:2"`
	ProductID  string        `gorm:"size:36;not null;uniqueIndex:idx_instances_product_identifier,priority:1"`
	Product    *productModel `gorm:"foreignKey:ProductID;constraint:OnDelete:RESTRICT"`
	CreatedAt  time.Time     `gorm:"autoCreateTime"`
}

func (instanceModel) TableName() string { return "instances" }

type userModel struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Name      string    `gorm:"size:191;not null;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (userModel) TableName() string { return "users" }

// 时间存成定宽 UTC 文本 + 原始偏移（秒），见 instant.go
type loanModel struct {
	ID          string    `gorm:"primaryKey;size:36"`
	UserID      string    `gorm:"size:36;not null;index"`
	StartsAt    string    `gorm:"size:30;not null;index"`
	StartOffset int       `gorm:"not null;default:0"`
	EndsAt      string    `gorm:"size:30;not null;index"`
	EndOffset   int       `gorm:"not null;default:0"`
	Accepted    bool      `gorm:"not null;index"`
	Description *string   `gorm:"size:1024"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (loanModel) TableName() string { return "loans" }

type loanInstanceModel struct {
	LoanID     string         `gorm:"primaryKey;size:36"`
	InstanceID string         `gorm:"primaryKey;size:36;index"`
	Position   int            `gorm:"not null"`
	Loan       *loanModel     `gorm:"foreignKey:LoanID;constraint:OnDelete:CASCADE"`
	Instance   *instanceModel `gorm:"foreignKey:InstanceID;constraint:OnDelete:RESTRICT"`
}

func (loanInstanceModel) TableName() string { return "loan_instances" }

// Models 供 database.Migrate 建表，顺序即依赖顺序
func Models() []any {
	return []any{
		&categoryModel{}, &productModel{}, &instanceModel{},
		&userModel{}, &loanModel{}, &loanInstanceModel{},
	}
}

func strPtr(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func parseUUIDPtr(s *string) *uuid.UUID {
	if s == nil || *s == "" {
		return nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil
	}
	return &id
}

func (m categoryModel) toDomain() domain.Category {
	return domain.Category{
		ID:            uuid.MustParse(m.ID),
		Name:          m.Name,
		Supercategory: parseUUIDPtr(m.SupercategoryID),
	}
}

func (m productModel) toDomain() domain.Product {
	p := domain.Product{ID: uuid.MustParse(m.ID), Name: m.Name}
	if m.Category != nil {
		p.Category = m.Category.toDomain()
	} else {
		p.Category.ID = uuid.MustParse(m.CategoryID)
	}
	return p
}

func (m instanceModel) toDomain() domain.Instance {
	in := domain.Instance{ID: uuid.MustParse(m.ID), Identifier: m.Identifier}
	if m.Product != nil {
		in.Product = m.Product.toDomain()
	} else {
		in.Product.ID = uuid.MustParse(m.ProductID)
	}
	return in
}

func (m userModel) toDomain() domain.User {
	return domain.User{ID: uuid.MustParse(m.ID), Name: m.Name}
}

// SchemaExtras 方言相关的补充 DDL。根分类唯一靠部分唯一索引，
// MySQL 没有部分索引，只能靠 service 层的根分类锁。
func SchemaExtras(driver string) []string {
	switch driver {
	case "postgres", "sqlite":
		return []string{
			`CREATE UNIQUE INDEX IF NOT EXISTS ux_categories_single_root ON categories ((supercategory_id IS NULL)) WHERE supercategory_id IS NULL`,
		}
	}
	return nil
}
