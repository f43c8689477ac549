package domain

import (
	"context"

	"github.com/google/uuid"
)

// Category 组成一棵树；Supercategory 为 nil 的是根，同一时刻最多一个根
type Category struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	Supercategory *uuid.UUID `json:"supercategory,omitempty"`
}

func (c Category) IsRoot() bool { return c.Supercategory == nil }

type Product struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Category Category  `json:"category"`
}

// Instance 是可以单独借出的一件实物；identifier 只在同一产品内唯一
type Instance struct {
	ID         uuid.UUID `json:"id"`
	Identifier string    `json:"identifier"`
	Product    Product   `json:"product"`
}

type CatalogueRepository interface {
	CreateCategory(ctx context.Context, c *Category) error
	FindCategoryByID(ctx context.Context, id uuid.UUID) (*Category, error)
	FindCategoryByName(ctx context.Context, name string) (*Category, error)
	FindRootCategory(ctx context.Context) (*Category, error)
	ListCategories(ctx context.Context, super *uuid.UUID) ([]Category, error)
	UpdateSupercategory(ctx context.Context, id uuid.UUID, super *uuid.UUID) error
	CountCategoryDependents(ctx context.Context, id uuid.UUID) (int64, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error

	CreateProduct(ctx context.Context, p *Product) error
	FindProductByID(ctx context.Context, id uuid.UUID) (*Product, error)
	FindProductByName(ctx context.Context, name string) (*Product, error)
	ListProducts(ctx context.Context, category *uuid.UUID) ([]Product, error)
	CountProductDependents(ctx context.Context, id uuid.UUID) (int64, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error

	CreateInstance(ctx context.Context, in *Instance) error
	FindInstanceByID(ctx context.Context, id uuid.UUID) (*Instance, error)
	ListInstances(ctx context.Context, product *uuid.UUID) ([]Instance, error)
	// LockInstances 在当前事务里对实例行加写锁，返回按 id 排序的实例
	LockInstances(ctx context.Context, ids []uuid.UUID) ([]Instance, error)
}
