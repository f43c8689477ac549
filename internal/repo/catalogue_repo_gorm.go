package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"loan-ledger/internal/domain"
)

type CatalogueRepo struct{ db *gorm.DB }

func NewCatalogueRepo(db *gorm.DB) *CatalogueRepo { return &CatalogueRepo{db: db} }

// ---------- categories ----------

func (r *CatalogueRepo) CreateCategory(ctx context.Context, c *domain.Category) error {
	m := categoryModel{ID: c.ID.String(), Name: c.Name, SupercategoryID: strPtr(c.Supercategory)}
	// 在事务内时 gorm 用 SAVEPOINT 包住插入；Postgres 插入失败后回滚到保存点，
	// 事务仍可继续执行下面的回查
	err := conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&m).Error
	})
	if err != nil {
		switch {
		case isDupKey(err) && c.Supercategory == nil:
			// 名字唯一索引和单根索引都可能触发，按名字回查区分
			same, lookupErr := r.FindCategoryByName(ctx, c.Name)
			if lookupErr != nil {
				return errors.Join(domain.Conflictf("category %q", c.Name), lookupErr)
			}
			if same == nil {
				return domain.ErrSupercategoryRequired
			}
			return domain.Conflictf("category %q already exists", c.Name)
		case isDupKey(err):
			return domain.Conflictf("category %q already exists", c.Name)
		case isFKViolation(err):
			return domain.NotFoundf("supercategory %s", c.Supercategory)
		}
		return err
	}
	return nil
}

func (r *CatalogueRepo) findCategory(ctx context.Context, query string, args ...any) (*domain.Category, error) {
	var m categoryModel
	err := conn(ctx, r.db).Where(query, args...).Order("id").First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c := m.toDomain()
	return &c, nil
}

func (r *CatalogueRepo) FindCategoryByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	return r.findCategory(ctx, "id = ?", id.String())
}

func (r *CatalogueRepo) FindCategoryByName(ctx context.Context, name string) (*domain.Category, error) {
	return r.findCategory(ctx, "name = ?", name)
}

func (r *CatalogueRepo) FindRootCategory(ctx context.Context) (*domain.Category, error) {
	return r.findCategory(ctx, "supercategory_id IS NULL")
}

// super 为 nil 时返回全部分类
func (r *CatalogueRepo) ListCategories(ctx context.Context, super *uuid.UUID) ([]domain.Category, error) {
	q := conn(ctx, r.db).Model(&categoryModel{})
	if super != nil {
		q = q.Where("supercategory_id = ?", super.String())
	}
	var ms []categoryModel
	if err := q.Order("id").Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Category, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (r *CatalogueRepo) UpdateSupercategory(ctx context.Context, id uuid.UUID, super *uuid.UUID) error {
	res := conn(ctx, r.db).Model(&categoryModel{}).
		Where("id = ?", id.String()).
		Update("supercategory_id", strPtr(super))
	if res.Error != nil {
		if isDupKey(res.Error) {
			return domain.ErrSupercategoryRequired
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.NotFoundf("category %s", id)
	}
	return nil
}

// 子分类 + 直属产品
func (r *CatalogueRepo) CountCategoryDependents(ctx context.Context, id uuid.UUID) (int64, error) {
	db := conn(ctx, r.db)
	var children, products int64
	if err := db.Model(&categoryModel{}).Where("supercategory_id = ?", id.String()).Count(&children).Error; err != nil {
		return 0, err
	}
	if err := db.Model(&productModel{}).Where("category_id = ?", id.String()).Count(&products).Error; err != nil {
		return 0, err
	}
	return children + products, nil
}

func (r *CatalogueRepo) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	res := conn(ctx, r.db).Where("id = ?", id.String()).Delete(&categoryModel{})
	if res.Error != nil {
		if isFKViolation(res.Error) {
			return domain.Conflictf("category %s has dependents", id)
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.NotFoundf("category %s", id)
	}
	return nil
}

// ---------- products ----------

func (r *CatalogueRepo) CreateProduct(ctx context.Context, p *domain.Product) error {
	m := productModel{ID: p.ID.String(), Name: p.Name, CategoryID: p.Category.ID.String()}
	if err := conn(ctx, r.db).Create(&m).Error; err != nil {
		switch {
		case isDupKey(err):
			return domain.Conflictf("product %q already exists", p.Name)
		case isFKViolation(err):
			return domain.NotFoundf("category %s", p.Category.ID)
		}
		return err
	}
	return nil
}

func (r *CatalogueRepo) findProduct(ctx context.Context, query string, args ...any) (*domain.Product, error) {
	var m productModel
	err := conn(ctx, r.db).Preload("Category").Where(query, args...).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := m.toDomain()
	return &p, nil
}

func (r *CatalogueRepo) FindProductByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return r.findProduct(ctx, "id = ?", id.String())
}

func (r *CatalogueRepo) FindProductByName(ctx context.Context, name string) (*domain.Product, error) {
	return r.findProduct(ctx, "name = ?", name)
}

func (r *CatalogueRepo) ListProducts(ctx context.Context, category *uuid.UUID) ([]domain.Product, error) {
	q := conn(ctx, r.db).Model(&productModel{}).Preload("Category")
	if category != nil {
		q = q.Where("category_id = ?", category.String())
	}
	var ms []productModel
	if err := q.Order("id").Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (r *CatalogueRepo) CountProductDependents(ctx context.Context, id uuid.UUID) (int64, error) {
	var n int64
	err := conn(ctx, r.db).Model(&instanceModel{}).Where("product_id = ?", id.String()).Count(&n).Error
	return n, err
}

func (r *CatalogueRepo) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	res := conn(ctx, r.db).Where("id = ?", id.String()).Delete(&productModel{})
	if res.Error != nil {
		if isFKViolation(res.Error) {
			return domain.Conflictf("product %s has dependents", id)
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.NotFoundf("product %s", id)
	}
	return nil
}

// ---------- instances ----------

func (r *CatalogueRepo) CreateInstance(ctx context.Context, in *domain.Instance) error {
	m := instanceModel{ID: in.ID.String(), Identifier: in.Identifier, ProductID: in.Product.ID.String()}
	if err := conn(ctx, r.db).Create(&m).Error; err != nil {
		switch {
		case isDupKey(err):
			return domain.Conflictf("instance %q of product %s already exists", in.Identifier, in.Product.ID)
		case isFKViolation(err):
			return domain.NotFoundf("product %s", in.Product.ID)
		}
		return err
	}
	return nil
}

func (r *CatalogueRepo) FindInstanceByID(ctx context.Context, id uuid.UUID) (*domain.Instance, error) {
	var m instanceModel
	err := conn(ctx, r.db).Preload("Product.Category").Where("id = ?", id.String()).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	in := m.toDomain()
	return &in, nil
}

func (r *CatalogueRepo) ListInstances(ctx context.Context, product *uuid.UUID) ([]domain.Instance, error) {
	q := conn(ctx, r.db).Model(&instanceModel{}).Preload("Product.Category")
	if product != nil {
		q = q.Where("product_id = ?", product.String())
	}
	var ms []instanceModel
	if err := q.Order("id").Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Instance, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.toDomain())
	}
	return out, nil
}

// 按 id 排序加锁，多个事务同时锁同一批实例不会死锁；SQLite 方言会忽略 FOR UPDATE
func (r *CatalogueRepo) LockInstances(ctx context.Context, ids []uuid.UUID) ([]domain.Instance, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}
	var ms []instanceModel
	if err := conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Product.Category").
		Where("id IN ?", keys).
		Order("id").
		Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Instance, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.toDomain())
	}
	return out, nil
}
