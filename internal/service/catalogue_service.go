package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"loan-ledger/internal/core/lock"
	"loan-ledger/internal/core/metrics"
	"loan-ledger/internal/domain"
	"loan-ledger/pkg/utils"
)

// 建根分类、把分类改成根时都要拿这把锁，MySQL 没有部分唯一索引兜底
const rootCategoryLockKey = "category:root"

type CatalogueService struct {
	repo   domain.CatalogueRepository
	tx     domain.TxRunner
	locker lock.Locker
	log    *zap.Logger
}

func NewCatalogueService(repo domain.CatalogueRepository, tx domain.TxRunner, locker lock.Locker, log *zap.Logger) *CatalogueService {
	return &CatalogueService{repo: repo, tx: tx, locker: locker, log: log}
}

func cleanName(kind, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domain.Invalidf("%s name required", kind)
	}
	return name, nil
}

// ---------- categories ----------

func (s *CatalogueService) AddCategory(ctx context.Context, name string, super *uuid.UUID) (*domain.Category, error) {
	name, err := cleanName("category", name)
	if err != nil {
		return nil, err
	}
	if super == nil {
		unlock, err := s.locker.Lock(ctx, rootCategoryLockKey)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	c := &domain.Category{ID: utils.NewID(), Name: name, Supercategory: super}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if super == nil {
			root, err := s.repo.FindRootCategory(ctx)
			if err != nil {
				return err
			}
			if root != nil {
				return domain.ErrSupercategoryRequired
			}
		} else {
			parent, err := s.repo.FindCategoryByID(ctx, *super)
			if err != nil {
				return err
			}
			if parent == nil {
				return domain.NotFoundf("supercategory %s", *super)
			}
		}
		same, err := s.repo.FindCategoryByName(ctx, name)
		if err != nil {
			return err
		}
		if same != nil {
			return domain.Conflictf("category %q already exists", name)
		}
		return s.repo.CreateCategory(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	metrics.CatalogueWrites.WithLabelValues("category", "add").Inc()
	s.log.Info("category added", zap.Stringer("id", c.ID), zap.String("name", c.Name), zap.Bool("root", c.IsRoot()))
	return c, nil
}

func (s *CatalogueService) GetCategory(ctx context.Context, name string) (*domain.Category, error) {
	return s.repo.FindCategoryByName(ctx, name)
}

func (s *CatalogueService) GetCategoryByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	return s.repo.FindCategoryByID(ctx, id)
}

// ListCategories super 为 nil 时返回全部
func (s *CatalogueService) ListCategories(ctx context.Context, super *uuid.UUID) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx, super)
}

// MoveCategory 改挂到 super 下；super 为 nil 表示改成根。
// 新父节点不能是自己或自己的后代。
func (s *CatalogueService) MoveCategory(ctx context.Context, id uuid.UUID, super *uuid.UUID) (*domain.Category, error) {
	if super == nil {
		unlock, err := s.locker.Lock(ctx, rootCategoryLockKey)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	var moved *domain.Category
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.FindCategoryByID(ctx, id)
		if err != nil {
			return err
		}
		if c == nil {
			return domain.NotFoundf("category %s", id)
		}
		if super == nil {
			if c.IsRoot() {
				moved = c
				return nil
			}
			root, err := s.repo.FindRootCategory(ctx)
			if err != nil {
				return err
			}
			if root != nil {
				return domain.ErrSupercategoryRequired
			}
		} else if err := s.checkAncestry(ctx, id, *super); err != nil {
			return err
		}
		if err := s.repo.UpdateSupercategory(ctx, id, super); err != nil {
			return err
		}
		c.Supercategory = super
		moved = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.CatalogueWrites.WithLabelValues("category", "move").Inc()
	return moved, nil
}

// checkAncestry 从 parent 向上走到根，途中遇到 id 说明会成环
func (s *CatalogueService) checkAncestry(ctx context.Context, id, parent uuid.UUID) error {
	seen := make(map[uuid.UUID]struct{})
	cur := &parent
	for cur != nil {
		if *cur == id {
			return domain.Invalidf("category %s cannot be moved under itself or a descendant", id)
		}
		if _, ok := seen[*cur]; ok {
			// 已有数据成环，不再继续
			return domain.Invalidf("category tree above %s contains a cycle", parent)
		}
		seen[*cur] = struct{}{}
		c, err := s.repo.FindCategoryByID(ctx, *cur)
		if err != nil {
			return err
		}
		if c == nil {
			if *cur == parent {
				return domain.NotFoundf("supercategory %s", parent)
			}
			return nil
		}
		cur = c.Supercategory
	}
	return nil
}

func (s *CatalogueService) RemoveCategory(ctx context.Context, id uuid.UUID) error {
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.FindCategoryByID(ctx, id)
		if err != nil {
			return err
		}
		if c == nil {
			return domain.NotFoundf("category %s", id)
		}
		n, err := s.repo.CountCategoryDependents(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.Conflictf("category %q has dependents", c.Name)
		}
		return s.repo.DeleteCategory(ctx, id)
	})
	if err != nil {
		return err
	}
	metrics.CatalogueWrites.WithLabelValues("category", "remove").Inc()
	return nil
}

// ---------- products ----------

func (s *CatalogueService) AddProduct(ctx context.Context, name string, category uuid.UUID) (*domain.Product, error) {
	name, err := cleanName("product", name)
	if err != nil {
		return nil, err
	}
	var p *domain.Product
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.FindCategoryByID(ctx, category)
		if err != nil {
			return err
		}
		if c == nil {
			return domain.NotFoundf("category %s", category)
		}
		same, err := s.repo.FindProductByName(ctx, name)
		if err != nil {
			return err
		}
		if same != nil {
			return domain.Conflictf("product %q already exists", name)
		}
		p = &domain.Product{ID: utils.NewID(), Name: name, Category: *c}
		return s.repo.CreateProduct(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	metrics.CatalogueWrites.WithLabelValues("product", "add").Inc()
	s.log.Info("product added", zap.Stringer("id", p.ID), zap.String("name", p.Name))
	return p, nil
}

func (s *CatalogueService) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return s.repo.FindProductByID(ctx, id)
}

func (s *CatalogueService) GetProductByName(ctx context.Context, name string) (*domain.Product, error) {
	return s.repo.FindProductByName(ctx, name)
}

func (s *CatalogueService) ListProducts(ctx context.Context, category *uuid.UUID) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, category)
}

func (s *CatalogueService) RemoveProduct(ctx context.Context, id uuid.UUID) error {
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.FindProductByID(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.NotFoundf("product %s", id)
		}
		n, err := s.repo.CountProductDependents(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.Conflictf("product %q has dependents", p.Name)
		}
		return s.repo.DeleteProduct(ctx, id)
	})
	if err != nil {
		return err
	}
	metrics.CatalogueWrites.WithLabelValues("product", "remove").Inc()
	return nil
}

// ---------- instances ----------

func (s *CatalogueService) AddInstance(ctx context.Context, identifier string, product uuid.UUID) (*domain.Instance, error) {
	identifier, err := cleanName("instance", identifier)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.FindProductByID(ctx, product)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.NotFoundf("product %s", product)
	}
	in := &domain.Instance{ID: utils.NewID(), Identifier: identifier, Product: *p}
	if err := s.repo.CreateInstance(ctx, in); err != nil {
		return nil, err
	}
	metrics.CatalogueWrites.WithLabelValues("instance", "add").Inc()
	return in, nil
}

// GetInstance 不存在时返回 NotFound，和其它 Get 不同
func (s *CatalogueService) GetInstance(ctx context.Context, id uuid.UUID) (domain.Instance, error) {
	in, err := s.repo.FindInstanceByID(ctx, id)
	if err != nil {
		return domain.Instance{}, err
	}
	if in == nil {
		return domain.Instance{}, domain.NotFoundf("instance %s", id)
	}
	return *in, nil
}

func (s *CatalogueService) ListInstances(ctx context.Context, product *uuid.UUID) ([]domain.Instance, error) {
	return s.repo.ListInstances(ctx, product)
}
