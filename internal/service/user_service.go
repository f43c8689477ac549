package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"loan-ledger/internal/core/metrics"
	"loan-ledger/internal/domain"
	"loan-ledger/pkg/utils"
)

type UserService struct {
	repo domain.UserRepository
	log  *zap.Logger
	// 鉴权中间件每个请求都会查用户，并发的同 id 查询合并成一次
	sf singleflight.Group
}

func NewUserService(repo domain.UserRepository, log *zap.Logger) *UserService {
	return &UserService{repo: repo, log: log}
}

func (s *UserService) AddUser(ctx context.Context, name string) (*domain.User, error) {
	name, err := cleanName("user", name)
	if err != nil {
		return nil, err
	}
	u := &domain.User{ID: utils.NewID(), Name: name}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	metrics.CatalogueWrites.WithLabelValues("user", "add").Inc()
	s.log.Info("user added", zap.Stringer("id", u.ID), zap.String("name", u.Name))
	return u, nil
}

// GetUser 不存在时返回 nil, nil
func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	v, err, _ := s.sf.Do(id.String(), func() (any, error) {
		// 结果共享给所有等待者，不能被第一个调用方的取消带走
		return s.repo.FindByID(context.WithoutCancel(ctx), id)
	})
	if err != nil {
		return nil, err
	}
	u, _ := v.(*domain.User)
	if u == nil {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *UserService) GetUserByName(ctx context.Context, name string) (*domain.User, error) {
	return s.repo.FindByName(ctx, name)
}

func (s *UserService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.repo.List(ctx)
}

// RemoveUser 不检查借用记录，历史借用保留原 user id
func (s *UserService) RemoveUser(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	metrics.CatalogueWrites.WithLabelValues("user", "remove").Inc()
	s.log.Info("user removed", zap.Stringer("id", id))
	return nil
}
