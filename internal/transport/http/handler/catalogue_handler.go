package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"loan-ledger/internal/domain"
	"loan-ledger/internal/service"
	"loan-ledger/internal/transport/http/ez"
)

type CatalogueHandler struct {
	svc *service.CatalogueService
}

func NewCatalogueHandler(svc *service.CatalogueService) *CatalogueHandler {
	return &CatalogueHandler{svc: svc}
}

func (h *CatalogueHandler) Priority() int { return 10 }

func (h *CatalogueHandler) MountAPI(g *gin.RouterGroup) { h.mountReads(ez.New(g)) }

func (h *CatalogueHandler) MountAdmin(g *gin.RouterGroup) {
	e := ez.New(g)
	h.mountReads(e)
	h.mountWrites(e)
}

type listCategoriesQ struct {
	Super string `form:"super"`
}

type listProductsQ struct {
	Category string `form:"category"`
	Name     string `form:"name"`
}

type listInstancesQ struct {
	Product string `form:"product"`
}

func (h *CatalogueHandler) mountReads(e ez.EZ) {
	ez.RegisterAction(e, ez.Action[listCategoriesQ, []domain.Category]{
		Method: http.MethodGet,
		Path:   "/categories",
		Binder: ez.BindQuery,
		Handler: func(c *gin.Context, in *listCategoriesQ) ([]domain.Category, error) {
			super, err := optionalID("super", in.Super)
			if err != nil {
				return nil, err
			}
			return h.svc.ListCategories(c.Request.Context(), super)
		},
	})

	// key 可以是 id 也可以是名字
	ez.RegisterAction(e, ez.Action[struct{}, *domain.Category]{
		Method: http.MethodGet,
		Path:   "/categories/:key",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.Category, error) {
			key := c.Param("key")
			var (
				cat *domain.Category
				err error
			)
			if id, perr := uuid.Parse(key); perr == nil {
				cat, err = h.svc.GetCategoryByID(c.Request.Context(), id)
			} else {
				cat, err = h.svc.GetCategory(c.Request.Context(), key)
			}
			if err != nil {
				return nil, err
			}
			if cat == nil {
				return nil, ez.NotFound("category not found")
			}
			return cat, nil
		},
	})

	ez.RegisterAction(e, ez.Action[listProductsQ, []domain.Product]{
		Method: http.MethodGet,
		Path:   "/products",
		Binder: ez.BindQuery,
		Handler: func(c *gin.Context, in *listProductsQ) ([]domain.Product, error) {
			if in.Name != "" {
				p, err := h.svc.GetProductByName(c.Request.Context(), in.Name)
				if err != nil || p == nil {
					return []domain.Product{}, err
				}
				return []domain.Product{*p}, nil
			}
			category, err := optionalID("category", in.Category)
			if err != nil {
				return nil, err
			}
			return h.svc.ListProducts(c.Request.Context(), category)
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, *domain.Product]{
		Method: http.MethodGet,
		Path:   "/products/:id",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.Product, error) {
			id, err := pathID(c, "id")
			if err != nil {
				return nil, err
			}
			p, err := h.svc.GetProduct(c.Request.Context(), id)
			if err != nil {
				return nil, err
			}
			if p == nil {
				return nil, ez.NotFound("product not found")
			}
			return p, nil
		},
	})

	ez.RegisterAction(e, ez.Action[listInstancesQ, []domain.Instance]{
		Method: http.MethodGet,
		Path:   "/instances",
		Binder: ez.BindQuery,
		Handler: func(c *gin.Context, in *listInstancesQ) ([]domain.Instance, error) {
			product, err := optionalID("product", in.Product)
			if err != nil {
				return nil, err
			}
			return h.svc.ListInstances(c.Request.Context(), product)
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, domain.Instance]{
		Method: http.MethodGet,
		Path:   "/instances/:id",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (domain.Instance, error) {
			id, err := pathID(c, "id")
			if err != nil {
				return domain.Instance{}, err
			}
			return h.svc.GetInstance(c.Request.Context(), id)
		},
	})
}

type addCategoryIn struct {
	Name          string     `json:"name" binding:"required,max=191"`
	Supercategory *uuid.UUID `json:"supercategory"`
}

type moveCategoryIn struct {
	Supercategory *uuid.UUID `json:"supercategory"`
}

type addProductIn struct {
	Name     string    `json:"name" binding:"required,max=191"`
	Category uuid.UUID `json:"category"`
}

type addInstanceIn struct {
	Identifier string    `json:"identifier" binding:"required,max=191"`
	Product    uuid.UUID `json:"product"`
}

type removedOut struct {
	ID uuid.UUID `json:"id"`
}

func (h *CatalogueHandler) mountWrites(e ez.EZ) {
	ez.RegisterAction(e, ez.Action[addCategoryIn, *domain.Category]{
		Method: http.MethodPost,
		Path:   "/categories",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *addCategoryIn) (*domain.Category, error) {
			return h.svc.AddCategory(c.Request.Context(), in.Name, in.Supercategory)
		},
	})

	ez.RegisterAction(e, ez.Action[moveCategoryIn, *domain.Category]{
		Method: http.MethodPost,
		Path:   "/categories/:key/move",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *moveCategoryIn) (*domain.Category, error) {
			id, err := pathID(c, "key")
			if err != nil {
				return nil, err
			}
			return h.svc.MoveCategory(c.Request.Context(), id, in.Supercategory)
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, removedOut]{
		Method: http.MethodDelete,
		Path:   "/categories/:key",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (removedOut, error) {
			id, err := pathID(c, "key")
			if err != nil {
				return removedOut{}, err
			}
			return removedOut{ID: id}, h.svc.RemoveCategory(c.Request.Context(), id)
		},
	})

	ez.RegisterAction(e, ez.Action[addProductIn, *domain.Product]{
		Method: http.MethodPost,
		Path:   "/products",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *addProductIn) (*domain.Product, error) {
			return h.svc.AddProduct(c.Request.Context(), in.Name, in.Category)
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, removedOut]{
		Method: http.MethodDelete,
		Path:   "/products/:id",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (removedOut, error) {
			id, err := pathID(c, "id")
			if err != nil {
				return removedOut{}, err
			}
			return removedOut{ID: id}, h.svc.RemoveProduct(c.Request.Context(), id)
		},
	})

	ez.RegisterAction(e, ez.Action[addInstanceIn, *domain.Instance]{
		Method: http.MethodPost,
		Path:   "/instances",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *addInstanceIn) (*domain.Instance, error) {
			return h.svc.AddInstance(c.Request.Context(), in.Identifier, in.Product)
		},
	})
}
