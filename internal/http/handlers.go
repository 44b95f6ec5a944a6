package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"ordercore/internal/domain"
	"ordercore/internal/observability"
	"ordercore/internal/payment"
	"ordercore/internal/repository"
	"ordercore/internal/service"
)

// Options зависимости HTTP-сервера
type Options struct {
	Products     *service.ProductService
	Orders       *service.OrderService
	Cancellation *service.CancellationService
	Idempotency  *service.IdempotencyGuard
	DB           repository.Pinger
	Log          *zap.Logger
	Metrics      *observability.Metrics
	Gatherer     prometheus.Gatherer
	Version      string
	// MockGateway монтирует детерминированный мок платёжного шлюза на /mock/payment
	MockGateway bool
}

type Server struct {
	engine       *gin.Engine
	products     *service.ProductService
	orders       *service.OrderService
	cancellation *service.CancellationService
	idem         *service.IdempotencyGuard
	db           repository.Pinger
	log          *zap.Logger
	metrics      *observability.Metrics
	version      string
}

func NewServer(o Options) *Server {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if o.Metrics == nil {
		o.Metrics = observability.NopMetrics()
	}
	r := gin.New()
	s := &Server{
		engine:       r,
		products:     o.Products,
		orders:       o.Orders,
		cancellation: o.Cancellation,
		idem:         o.Idempotency,
		db:           o.DB,
		log:          o.Log,
		metrics:      o.Metrics,
		version:      o.Version,
	}
	r.Use(s.observe(), s.recovery())
	s.registerRoutes(o)
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes(o Options) {
	// Swagger UI
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	if o.Gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(o.Gatherer, promhttp.HandlerOpts{})))
	}
	if o.MockGateway {
		payment.RegisterMock(s.engine.Group("/mock/payment"))
	}

	v1 := s.engine.Group("/api/v1")
	{
		v1.GET("/health", s.health)

		products := v1.Group("/products")
		products.POST("", s.createProduct)
		products.GET(":id", s.getProduct)
		products.GET("by-sku/:sku", s.getProductBySKU)
		products.PUT(":id", s.updateProduct)
		products.DELETE(":id", s.deleteProduct)
		products.GET("", s.listProducts)

		orders := v1.Group("/orders")
		orders.POST("", s.createOrder)
		orders.GET("", s.listOrders)
		orders.GET(":id", s.getOrder)
		orders.POST(":id/authorize-payment", s.authorizePayment)
		orders.POST(":id/cancel", s.cancelOrder)
	}
}

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
}

// @Summary Health check
// @Tags ops
// @Produce json
// @Success 200 {object} healthResponse
// @Failure 503 {object} healthResponse
// @Router /health [get]
func (s *Server) health(c *gin.Context) {
	resp := healthResponse{Status: "UP", Version: s.version, Database: "UP"}
	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			observability.LoggerFrom(c.Request.Context(), s.log).Warn("database ping failed", zap.Error(err))
			resp.Status, resp.Database = "DOWN", "DOWN"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Product handlers
type productResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	SKU       string    `json:"sku"`
	Price     string    `json:"price"`
	Stock     int64     `json:"stockQuantity"`
	Active    bool      `json:"active"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toProductResponse(p *domain.Product) productResponse {
	return productResponse{
		ID: p.ID, Name: p.Name, SKU: p.SKU, Price: domain.FormatMoney(p.Price), Stock: p.Stock,
		Active: p.Active, Version: p.Version, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

type createProductReq struct {
	Name  string          `json:"name" binding:"required"`
	SKU   string          `json:"sku" binding:"required"`
	Price decimal.Decimal `json:"price" swaggertype:"string"`
	Stock int64           `json:"stockQuantity" binding:"gte=0"`
}

// @Summary Create product
// @Tags products
// @Accept json
// @Produce json
// @Param input body createProductReq true "Product"
// @Success 201 {object} productResponse
// @Failure 400 {object} Problem
// @Failure 409 {object} Problem
// @Router /products [post]
func (s *Server) createProduct(c *gin.Context) {
	var req createProductReq
	if !s.bindJSON(c, &req) {
		return
	}
	p, err := s.products.Create(c.Request.Context(), domain.Product{Name: req.Name, SKU: req.SKU, Price: req.Price, Stock: req.Stock})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toProductResponse(p))
}

// @Summary Get product by id
// @Tags products
// @Produce json
// @Param id path int true "Product ID"
// @Success 200 {object} productResponse
// @Failure 400 {object} Problem
// @Failure 404 {object} Problem
// @Router /products/{id} [get]
func (s *Server) getProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	p, err := s.products.GetByID(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toProductResponse(p))
}

// @Summary Get product by SKU
// @Tags products
// @Produce json
// @Param sku path string true "SKU"
// @Success 200 {object} productResponse
// @Failure 404 {object} Problem
// @Router /products/by-sku/{sku} [get]
func (s *Server) getProductBySKU(c *gin.Context) {
	p, err := s.products.GetBySKU(c.Request.Context(), c.Param("sku"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toProductResponse(p))
}

// updateProductReq частичное обновление: отсутствующие поля не меняются
type updateProductReq struct {
	Name    *string          `json:"name"`
	SKU     *string          `json:"sku"`
	Price   *decimal.Decimal `json:"price" swaggertype:"string"`
	Active  *bool            `json:"active"`
	Version int64            `json:"version"`
	// Stock только для отказа: запас меняют резервы и отмены
	Stock *int64 `json:"stockQuantity" swaggerignore:"true"`
}

// @Summary Update product
// @Description Partial update; omitted fields are kept. version enables optimistic concurrency, 0 applies to the current version. Stock is not writable here.
// @Tags products
// @Accept json
// @Produce json
// @Param id path int true "Product ID"
// @Param input body updateProductReq true "Update"
// @Success 200 {object} productResponse
// @Failure 400 {object} Problem
// @Failure 404 {object} Problem
// @Failure 409 {object} Problem
// @Router /products/{id} [put]
func (s *Server) updateProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateProductReq
	if !s.bindJSON(c, &req) {
		return
	}
	if req.Stock != nil {
		writeProblem(c, badRequest("stockQuantity cannot be changed by update"))
		return
	}
	p, err := s.products.Update(c.Request.Context(), id, service.ProductPatch{
		Name:    req.Name,
		SKU:     req.SKU,
		Price:   req.Price,
		Active:  req.Active,
		Version: req.Version,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toProductResponse(p))
}

// @Summary Deactivate product
// @Tags products
// @Param id path int true "Product ID"
// @Success 204
// @Failure 400 {object} Problem
// @Failure 404 {object} Problem
// @Router /products/{id} [delete]
func (s *Server) deleteProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.products.Delete(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary List products
// @Tags products
// @Produce json
// @Param q query string false "Name contains"
// @Param min_price query number false "Min price"
// @Param max_price query number false "Max price"
// @Param active query bool false "Only active products"
// @Success 200 {array} productResponse
// @Failure 400 {object} Problem
// @Router /products [get]
func (s *Server) listProducts(c *gin.Context) {
	var f repository.ProductFilter
	f.NameSubstring = c.Query("q")
	for param, dst := range map[string]**decimal.Decimal{"min_price": &f.MinPrice, "max_price": &f.MaxPrice} {
		v := c.Query(param)
		if v == "" {
			continue
		}
		x, err := decimal.NewFromString(v)
		if err != nil {
			writeProblem(c, badRequest(param+" must be a number"))
			return
		}
		*dst = &x
	}
	if v := c.Query("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeProblem(c, badRequest("active must be a boolean"))
			return
		}
		f.ActiveOnly = b
	}
	list, err := s.products.List(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]productResponse, 0, len(list))
	for i := range list {
		out = append(out, toProductResponse(&list[i]))
	}
	c.JSON(http.StatusOK, out)
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := parseID(c.Param("id"))
	if err != nil || id <= 0 {
		writeProblem(c, badRequest("invalid id"))
		return 0, false
	}
	return id, true
}

// bindJSON ошибки декодирования и binding-тегов отдаются как 400 validation-error
func (s *Server) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeProblem(c, bindProblem(err))
		return false
	}
	return true
}

func bindProblem(err error) Problem {
	p := badRequest("request body is invalid")
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		p.FieldErrors = make(map[string]string, len(ve))
		for _, fe := range ve {
			p.FieldErrors[fe.Field()] = "failed on " + fe.Tag()
		}
		return p
	}
	p.Detail = "malformed JSON: " + err.Error()
	return p
}
