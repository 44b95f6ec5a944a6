package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ordercore/internal/domain"
	"ordercore/internal/service"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	maxOrderBody         = 1 << 20
)

type orderItemResponse struct {
	ProductID  int64  `json:"productId"`
	ProductSKU string `json:"productSku"`
	Quantity   int64  `json:"quantity"`
	UnitPrice  string `json:"unitPrice"`
	Subtotal   string `json:"subtotal"`
}

type paymentResponse struct {
	Status          string `json:"status"`
	Amount          string `json:"amount"`
	AuthorizationID string `json:"authorizationId,omitempty"`
	RetryAttempts   int    `json:"retryAttempts"`
	LastError       string `json:"lastError,omitempty"`
}

type orderResponse struct {
	ID             int64               `json:"id"`
	CustomerEmail  string              `json:"customerEmail"`
	Status         string              `json:"status"`
	Subtotal       string              `json:"subtotal"`
	DiscountAmount string              `json:"discountAmount"`
	Total          string              `json:"total"`
	Items          []orderItemResponse `json:"items"`
	Payment        *paymentResponse    `json:"payment,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

type orderPageResponse struct {
	Content       []orderResponse `json:"content"`
	Page          int             `json:"page"`
	Size          int             `json:"size"`
	TotalElements int             `json:"totalElements"`
	TotalPages    int             `json:"totalPages"`
}

func toOrderResponse(o *domain.Order) orderResponse {
	out := orderResponse{
		ID:             o.ID,
		CustomerEmail:  o.CustomerEmail,
		Status:         string(o.Status),
		Subtotal:       domain.FormatMoney(o.Subtotal),
		DiscountAmount: domain.FormatMoney(o.Discount),
		Total:          domain.FormatMoney(o.Total),
		Items:          make([]orderItemResponse, 0, len(o.Items)),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	for _, it := range o.Items {
		out.Items = append(out.Items, orderItemResponse{
			ProductID:  it.ProductID,
			ProductSKU: it.ProductSKU,
			Quantity:   it.Quantity,
			UnitPrice:  domain.FormatMoney(it.UnitPrice),
			Subtotal:   domain.FormatMoney(it.Subtotal),
		})
	}
	if p := o.Payment; p != nil {
		out.Payment = &paymentResponse{
			Status:          string(p.Status),
			Amount:          domain.FormatMoney(p.Amount),
			AuthorizationID: p.AuthorizationID,
			RetryAttempts:   p.RetryAttempts,
			LastError:       p.LastError,
		}
	}
	return out
}

// @Summary Create order
// @Description Повтор с тем же Idempotency-Key и тем же телом возвращает сохранённый ответ
// @Tags orders
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Idempotency key"
// @Param input body service.CreateOrderRequest true "Order"
// @Success 201 {object} orderResponse
// @Failure 400 {object} Problem
// @Failure 404 {object} Problem
// @Failure 409 {object} Problem
// @Failure 502 {object} Problem
// @Router /orders [post]
func (s *Server) createOrder(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxOrderBody))
	if err != nil {
		writeProblem(c, badRequest("request body is too large or unreadable"))
		return
	}
	key := c.GetHeader(headerIdempotencyKey)
	instance := c.Request.URL.Path

	resp, err := s.idem.Handle(c.Request.Context(), key, body, func(ctx context.Context) service.Response {
		var req service.CreateOrderRequest
		dec := json.NewDecoder(bytes.NewReader(body))
		if err := dec.Decode(&req); err != nil {
			p := badRequest("malformed JSON: " + err.Error())
			p.Instance = instance
			return service.Response{StatusCode: p.Status, Body: mustJSON(p)}
		}
		o, err := s.orders.CreateOrder(ctx, req)
		if err != nil {
			p := s.problemFromError(c, err)
			return service.Response{StatusCode: p.Status, Body: mustJSON(p)}
		}
		return service.Response{StatusCode: http.StatusCreated, Body: mustJSON(toOrderResponse(o))}
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	contentType := "application/json; charset=utf-8"
	if resp.StatusCode >= http.StatusBadRequest {
		contentType = problemContentType
	}
	c.Data(resp.StatusCode, contentType, resp.Body)
}

// @Summary Get order
// @Tags orders
// @Produce json
// @Param id path int true "Order ID"
// @Success 200 {object} orderResponse
// @Failure 400 {object} Problem
// @Failure 404 {object} Problem
// @Router /orders/{id} [get]
func (s *Server) getOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := s.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}

// @Summary List customer orders
// @Tags orders
// @Produce json
// @Param customerEmail query string true "Customer email"
// @Param page query int false "Page, from 0" default(0)
// @Param size query int false "Page size, 1..100" default(10)
// @Success 200 {object} orderPageResponse
// @Failure 400 {object} Problem
// @Failure 404 {object} Problem
// @Router /orders [get]
func (s *Server) listOrders(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil {
		writeProblem(c, badRequest("page must be an integer"))
		return
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", "10"))
	if err != nil {
		writeProblem(c, badRequest("size must be an integer"))
		return
	}
	res, err := s.orders.ListOrders(c.Request.Context(), c.Query("customerEmail"), page, size)
	if err != nil {
		s.fail(c, err)
		return
	}
	out := orderPageResponse{
		Content:       make([]orderResponse, 0, len(res.Content)),
		Page:          res.Page,
		Size:          res.Size,
		TotalElements: res.TotalElements,
		TotalPages:    res.TotalPages,
	}
	for i := range res.Content {
		out.Content = append(out.Content, toOrderResponse(&res.Content[i]))
	}
	c.JSON(http.StatusOK, out)
}

// @Summary Authorize or retry order payment
// @Tags orders
// @Produce json
// @Param id path int true "Order ID"
// @Success 200 {object} orderResponse
// @Failure 400 {object} Problem
// @Failure 404 {object} Problem
// @Failure 409 {object} Problem
// @Failure 502 {object} Problem
// @Router /orders/{id}/authorize-payment [post]
func (s *Server) authorizePayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := s.orders.AuthorizePayment(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}

// @Summary Cancel order
// @Description Возвращает запас и аннулирует авторизацию платежа
// @Tags orders
// @Produce json
// @Param id path int true "Order ID"
// @Success 200 {object} orderResponse
// @Failure 404 {object} Problem
// @Failure 409 {object} Problem
// @Failure 502 {object} Problem
// @Router /orders/{id}/cancel [post]
func (s *Server) cancelOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := s.cancellation.Cancel(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}
