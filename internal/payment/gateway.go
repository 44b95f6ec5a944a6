package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway внешний платёжный шлюз
type Gateway interface {
	// Authorize возвращает authorizationId или *GatewayError
	Authorize(ctx context.Context, amount decimal.Decimal, reference string) (string, error)
	Void(ctx context.Context, authorizationID string) error
}

// GatewayError ошибка вызова шлюза. Retryable для 5xx, таймаутов и сетевых ошибок
type GatewayError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *GatewayError) Error() string {
	if e.StatusCode == 0 {
		return "payment gateway: " + e.Message
	}
	return fmt.Sprintf("payment gateway: status %d: %s", e.StatusCode, e.Message)
}

type authorizeRequest struct {
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"paymentMethod"`
	Reference     string `json:"reference,omitempty"`
}

type authorizeResponse struct {
	AuthorizationID string `json:"authorizationId"`
	Status          string `json:"status"`
}

type voidRequest struct {
	AuthorizationID string `json:"authorizationId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HTTPGateway клиент шлюза по HTTP/JSON
type HTTPGateway struct {
	client   *http.Client
	authURL  string
	voidURL  string
	currency string
}

// NewHTTPGateway authURL указывает на .../authorize, void идёт на соседний .../void
func NewHTTPGateway(authURL string, timeout time.Duration) *HTTPGateway {
	base := strings.TrimSuffix(strings.TrimSuffix(authURL, "/"), "/authorize")
	return &HTTPGateway{
		client:   &http.Client{Timeout: timeout},
		authURL:  authURL,
		voidURL:  base + "/void",
		currency: "USD",
	}
}

var _ Gateway = (*HTTPGateway)(nil)

func (g *HTTPGateway) Authorize(ctx context.Context, amount decimal.Decimal, reference string) (string, error) {
	req := authorizeRequest{
		Amount:        amount.StringFixed(2),
		Currency:      g.currency,
		PaymentMethod: "CARD",
		Reference:     reference,
	}
	var resp authorizeResponse
	if err := g.post(ctx, g.authURL, req, &resp); err != nil {
		return "", err
	}
	if resp.AuthorizationID == "" {
		return "", &GatewayError{StatusCode: http.StatusOK, Message: "response without authorizationId"}
	}
	return resp.AuthorizationID, nil
}

func (g *HTTPGateway) Void(ctx context.Context, authorizationID string) error {
	return g.post(ctx, g.voidURL, voidRequest{AuthorizationID: authorizationID}, nil)
}

func (g *HTTPGateway) post(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return transportError(err)
	}
	if resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &GatewayError{StatusCode: resp.StatusCode, Message: "invalid response: " + err.Error()}
	}
	return nil
}

func statusError(code int, raw []byte) *GatewayError {
	msg := strings.TrimSpace(string(raw))
	var er errorResponse
	if json.Unmarshal(raw, &er) == nil && er.Error != "" {
		msg = er.Error
	}
	if msg == "" {
		msg = http.StatusText(code)
	}
	return &GatewayError{StatusCode: code, Message: msg, Retryable: code >= 500}
}

// transportError таймауты и обрывы соединения считаются временными
func transportError(err error) *GatewayError {
	var ne net.Error
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		msg = "timeout: " + msg
	}
	return &GatewayError{Message: msg, Retryable: true}
}
