package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordercore/internal/domain"
)

func TestPaymentAuthorizer_RetryThenSuccess(t *testing.T) {
	gw := &fakeGateway{script: []error{errGatewayDown}}
	a := NewPaymentAuthorizer(gw, 2, time.Millisecond, nil, nil)
	p := domain.NewPayment(decimal.NewFromInt(90))

	require.NoError(t, a.Authorize(context.Background(), &p, "ref"))
	assert.Equal(t, domain.PaymentStatusAuthorized, p.Status)
	assert.Equal(t, 2, p.RetryAttempts)
	assert.Equal(t, "AUTH_2", p.AuthorizationID)
	assert.Empty(t, p.LastError)
}

func TestPaymentAuthorizer_TwoServerFailures(t *testing.T) {
	gw := &fakeGateway{script: []error{errGatewayDown, errGatewayDown}}
	a := NewPaymentAuthorizer(gw, 2, 0, nil, nil)
	p := domain.NewPayment(decimal.NewFromInt(90))

	err := a.Authorize(context.Background(), &p, "ref")
	var perr *PaymentError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Retryable)
	assert.Equal(t, domain.PaymentStatusFailed, p.Status)
	assert.Equal(t, 2, p.RetryAttempts)
	assert.Equal(t, 2, gw.authorizeCalls())
	assert.Equal(t, "Payment service temporarily unavailable", p.LastError)
}

func TestPaymentAuthorizer_DeclineIsNotRetried(t *testing.T) {
	gw := &fakeGateway{script: []error{errDeclined}}
	a := NewPaymentAuthorizer(gw, 2, 0, nil, nil)
	p := domain.NewPayment(decimal.NewFromInt(1500))

	err := a.Authorize(context.Background(), &p, "ref")
	var perr *PaymentError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Retryable)
	assert.Equal(t, 402, perr.StatusCode)
	assert.Equal(t, 1, gw.authorizeCalls())
	assert.Equal(t, 1, p.RetryAttempts)
	assert.Contains(t, p.LastError, "Insufficient funds")
}

func TestPaymentAuthorizer_RetryFlagFollowsLastAttempt(t *testing.T) {
	gw := &fakeGateway{script: []error{errGatewayDown, errDeclined}}
	a := NewPaymentAuthorizer(gw, 2, 0, nil, nil)
	p := domain.NewPayment(decimal.NewFromInt(10))

	err := a.Authorize(context.Background(), &p, "ref")
	var perr *PaymentError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Retryable)
	assert.Equal(t, 2, p.RetryAttempts)
}

func TestPaymentAuthorizer_NetworkErrorIsRetryable(t *testing.T) {
	gw := &fakeGateway{script: []error{errors.New("connection reset"), errors.New("connection reset")}}
	a := NewPaymentAuthorizer(gw, 2, 0, nil, nil)
	p := domain.NewPayment(decimal.NewFromInt(10))

	err := a.Authorize(context.Background(), &p, "ref")
	var perr *PaymentError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Retryable)
	assert.Equal(t, 2, gw.authorizeCalls())
}

func TestPaymentAuthorizer_CancelledDuringBackoff(t *testing.T) {
	gw := &fakeGateway{script: []error{errGatewayDown}}
	a := NewPaymentAuthorizer(gw, 2, time.Hour, nil, nil)
	p := domain.NewPayment(decimal.NewFromInt(10))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := a.Authorize(ctx, &p, "ref")
	var perr *PaymentError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 1, gw.authorizeCalls())
	assert.Equal(t, domain.PaymentStatusFailed, p.Status)
}
