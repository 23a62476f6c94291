// Package wallet reads the user's balance and history and answers whether a
// purchase is affordable.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"otp-agent/internal/model"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	MinDeposit           = 50.0
	MaxDeposit           = 5000.0
	DefaultPaymentMethod = "pay0"
)

var mobilePattern = regexp.MustCompile(`^\d{10}$`)

var ErrInvalidPage = errors.New("invalid page parameters")

type Backend interface {
	Balance(ctx context.Context) (model.Balance, error)
	Transactions(ctx context.Context, limit, skip int) (model.TransactionPage, error)
	Price(ctx context.Context, serviceID, countryID string) (model.Price, error)
	AddMoney(ctx context.Context, amount float64, mobileNumber, paymentMethod string) (model.Deposit, error)
}

// DepositRequest is an add-money form.
type DepositRequest struct {
	Amount        float64 `json:"amount"`
	MobileNumber  string  `json:"mobile_number"`
	PaymentMethod string  `json:"payment_method"`
}

func (r DepositRequest) Validate() error {
	if r.Amount < MinDeposit || r.Amount > MaxDeposit {
		return &model.ValidationError{Field: "amount", Message: "Enter an amount between ₹50 and ₹5,000"}
	}
	if !mobilePattern.MatchString(r.MobileNumber) {
		return &model.ValidationError{Field: "mobile_number", Message: "Enter a valid 10-digit mobile number"}
	}
	return nil
}

// Quote is a pre-purchase affordability check.
type Quote struct {
	Price     model.Price `json:"price"`
	Balance   float64     `json:"balance"`
	CanAfford bool        `json:"can_afford"`
	Shortage  float64     `json:"shortage"`
	Display   string      `json:"display"`
}

// Message is the user-facing reason a quote blocks a purchase, or "".
func (q Quote) Message() string {
	if q.CanAfford {
		return ""
	}
	return fmt.Sprintf("Insufficient balance! Need %s more", FormatPrice(q.Shortage))
}

type Service struct {
	backend Backend
	logger  *zap.Logger
}

func NewService(backend Backend, logger *zap.Logger) *Service {
	return &Service{backend: backend, logger: logger}
}

func (s *Service) Balance(ctx context.Context) (model.Balance, error) {
	return s.backend.Balance(ctx)
}

func (s *Service) Transactions(ctx context.Context, limit, skip int) (model.TransactionPage, error) {
	if limit == 0 {
		limit = DefaultPageSize
	}
	if limit < 0 || limit > MaxPageSize || skip < 0 {
		return model.TransactionPage{}, fmt.Errorf("%w: limit must be 1-%d and skip >= 0", ErrInvalidPage, MaxPageSize)
	}
	return s.backend.Transactions(ctx, limit, skip)
}

// AddMoney starts a wallet top-up. The caller sends the user to
// Deposit.PaymentURL when one is returned.
func (s *Service) AddMoney(ctx context.Context, req DepositRequest) (model.Deposit, error) {
	req.MobileNumber = strings.TrimSpace(req.MobileNumber)
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	if req.PaymentMethod == "" {
		req.PaymentMethod = DefaultPaymentMethod
	}
	if err := req.Validate(); err != nil {
		return model.Deposit{}, err
	}

	dep, err := s.backend.AddMoney(ctx, req.Amount, req.MobileNumber, req.PaymentMethod)
	if err != nil {
		return model.Deposit{}, err
	}
	s.logger.Info("add money requested",
		zap.Float64("amount", req.Amount),
		zap.String("order_id", dep.OrderID),
		zap.Bool("redirect", dep.PaymentURL != ""),
	)
	return dep, nil
}

// Quote fetches the live price and the balance together.
func (s *Service) Quote(ctx context.Context, serviceID, countryID string) (Quote, error) {
	var (
		price   model.Price
		balance model.Balance
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.backend.Price(gctx, serviceID, countryID)
		if err != nil {
			return fmt.Errorf("price: %w", err)
		}
		price = p
		return nil
	})
	g.Go(func() error {
		b, err := s.backend.Balance(gctx)
		if err != nil {
			return fmt.Errorf("balance: %w", err)
		}
		balance = b
		return nil
	})
	if err := g.Wait(); err != nil {
		return Quote{}, err
	}

	q := Affordability(balance.Amount, price.Amount)
	q.Price = price
	if price.DisplayPrice != "" {
		q.Display = price.DisplayPrice
	}

	s.logger.Debug("purchase quote",
		zap.String("service_id", serviceID),
		zap.String("country_id", countryID),
		zap.Float64("price", price.Amount),
		zap.Float64("balance", balance.Amount),
		zap.Bool("can_afford", q.CanAfford),
	)
	return q, nil
}

// Affordability builds a quote from known amounts.
func Affordability(balance, price float64) Quote {
	return Quote{
		Price:     model.Price{Amount: price, DisplayPrice: FormatPrice(price)},
		Balance:   balance,
		CanAfford: CanAfford(balance, price),
		Shortage:  Shortage(balance, price),
		Display:   FormatPrice(price),
	}
}
