package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"otp-agent/internal/model"
)

type loginResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	User        model.User `json:"user"`
}

// Login exchanges credentials for an access token. It does not store the
// token; that is the caller's job.
func (c *Client) Login(ctx context.Context, email, password string) (model.Token, error) {
	body := map[string]string{"email": email, "password": password}

	var res loginResponse
	if err := c.do(ctx, http.MethodPost, authPrefix+"/login", false, body, &res); err != nil {
		return model.Token{}, err
	}
	if res.AccessToken == "" {
		return model.Token{}, &APIError{StatusCode: http.StatusOK, Message: "Login failed"}
	}
	if res.TokenType == "" {
		res.TokenType = "bearer"
	}

	return model.Token{
		AccessToken: res.AccessToken,
		TokenType:   res.TokenType,
		User:        res.User,
	}, nil
}

// Register creates an account. The backend answers like Login.
func (c *Client) Register(ctx context.Context, username, email, password string) (model.Token, error) {
	body := map[string]string{"username": username, "email": email, "password": password}

	var res loginResponse
	if err := c.do(ctx, http.MethodPost, authPrefix+"/signup", false, body, &res); err != nil {
		return model.Token{}, err
	}
	if res.TokenType == "" {
		res.TokenType = "bearer"
	}
	return model.Token{
		AccessToken: res.AccessToken,
		TokenType:   res.TokenType,
		User:        res.User,
	}, nil
}

func (c *Client) Me(ctx context.Context) (model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodGet, authPrefix+"/me", true, nil, &user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

func (c *Client) Balance(ctx context.Context) (model.Balance, error) {
	var res model.Balance
	if err := c.do(ctx, http.MethodGet, walletPrefix+"/balance", true, nil, &res); err != nil {
		return model.Balance{}, err
	}
	return res, nil
}

// AddMoney asks the backend to start a wallet top-up through the payment
// gateway.
func (c *Client) AddMoney(ctx context.Context, amount float64, mobileNumber, paymentMethod string) (model.Deposit, error) {
	body := map[string]interface{}{
		"amount":         amount,
		"mobile_number":  mobileNumber,
		"payment_method": paymentMethod,
	}

	var res model.Deposit
	if err := c.do(ctx, http.MethodPost, walletPrefix+"/add-money", true, body, &res); err != nil {
		return model.Deposit{}, err
	}
	if res.Amount == 0 {
		res.Amount = amount
	}
	return res, nil
}

// Transactions pages through the wallet history. Zero limit means the
// backend default.
func (c *Client) Transactions(ctx context.Context, limit, skip int) (model.TransactionPage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if skip > 0 {
		q.Set("skip", strconv.Itoa(skip))
	}
	path := walletPrefix + "/transactions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page model.TransactionPage
	if err := c.do(ctx, http.MethodGet, path, true, nil, &page); err != nil {
		return model.TransactionPage{}, err
	}
	if page.Transactions == nil {
		page.Transactions = []model.Transaction{}
	}
	return page, nil
}
