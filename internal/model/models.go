package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// -------------------- IDENTIFIERS --------------------

// ID is a backend identifier. The backend emits ids as JSON numbers in some
// responses and strings in others; both decode to the same value.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Int returns the numeric form of the id, if it has one.
func (id ID) Int() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return n, err == nil
}

// -------------------- CATALOG --------------------

type Country struct {
	ID    ID     `json:"id"`
	Title string `json:"title"`
	Code  string `json:"code"`
}

type Service struct {
	ID           ID     `json:"id"`
	Name         string `json:"name"`
	DisplayPrice string `json:"display_price"`
}

// Price is the live price of a service in one country.
type Price struct {
	Amount       float64 `json:"amount"`
	DisplayPrice string  `json:"display_price"`
	Availability int     `json:"availability"`
	Live         bool    `json:"live"`
}

// -------------------- WALLET --------------------

type User struct {
	ID       ID     `json:"id,omitempty"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type Balance struct {
	Amount float64 `json:"balance"`
	User   User    `json:"user"`
}

type Transaction struct {
	ID              ID      `json:"_id"`
	Type            string  `json:"type"`
	Amount          float64 `json:"amount"`
	PreviousBalance float64 `json:"previous_balance"`
	NewBalance      float64 `json:"new_balance"`
	Reason          string  `json:"reason"`
	Status          string  `json:"status"`
	// CreatedAt is kept as sent; the backend emits naive ISO timestamps.
	CreatedAt string `json:"created_at"`
}

// Deposit is the backend's answer to an add-money request. PaymentURL is set
// when the user still has to pay at the gateway; Balance is set when the
// backend credited the wallet directly.
type Deposit struct {
	OrderID      string   `json:"order_id,omitempty"`
	PaymentURL   string   `json:"payment_url,omitempty"`
	Amount       float64  `json:"amount"`
	MobileNumber string   `json:"mobile_number,omitempty"`
	Balance      *float64 `json:"balance,omitempty"`
	Message      string   `json:"message,omitempty"`
}

type TransactionPage struct {
	Transactions   []Transaction `json:"transactions"`
	Total          int           `json:"total"`
	CurrentBalance float64       `json:"current_balance"`
}

// -------------------- AUTH --------------------

type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	User        User      `json:"user"`
	IssuedAt    time.Time `json:"issued_at"`
}

// -------------------- PURCHASE --------------------

// Purchase is the backend's answer to a successful buy.
type Purchase struct {
	RequestID   ID     `json:"request_id"`
	PhoneNumber string `json:"number"`
}

// SMSCheck is one status query result. Received is false while the backend
// is still waiting for the message.
type SMSCheck struct {
	Received bool
	Code     string
	Text     string
	Sender   string
}
