package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"otp-agent/internal/model"
)

type countriesResponse struct {
	Countries []model.Country `json:"countries"`
}

func (c *Client) Countries(ctx context.Context) ([]model.Country, error) {
	var res countriesResponse
	if err := c.do(ctx, http.MethodGet, c.apiPrefix+"/countries", true, nil, &res); err != nil {
		return nil, err
	}
	if res.Countries == nil {
		res.Countries = []model.Country{}
	}
	return res.Countries, nil
}

type servicesResponse struct {
	Services []model.Service `json:"services"`
}

func (c *Client) Services(ctx context.Context, countryID string) ([]model.Service, error) {
	var res servicesResponse
	path := c.apiPrefix + "/services/" + url.PathEscape(countryID)
	if err := c.do(ctx, http.MethodGet, path, true, nil, &res); err != nil {
		return nil, err
	}
	if res.Services == nil {
		res.Services = []model.Service{}
	}
	return res.Services, nil
}

type priceResponse struct {
	Pricing struct {
		UserPrice     float64 `json:"user_price"`
		OriginalPrice float64 `json:"original_price"`
		DisplayPrice  string  `json:"display_price"`
		Availability  int     `json:"availability"`
		LiveAPI       bool    `json:"live_api"`
		Error         string  `json:"error"`
	} `json:"pricing"`
}

// Price asks for the live price of a service in a country.
func (c *Client) Price(ctx context.Context, serviceID, countryID string) (model.Price, error) {
	var res priceResponse
	path := fmt.Sprintf("%s/price/%s/%s", c.apiPrefix, url.PathEscape(serviceID), url.PathEscape(countryID))
	if err := c.do(ctx, http.MethodGet, path, true, nil, &res); err != nil {
		return model.Price{}, err
	}
	if res.Pricing.Error != "" {
		return model.Price{}, &APIError{StatusCode: http.StatusOK, Message: res.Pricing.Error}
	}
	return model.Price{
		Amount:       res.Pricing.UserPrice,
		DisplayPrice: res.Pricing.DisplayPrice,
		Availability: res.Pricing.Availability,
		Live:         res.Pricing.LiveAPI,
	}, nil
}

// numericOrRaw sends numeric ids as JSON numbers, which is what the buy
// endpoint expects, and anything else unchanged.
func numericOrRaw(id string) interface{} {
	if n, ok := model.ID(id).Int(); ok {
		return n
	}
	return id
}

type buyResponse struct {
	Number    string   `json:"number"`
	RequestID model.ID `json:"request_id"`
	Error     string   `json:"error"`
}

// Buy purchases a number for serviceID in countryID.
func (c *Client) Buy(ctx context.Context, serviceID, countryID string) (model.Purchase, error) {
	body := map[string]interface{}{
		"application_id": numericOrRaw(serviceID),
		"country_id":     numericOrRaw(countryID),
	}

	var res buyResponse
	if err := c.do(ctx, http.MethodPost, c.apiPrefix+"/buy", true, body, &res); err != nil {
		return model.Purchase{}, err
	}
	if res.Number == "" || res.RequestID == "" {
		msg := res.Error
		if msg == "" {
			msg = "Failed to purchase number"
		}
		return model.Purchase{}, &APIError{StatusCode: http.StatusOK, Message: msg}
	}

	return model.Purchase{RequestID: res.RequestID, PhoneNumber: res.Number}, nil
}

type smsResponse struct {
	SMSCode model.ID `json:"sms_code"`
	SMSText string   `json:"sms_text"`
	Sender  string   `json:"sender"`
	Status  string   `json:"status"`
	Error   string   `json:"error"`
}

// GetSMS checks whether the message for requestID has arrived.
func (c *Client) GetSMS(ctx context.Context, requestID string) (model.SMSCheck, error) {
	body := map[string]string{"request_id": requestID}

	var res smsResponse
	if err := c.do(ctx, http.MethodPost, c.apiPrefix+"/get-sms", true, body, &res); err != nil {
		return model.SMSCheck{}, err
	}
	if res.Status == "error" || res.Error != "" {
		msg := res.Error
		if msg == "" {
			msg = "sms check failed"
		}
		return model.SMSCheck{}, &APIError{StatusCode: http.StatusOK, Message: msg}
	}
	if res.SMSCode == "" {
		return model.SMSCheck{}, nil
	}

	code := res.SMSCode.String()
	check := model.SMSCheck{Received: true, Code: code, Text: res.SMSText, Sender: res.Sender}
	if check.Text == "" {
		check.Text = "Your verification code: " + code
	}
	if check.Sender == "" {
		check.Sender = "Service"
	}
	return check, nil
}

// Cancel releases the number behind requestID.
func (c *Client) Cancel(ctx context.Context, requestID string) error {
	path := c.apiPrefix + "/cancel/" + url.PathEscape(requestID)
	return c.do(ctx, http.MethodPost, path, true, nil, nil)
}
