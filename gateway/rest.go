package gateway

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"algo-engine-go/order"
)

// RESTVenue 经 REST 下单/撤单的真实场所客户端。
// HTTPClient 可注入 httptest，默认不发起真实网络调用的测试由此构造。
type RESTVenue struct {
	BaseURL    string
	APIKey     string
	Secret     string
	HTTPClient *http.Client
}

// NewDefaultHTTPClient 带超时的 http.Client。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

type restOrderReq struct {
	ClientOrderID string  `json:"clientOrderId"`
	Market        string  `json:"market"`
	Side          string  `json:"side"`
	Type          string  `json:"type"`
	TimeInForce   string  `json:"timeInForce"`
	Price         float64 `json:"price"`
	Quantity      float64 `json:"quantity"`
}

func (v *RESTVenue) Submit(o order.Order) error {
	if v == nil || v.HTTPClient == nil {
		return fmt.Errorf("http client not set")
	}
	body, err := json.Marshal(restOrderReq{
		ClientOrderID: o.ID,
		Market:        o.Market,
		Side:          string(o.Side),
		Type:          string(o.Type),
		TimeInForce:   string(o.TimeInForce),
		Price:         o.Price,
		Quantity:      o.Quantity,
	})
	if err != nil {
		return err
	}
	return v.do(http.MethodPost, "/v1/orders", body)
}

func (v *RESTVenue) Cancel(orderID string) error {
	if v == nil || v.HTTPClient == nil {
		return fmt.Errorf("http client not set")
	}
	return v.do(http.MethodDelete, "/v1/orders/"+orderID, nil)
}

func (v *RESTVenue) do(method, path string, body []byte) error {
	req, err := http.NewRequest(method, v.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", v.APIKey)
	req.Header.Set("X-API-SIGN", Sign(body, v.Secret))

	resp, err := v.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s status %d", method, path, resp.StatusCode)
	}
	return nil
}

// Sign 计算请求体的 HMAC-SHA256 十六进制签名。
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
