package payments

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

const mercadoPagoApproved = "approved"

// MercadoPago verifies JSON notifications. The x-signature header carries
// "ts=<unix>,v1=<hex>" where v1 is the HMAC-SHA256 of the manifest
// "id:<data.id>;request-id:<x-request-id>;ts:<ts>;".
type MercadoPago struct {
	secret []byte
}

func NewMercadoPago(secret string) *MercadoPago {
	return &MercadoPago{secret: []byte(secret)}
}

func (m *MercadoPago) Name() string { return "mercadopago" }

type mercadoPagoNotification struct {
	Type string `json:"type"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
	ExternalReference string          `json:"external_reference"`
	Status            string          `json:"status"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
}

func (m *MercadoPago) Verify(header http.Header, body []byte) (Confirmation, error) {
	var n mercadoPagoNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return Confirmation{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if n.Data.ID == "" {
		return Confirmation{}, fmt.Errorf("%w: missing data.id", ErrMalformed)
	}

	ts, v1 := parseSignatureHeader(header.Get("x-signature"))
	if ts == "" || v1 == "" {
		return Confirmation{}, ErrInvalidSignature
	}
	manifest := MercadoPagoManifest(n.Data.ID, header.Get("x-request-id"), ts)
	if !validMAC(m.secret, manifest, v1) {
		return Confirmation{}, ErrInvalidSignature
	}

	accountID, plan, err := ParseReference(n.ExternalReference)
	if err != nil {
		return Confirmation{}, err
	}
	return Confirmation{
		Gateway:   m.Name(),
		Token:     n.Data.ID,
		AccountID: accountID,
		Plan:      plan,
		Amount:    n.TransactionAmount,
		Paid:      n.Status == mercadoPagoApproved,
	}, nil
}

func MercadoPagoManifest(dataID, requestID, ts string) string {
	var b strings.Builder
	b.WriteString("id:" + strings.ToLower(dataID) + ";")
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	b.WriteString("ts:" + ts + ";")
	return b.String()
}

// SignMercadoPago builds the x-signature header value for a manifest.
func SignMercadoPago(secret, dataID, requestID, ts string) string {
	return "ts=" + ts + ",v1=" + sign([]byte(secret), MercadoPagoManifest(dataID, requestID, ts))
}

func parseSignatureHeader(v string) (ts, v1 string) {
	for _, part := range strings.Split(v, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "ts":
			ts = val
		case "v1":
			v1 = val
		}
	}
	return ts, v1
}
