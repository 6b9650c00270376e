package payments

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

const flowPaid = "2"

// Flow verifies form-encoded confirmations signed with the merchant secret.
// The signature parameter "s" is the hex HMAC-SHA256 of every other
// parameter concatenated as name+value in name order.
type Flow struct {
	secret []byte
}

func NewFlow(secret string) *Flow {
	return &Flow{secret: []byte(secret)}
}

func (f *Flow) Name() string { return "flow" }

func (f *Flow) Verify(_ http.Header, body []byte) (Confirmation, error) {
	params, err := url.ParseQuery(string(body))
	if err != nil {
		return Confirmation{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	sig := params.Get("s")
	if sig == "" || !validMAC(f.secret, FlowSigningString(params), sig) {
		return Confirmation{}, ErrInvalidSignature
	}

	token := params.Get("token")
	if token == "" {
		return Confirmation{}, fmt.Errorf("%w: missing token", ErrMalformed)
	}
	accountID, plan, err := ParseReference(params.Get("commerceOrder"))
	if err != nil {
		return Confirmation{}, err
	}
	amount, err := decimal.NewFromString(params.Get("amount"))
	if err != nil {
		return Confirmation{}, fmt.Errorf("%w: amount: %v", ErrMalformed, err)
	}

	return Confirmation{
		Gateway:   f.Name(),
		Token:     token,
		AccountID: accountID,
		Plan:      plan,
		Amount:    amount,
		Paid:      params.Get("status") == flowPaid,
	}, nil
}

// FlowSigningString concatenates the parameters, without "s", in key order.
func FlowSigningString(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k != "s" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params.Get(k))
	}
	return b.String()
}

// SignFlow returns params with "s" set; used to build test callbacks and
// outgoing requests.
func SignFlow(secret string, params url.Values) url.Values {
	out := url.Values{}
	for k, v := range params {
		out[k] = v
	}
	out.Del("s")
	out.Set("s", sign([]byte(secret), FlowSigningString(out)))
	return out
}
