// Package payments verifies plan-purchase confirmations posted by the
// payment gateways and applies them to accounts exactly once.
package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cajaclaro/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSignature = errors.New("invalid gateway signature")
	ErrMalformed        = errors.New("malformed confirmation")
	ErrUnknownGateway   = errors.New("unknown gateway")
)

// Confirmation is a gateway callback reduced to what the ledger needs.
type Confirmation struct {
	Gateway   string
	Token     string
	AccountID uuid.UUID
	Plan      core.Plan
	Amount    decimal.Decimal
	Paid      bool
}

// Gateway authenticates and decodes a confirmation callback.
type Gateway interface {
	Name() string
	Verify(header http.Header, body []byte) (Confirmation, error)
}

// Reference is the correlation string sent to gateways at checkout and
// echoed back on confirmation.
func Reference(accountID uuid.UUID, plan core.Plan) string {
	return accountID.String() + "|" + string(plan)
}

// ParseReference is the inverse of Reference.
func ParseReference(ref string) (uuid.UUID, core.Plan, error) {
	idPart, planPart, ok := strings.Cut(ref, "|")
	if !ok {
		return uuid.Nil, "", fmt.Errorf("%w: reference %q", ErrMalformed, ref)
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: reference account: %v", ErrMalformed, err)
	}
	plan := core.Plan(planPart)
	if !plan.Valid() {
		return uuid.Nil, "", core.ErrInvalidPlan
	}
	return id, plan, nil
}

func sign(secret []byte, msg string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

func validMAC(secret []byte, msg, got string) bool {
	want := sign(secret, msg)
	return hmac.Equal([]byte(want), []byte(strings.ToLower(got)))
}
