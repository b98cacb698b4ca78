package services

import (
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
)

// CallbackSourceData describes the payment instrument in a callback.
type CallbackSourceData struct {
	Pan     string `json:"pan"`
	SubType string `json:"sub_type"`
	Type    string `json:"type"`
}

// CallbackOrder is the order reference inside a transaction callback.
type CallbackOrder struct {
	ID              int64  `json:"id"`
	MerchantOrderID string `json:"merchant_order_id"`
}

// CallbackTransaction is the `obj` payload of a TRANSACTION callback.
type CallbackTransaction struct {
	ID                   int64              `json:"id"`
	AmountCents          int64              `json:"amount_cents"`
	CreatedAt            string             `json:"created_at"`
	Currency             string             `json:"currency"`
	ErrorOccured         bool               `json:"error_occured"`
	HasParentTransaction bool               `json:"has_parent_transaction"`
	IntegrationID        int64              `json:"integration_id"`
	Is3DSecure           bool               `json:"is_3d_secure"`
	IsAuth               bool               `json:"is_auth"`
	IsCapture            bool               `json:"is_capture"`
	IsRefunded           bool               `json:"is_refunded"`
	IsStandalonePayment  bool               `json:"is_standalone_payment"`
	IsVoided             bool               `json:"is_voided"`
	Order                CallbackOrder      `json:"order"`
	Owner                int64              `json:"owner"`
	Pending              bool               `json:"pending"`
	SourceData           CallbackSourceData `json:"source_data"`
	Success              bool               `json:"success"`
}

// hmacString builds the concatenation Paymob signs. The field list and its
// lexicographic order are part of the wire contract: any reordering or
// omission breaks verification against the real gateway, so the list is
// spelled out by hand instead of being derived from struct iteration.
func (t *CallbackTransaction) hmacString() string {
	fields := []string{
		strconv.FormatInt(t.AmountCents, 10),
		t.CreatedAt,
		t.Currency,
		strconv.FormatBool(t.ErrorOccured),
		strconv.FormatBool(t.HasParentTransaction),
		strconv.FormatInt(t.ID, 10),
		strconv.FormatInt(t.IntegrationID, 10),
		strconv.FormatBool(t.Is3DSecure),
		strconv.FormatBool(t.IsAuth),
		strconv.FormatBool(t.IsCapture),
		strconv.FormatBool(t.IsRefunded),
		strconv.FormatBool(t.IsStandalonePayment),
		strconv.FormatBool(t.IsVoided),
		strconv.FormatInt(t.Order.ID, 10),
		strconv.FormatInt(t.Owner, 10),
		strconv.FormatBool(t.Pending),
		t.SourceData.Pan,
		t.SourceData.SubType,
		t.SourceData.Type,
		strconv.FormatBool(t.Success),
	}

	var out string
	for _, f := range fields {
		out += f
	}
	return out
}

// ComputeCallbackHMAC returns the hex HMAC-SHA512 of the transaction's
// ordered field concatenation under the shared secret.
func ComputeCallbackHMAC(t *CallbackTransaction, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(t.hmacString()))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCallbackHMAC reports whether receivedHMAC authenticates the
// callback payload. It never errors; a mismatch means the event must be
// dropped, not retried.
func VerifyCallbackHMAC(t *CallbackTransaction, receivedHMAC, secret string) bool {
	if receivedHMAC == "" || secret == "" {
		return false
	}
	expected := ComputeCallbackHMAC(t, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(receivedHMAC)) == 1
}
