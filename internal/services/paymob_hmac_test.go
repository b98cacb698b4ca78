package services

import (
	"strings"
	"testing"
)

func sampleCallbackTransaction() CallbackTransaction {
	return CallbackTransaction{
		ID:                   999,
		AmountCents:          16700,
		CreatedAt:            "2024-05-01T10:15:30.123456",
		Currency:             "EGP",
		ErrorOccured:         false,
		HasParentTransaction: false,
		IntegrationID:        12345,
		Is3DSecure:           true,
		IsAuth:               false,
		IsCapture:            false,
		IsRefunded:           false,
		IsStandalonePayment:  true,
		IsVoided:             false,
		Order:                CallbackOrder{ID: 555, MerchantOrderID: "B1-a1b2c3d4"},
		Owner:                42,
		Pending:              false,
		SourceData:           CallbackSourceData{Pan: "2346", SubType: "MasterCard", Type: "card"},
		Success:              true,
	}
}

func TestComputeCallbackHMACDeterministic(t *testing.T) {
	txn := sampleCallbackTransaction()

	first := ComputeCallbackHMAC(&txn, "secret")
	second := ComputeCallbackHMAC(&txn, "secret")

	if first != second {
		t.Fatalf("expected deterministic HMAC, got %q and %q", first, second)
	}

	if len(first) != 128 {
		t.Fatalf("expected 128 hex chars for SHA-512, got %d", len(first))
	}

	if !VerifyCallbackHMAC(&txn, first, "secret") {
		t.Fatal("expected signature to verify against its own payload")
	}
}

func TestVerifyCallbackHMACRejectsTamperedFields(t *testing.T) {
	base := sampleCallbackTransaction()
	signature := ComputeCallbackHMAC(&base, "secret")

	mutations := map[string]func(*CallbackTransaction){
		"amount_cents":           func(t *CallbackTransaction) { t.AmountCents++ },
		"created_at":             func(t *CallbackTransaction) { t.CreatedAt = "2024-05-01T10:15:31" },
		"currency":               func(t *CallbackTransaction) { t.Currency = "USD" },
		"error_occured":          func(t *CallbackTransaction) { t.ErrorOccured = true },
		"has_parent_transaction": func(t *CallbackTransaction) { t.HasParentTransaction = true },
		"id":                     func(t *CallbackTransaction) { t.ID++ },
		"integration_id":         func(t *CallbackTransaction) { t.IntegrationID++ },
		"is_3d_secure":           func(t *CallbackTransaction) { t.Is3DSecure = false },
		"is_auth":                func(t *CallbackTransaction) { t.IsAuth = true },
		"is_capture":             func(t *CallbackTransaction) { t.IsCapture = true },
		"is_refunded":            func(t *CallbackTransaction) { t.IsRefunded = true },
		"is_standalone_payment":  func(t *CallbackTransaction) { t.IsStandalonePayment = false },
		"is_voided":              func(t *CallbackTransaction) { t.IsVoided = true },
		"order_id":               func(t *CallbackTransaction) { t.Order.ID++ },
		"owner":                  func(t *CallbackTransaction) { t.Owner++ },
		"pending":                func(t *CallbackTransaction) { t.Pending = true },
		"source_pan":             func(t *CallbackTransaction) { t.SourceData.Pan = "0000" },
		"source_sub_type":        func(t *CallbackTransaction) { t.SourceData.SubType = "Visa" },
		"source_type":            func(t *CallbackTransaction) { t.SourceData.Type = "wallet" },
		"success":                func(t *CallbackTransaction) { t.Success = false },
	}

	for name, mutate := range mutations {
		mutated := base
		mutate(&mutated)
		if VerifyCallbackHMAC(&mutated, signature, "secret") {
			t.Errorf("flipping %s should invalidate the signature", name)
		}
	}
}

func TestVerifyCallbackHMACRejectsWrongSecretAndEmptyInput(t *testing.T) {
	txn := sampleCallbackTransaction()
	signature := ComputeCallbackHMAC(&txn, "secret")

	if VerifyCallbackHMAC(&txn, signature, "other-secret") {
		t.Error("signature must not verify under a different secret")
	}
	if VerifyCallbackHMAC(&txn, "", "secret") {
		t.Error("empty signature must not verify")
	}
	if VerifyCallbackHMAC(&txn, signature, "") {
		t.Error("empty secret must not verify")
	}
	if VerifyCallbackHMAC(&txn, strings.ToUpper(signature), "secret") {
		t.Error("comparison is case-sensitive over lowercase hex")
	}
}
