package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"
)

// Payment methods accepted by the simulated processor.
const (
	PaymentCard     = "card"
	PaymentPaypal   = "paypal"
	PaymentStandard = "standard"
)

// BillingInfo is the billing snapshot carried onto each purchase row.
type BillingInfo struct {
	Name  string
	Email string
	City  string
	Zip   string
}

// CardInfo is the card-like payload handed to the simulated processor.
// Never persisted.
type CardInfo struct {
	Number string
	Holder string
	Expiry string // MM/YY
	CVV    string
}

// NewBillingInfo validates the billing fields at the boundary so malformed
// input never reaches the transaction.
func NewBillingInfo(name, email, city, zip string) (BillingInfo, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || len(name) > 100 {
		return BillingInfo{}, ErrInvalidInput
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return BillingInfo{}, ErrInvalidInput
	}
	if zip != "" && (len(zip) < 4 || len(zip) > 10) {
		return BillingInfo{}, ErrInvalidInput
	}
	return BillingInfo{Name: name, Email: email, City: strings.TrimSpace(city), Zip: zip}, nil
}

// NewCardInfo validates the card fields for card payments. Other payment
// methods pass an empty CardInfo through untouched.
func NewCardInfo(method, number, holder, expiry, cvv string) (CardInfo, error) {
	if method != PaymentCard {
		return CardInfo{}, nil
	}
	digits := strings.ReplaceAll(number, " ", "")
	if len(digits) < 13 || len(digits) > 19 {
		return CardInfo{}, ErrInvalidInput
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return CardInfo{}, ErrInvalidInput
		}
	}
	if len(cvv) < 3 || len(cvv) > 4 {
		return CardInfo{}, ErrInvalidInput
	}
	if len(expiry) != 5 || expiry[2] != '/' {
		return CardInfo{}, ErrInvalidInput
	}
	return CardInfo{Number: digits, Holder: strings.TrimSpace(holder), Expiry: expiry, CVV: cvv}, nil
}

// ValidPaymentMethod reports whether the method is one the core accepts.
func ValidPaymentMethod(method string) bool {
	switch method {
	case PaymentCard, PaymentPaypal, PaymentStandard:
		return true
	}
	return false
}

const txnAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewTransactionID builds a globally unique, time-sortable transaction id
// of the form TXN_<unix-millis>_<6 random chars>.
func NewTransactionID() string {
	var b strings.Builder
	for i := 0; i < 6; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(txnAlphabet))))
		if err != nil {
			// crypto/rand only fails if the platform source is broken;
			// fall back to a time-derived digit.
			b.WriteByte(txnAlphabet[time.Now().UnixNano()%int64(len(txnAlphabet))])
			continue
		}
		b.WriteByte(txnAlphabet[n.Int64()])
	}
	return fmt.Sprintf("TXN_%d_%s", time.Now().UnixMilli(), b.String())
}
