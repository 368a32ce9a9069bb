package services

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

// mexicoCountryCode is prepended to ten-digit national numbers.
const mexicoCountryCode = "52"

// ErrInvalidPhone indicates the phone number cannot carry a WhatsApp link.
var ErrInvalidPhone = errors.New("whatsapp: invalid phone number")

// WhatsAppLink builds a wa.me deep link for the given phone number with the
// message prefilled. The number is reduced to digits; a bare ten-digit national
// number gets the Mexican country code.
func WhatsAppLink(phone, message string) (string, error) {
	digits := phoneDigits(phone)
	if len(digits) < 10 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}
	if len(digits) == 10 {
		digits = mexicoCountryCode + digits
	}
	link := "https://wa.me/" + digits
	if message = strings.TrimSpace(message); message != "" {
		link += "?text=" + url.QueryEscape(message)
	}
	return link, nil
}

// OrderDocumentMessage is the prefilled text pointing a customer at their
// service-order document.
func OrderDocumentMessage(orderNumber, documentURL string) string {
	return fmt.Sprintf("Hola, le compartimos el documento de su orden de servicio %s: %s", orderNumber, documentURL)
}

func phoneDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
