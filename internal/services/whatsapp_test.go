package services

import (
	"errors"
	"strings"
	"testing"
)

func TestWhatsAppLink(t *testing.T) {
	cases := []struct {
		name    string
		phone   string
		message string
		want    string
		wantErr error
	}{
		{
			name:  "international number with formatting",
			phone: "+52 55 1111-1111",
			want:  "https://wa.me/525511111111",
		},
		{
			name:  "national number gets country code",
			phone: "5511111111",
			want:  "https://wa.me/525511111111",
		},
		{
			name:    "message is escaped",
			phone:   "+525511111111",
			message: "Orden OS-0001 lista",
			want:    "https://wa.me/525511111111?text=Orden+OS-0001+lista",
		},
		{
			name:    "too short",
			phone:   "555 1234",
			wantErr: ErrInvalidPhone,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := WhatsAppLink(tc.phone, tc.message)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("WhatsAppLink: %v", err)
			}
			if got != tc.want {
				t.Fatalf("link = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestOrderDocumentMessage(t *testing.T) {
	message := OrderDocumentMessage("OS-0001", "https://storage.test/orders/so_1/resumen.pdf")
	if !strings.Contains(message, "OS-0001") || !strings.Contains(message, "resumen.pdf") {
		t.Fatalf("unexpected message: %q", message)
	}
}
