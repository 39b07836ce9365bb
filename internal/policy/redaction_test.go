package policy

import (
	"reflect"
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantMarkers []string
		wantClasses []string
	}{
		{
			name:        "email",
			input:       "write to sam@example.com please",
			wantMarkers: []string{"[REDACTED_EMAIL]"},
			wantClasses: []string{ClassEmail},
		},
		{
			name:        "card number not reported as phone",
			input:       "my card is 4242 4242 4242 4242",
			wantMarkers: []string{"[REDACTED_CARD]"},
			wantClasses: []string{ClassCard},
		},
		{
			name:        "iban",
			input:       "send it to IT60X0542811101000000123456",
			wantMarkers: []string{"[REDACTED_IBAN]"},
			wantClasses: []string{ClassIBAN},
		},
		{
			name:        "phone",
			input:       "call me at +1 (555) 123-9876 tonight",
			wantMarkers: []string{"[REDACTED_PHONE]"},
			wantClasses: []string{ClassPhone},
		},
		{
			name:        "ip address",
			input:       "my router lives at 192.168.1.10",
			wantMarkers: []string{"[REDACTED_IP]"},
			wantClasses: []string{ClassIPv4},
		},
		{
			name:        "mixed classes in rule order",
			input:       "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242.",
			wantMarkers: []string{"[REDACTED_EMAIL]", "[REDACTED_CARD]", "[REDACTED_PHONE]"},
			wantClasses: []string{ClassEmail, ClassCard, ClassPhone},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, classes := RedactPII(tt.input)
			for _, marker := range tt.wantMarkers {
				if !strings.Contains(out, marker) {
					t.Fatalf("output missing marker %q: %q", marker, out)
				}
			}
			if !reflect.DeepEqual(classes, tt.wantClasses) {
				t.Fatalf("classes = %v, want %v", classes, tt.wantClasses)
			}
		})
	}
}

func TestRedactPIILeavesCleanTextAlone(t *testing.T) {
	input := "I had a lovely walk along the river today."
	out, classes := RedactPII(input)
	if len(classes) != 0 || out != input {
		t.Fatalf("RedactPII(%q) = %q classes=%v, want untouched", input, out, classes)
	}
}
