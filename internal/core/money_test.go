package core

import "testing"

func TestParseDecimalToCents(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{input: "12.34", want: 1234},
		{input: "12,34", want: 1234},
		{input: "85.50", want: 8550},
		{input: "28", want: 2800},
		{input: "0.01", want: 1},
		{input: ".50", want: 50},
		{input: "12.345", want: 1234}, // rounds down
		{input: "12.346", want: 1235}, // rounds up
		{input: "", wantErr: true},
		{input: "0", wantErr: true},
		{input: "0.00", wantErr: true},
		{input: "-5.00", wantErr: true},
		{input: "+5.00", wantErr: true},
		{input: "abc", wantErr: true},
		{input: "1.2.3", wantErr: true},
		{input: "12a.30", wantErr: true},
		{input: "99999999999999999999", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDecimalToCents(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDecimalToCents(%q) expected error, got %d", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDecimalToCents(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseDecimalToCents(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestMoney_String(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{cents: 8550, want: "85.50"},
		{cents: 5, want: "0.05"},
		{cents: 100, want: "1.00"},
		{cents: -1234, want: "-12.34"},
		{cents: 0, want: "0.00"},
	}

	for _, tt := range tests {
		if got := (Money{Cents: tt.cents}).String(); got != tt.want {
			t.Errorf("Money{%d}.String() = %q, want %q", tt.cents, got, tt.want)
		}
	}
}
