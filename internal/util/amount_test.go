package util

import (
	"encoding/json"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		name   string
		input  any
		want   float64
		wantOK bool
	}{
		{name: "float", input: 100.5, want: 100.5, wantOK: true},
		{name: "int", input: 42, want: 42, wantOK: true},
		{name: "json number", input: json.Number("12.25"), want: 12.25, wantOK: true},
		{name: "plain string", input: "1200", want: 1200, wantOK: true},
		{name: "thousand comma", input: "1,200.50", want: 1200.5, wantOK: true},
		{name: "indian grouping", input: "1,25,000.50", want: 125000.5, wantOK: true},
		{name: "rupee mark", input: "₹ 1,500", want: 1500, wantOK: true},
		{name: "dot decimal three places", input: "100.500", want: 100.5, wantOK: true},
		{name: "dot decimal small", input: "1.250", want: 1.25, wantOK: true},
		{name: "dot thousands groups", input: "1.250.000", want: 1250000, wantOK: true},
		{name: "decimal comma", input: "12,5", want: 12.5, wantOK: true},
		{name: "parenthesized negative", input: "(250)", want: -250, wantOK: true},
		{name: "garbage", input: "bad", wantOK: false},
		{name: "empty", input: "", wantOK: false},
		{name: "nil", input: nil, wantOK: false},
		{name: "map", input: map[string]any{}, wantOK: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseAmount(tc.input)
			if ok != tc.wantOK {
				t.Fatalf("ok=%v want %v", ok, tc.wantOK)
			}
			if ok && got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}
