package main

import (
	"testing"

	"github.com/mhma/stockbarcode/internal/session"
)

func TestParseSubject(t *testing.T) {
	tests := []struct {
		args    []string
		want    session.Subject
		wantErr bool
	}{
		{args: []string{"picking", "12"}, want: session.Subject{ResModel: "stock.picking", ResID: 12}},
		{args: []string{"stock.picking", "3"}, want: session.Subject{ResModel: "stock.picking", ResID: 3}},
		{args: []string{"inventory"}, want: session.Subject{ResModel: "stock.quant"}},
		{args: []string{"picking"}, wantErr: true},
		{args: []string{"picking", "x"}, wantErr: true},
		{args: []string{"picking", "-1"}, wantErr: true},
		{args: []string{"inventory", "4"}, wantErr: true},
		{args: []string{"partner", "1"}, wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseSubject(tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseSubject(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseSubject(%v) = %+v, want %+v", tt.args, got, tt.want)
		}
	}
}

func TestSplitScanArgs(t *testing.T) {
	subject, codes, err := splitScanArgs([]string{"picking", "12", "A", "B"})
	if err != nil {
		t.Fatalf("splitScanArgs() error = %v", err)
	}
	if subject.ResID != 12 || len(codes) != 2 || codes[0] != "A" {
		t.Errorf("splitScanArgs() = %+v, %v", subject, codes)
	}

	subject, codes, err = splitScanArgs([]string{"inventory", "WH-SHELF-1", "B"})
	if err != nil {
		t.Fatalf("splitScanArgs() error = %v", err)
	}
	if subject.ResModel != "stock.quant" || len(codes) != 2 {
		t.Errorf("splitScanArgs() = %+v, %v", subject, codes)
	}

	if _, _, err := splitScanArgs([]string{"picking", "12"}); err == nil {
		t.Error("splitScanArgs() without barcodes should fail")
	}
}

func TestFormatQty(t *testing.T) {
	for in, want := range map[float64]string{2: "2", 2.5: "2.5", 0.125: "0.125", 0: "0"} {
		if got := formatQty(in); got != want {
			t.Errorf("formatQty(%v) = %q, want %q", in, got, want)
		}
	}
}
