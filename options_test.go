package main

import (
	"reflect"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(o *Options)
		ok     bool
	}{
		{"defaults", func(o *Options) {}, true},
		{"no account", func(o *Options) { o.BankAccount = "" }, false},
		{"no file", func(o *Options) { o.File = "" }, false},
		{"stdin attended", func(o *Options) { o.File = "-" }, false},
		{"stdin unattended", func(o *Options) { o.File = "-"; o.Unattended = true }, true},
		{"three money columns", func(o *Options) { o.MoneyColumns = []int{1, 2, 3} }, false},
		{"zero column", func(o *Options) { o.IgnoreColumns = []int{0} }, false},
		{"beancount", func(o *Options) { o.Format = formatBeancount }, true},
		{"unknown format", func(o *Options) { o.Format = "hledger-web" }, false},
		{"encoding", func(o *Options) { o.Encoding = "iso-8859-1" }, true},
		{"bad encoding", func(o *Options) { o.Encoding = "klingon" }, false},
		{"negative header", func(o *Options) { o.ContainsHeader = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := testOptions()
			tt.modify(&opt)
			err := opt.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.ok && err == nil {
				t.Errorf("Validate() = nil, want an error")
			}
		})
	}
}

func TestParseColumnList(t *testing.T) {
	got, err := parseColumnList(" 1, 2,,5")
	if err != nil {
		t.Fatalf("parseColumnList: %v", err)
	}
	if want := []int{1, 2, 5}; !reflect.DeepEqual(got, want) {
		t.Errorf("parseColumnList = %v, want %v", got, want)
	}
	if got, _ := parseColumnList(""); len(got) != 0 {
		t.Errorf("empty list = %v", got)
	}
	if _, err := parseColumnList("1,b"); err == nil {
		t.Errorf("expected an error for a non-numeric column")
	}
}

func TestSeparatorOption(t *testing.T) {
	for in, want := range map[string]rune{"": 0, "tab": '\t', `\t`: '\t', ";": ';'} {
		opt := DefaultOptions()
		opt.CSVSeparator = in
		if got := opt.separator(); got != want {
			t.Errorf("separator(%q) = %q, want %q", in, got, want)
		}
	}
}
