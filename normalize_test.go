package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Intel Core i7", "intel core i7"},
		{"The Intel-Core i7, NULL (2020)", "intel core i7 2020"},
		{"Dell XPS 13 for the office", "dell xps 13 office"},
		{"  lots   of\tspace  ", "lots space"},
		{"16GB/512GB SSD", "16gb 512gb ssd"},
		{"“quoted” ’tick’", "“quoted tick"},
		{"null", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"The Intel-Core i7, NULL (2020)",
		"HP Pavilion 15.6\" Laptop - AMD Ryzen 5 - 8GB RAM - 256GB SSD",
		"Apple MacBook Air (13-inch, M1) — Space Gray",
		"IS THIS A Stopword Test? YES it IS",
		"İstanbul Edition",
		"don't won't CAN'T",
	}
	for _, s := range inputs {
		once := Normalize(s)
		assert.Equal(t, once, Normalize(once), "input %q", s)
	}
}
