package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want args
	}{
		{"none", nil, args{}},
		{"test mode", []string{"test"}, args{testMode: true}},
		{"single cycle without notifications", []string{"once", "--no-notify"}, args{once: true, noNotify: true}},
		{"notification check", []string{"notify-test"}, args{notifyTest: true}},
		{"unknown ignored", []string{"--verbose", "test"}, args{testMode: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseArgs(tt.in))
		})
	}
}
