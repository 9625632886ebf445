package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		db      string
		action  string
		wantErr string
	}{
		{"postgres", "up", ""},
		{"postgres", "down", ""},
		{"postgres", "version", ""},
		{"clickhouse", "up", ""},
		{"clickhouse", "down", "clickhouse supports up"},
		{"mysql", "up", "unknown database"},
	}

	for _, tt := range tests {
		t.Run(tt.db+"/"+tt.action, func(t *testing.T) {
			run, err := lookup(tt.db, tt.action)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, run)
		})
	}
}

func TestRequireDir(t *testing.T) {
	assert.NoError(t, requireDir(t.TempDir()))
	assert.Error(t, requireDir("does/not/exist"))
}
