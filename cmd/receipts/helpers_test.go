package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/receipt-ledger/internal/common"
	"github.com/Veraticus/receipt-ledger/internal/storage"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{input: "42", want: 42},
		{input: "0", wantErr: true},
		{input: "-3", wantErr: true},
		{input: "abc", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseID(tt.input)
			if tt.wantErr {
				var userErr *common.UserError
				assert.ErrorAs(t, err, &userErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNotFound(t *testing.T) {
	err := notFound(common.ErrNotFound, 7)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Contains(t, err.Error(), "receipt #7 not found")

	other := assert.AnError
	assert.Equal(t, other, notFound(other, 7))
}

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		want string
		size int64
	}{
		{size: 0, want: "0 B"},
		{size: 1023, want: "1023 B"},
		{size: 1024, want: "1.0 KB"},
		{size: 1536, want: "1.5 KB"},
		{size: 5 * 1024 * 1024, want: "5.0 MB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatFileSize(tt.size))
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{ago: 10 * time.Second, want: "just now"},
		{ago: time.Minute, want: "1 minute ago"},
		{ago: 5 * time.Minute, want: "5 minutes ago"},
		{ago: 3 * time.Hour, want: "3 hours ago"},
		{ago: 30 * time.Hour, want: "yesterday"},
		{ago: 4 * 24 * time.Hour, want: "4 days ago"},
		{ago: 30 * 24 * time.Hour, want: "2024-05-11 12:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatRelativeTime(now.Add(-tt.ago), now), tt.ago.String())
	}
}

func TestWriteCheckpointTable(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	var empty bytes.Buffer
	require.NoError(t, writeCheckpointTable(&empty, nil, now))
	assert.Contains(t, empty.String(), "No checkpoints found.")

	var out bytes.Buffer
	require.NoError(t, writeCheckpointTable(&out, []storage.CheckpointInfo{
		{ID: "pre-march", CreatedAt: now.Add(-2 * time.Hour), FileSize: 2048, Receipts: 12, Vendors: 4},
		{ID: "auto-ingest", CreatedAt: now.Add(-30 * time.Second), FileSize: 100, IsAuto: true},
	}, now))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "RECEIPTS")
	assert.Contains(t, lines[1], "pre-march")
	assert.Contains(t, lines[1], "2 hours ago")
	assert.Contains(t, lines[1], "2.0 KB")
	assert.Contains(t, lines[1], "manual")
	assert.Contains(t, lines[2], "auto")
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: "y\n", want: true},
		{input: "YES\n", want: true},
		{input: "n\n", want: false},
		{input: "\n", want: false},
		{input: "", want: false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got, err := confirm(context.Background(), strings.NewReader(tt.input), &out, "Continue?")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
		assert.Contains(t, out.String(), "Continue? (y/N)")
	}
}
