package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead_Formats(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantRecords  int
		wantFailures int
		wantErr      bool
	}{
		{name: "empty input", input: "  \n"},
		{name: "single object", input: `{"items": []}`, wantRecords: 1},
		{name: "json lines", input: "{\"items\": []}\n{\"menu\": []}\n\n{\"receipt\": {}}\n", wantRecords: 3},
		{name: "array", input: `[{"items": []}, {"menu": []}]`, wantRecords: 2},
		{name: "array with bad element", input: `[{"items": []}, 5, {"hello": 1}]`, wantRecords: 1, wantFailures: 2},
		{name: "byte order mark", input: "\xEF\xBB\xBF{\"items\": []}", wantRecords: 1},
		{name: "broken json lines", input: "{\"items\": []}\n{\"items\": ", wantErr: true},
		{name: "broken array", input: `[{"items": []}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, failures, err := Read(strings.NewReader(tt.input), "input.json")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, records, tt.wantRecords)
			assert.Len(t, failures, tt.wantFailures)
			for i, rec := range records {
				assert.True(t, strings.HasPrefix(rec.Source, "input.json#"), "record %d source %q", i, rec.Source)
			}
		})
	}
}

func TestReadPath_Directory(t *testing.T) {
	records, failures, err := ReadPath("testdata")
	require.NoError(t, err)

	// batch.json (3 + 1 failure), cord_sample.json (1), mixed.jsonl (4)
	assert.Len(t, records, 8)
	require.Len(t, failures, 1)
	assert.Equal(t, "batch.json#4", failures[0].Source)
	assert.ErrorIs(t, failures[0], ErrInvalidRecord)

	assert.Equal(t, "batch.json#1", records[0].Source)
	assert.Equal(t, "cord_sample.json#1", records[3].Source)
	assert.Equal(t, ShapeGroundTruth, records[3].Shape)
	assert.Equal(t, "mixed.jsonl#1", records[4].Source)
}

func TestReadPath_Missing(t *testing.T) {
	_, _, err := ReadPath(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestReadPath_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not json"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.json"), []byte(`{"items": []}`), 0600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.json"), 0750))

	records, failures, err := ReadPath(dir)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Empty(t, failures)
}
