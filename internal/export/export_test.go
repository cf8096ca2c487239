package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/slidewise/internal/domain"
	"github.com/timmy/slidewise/internal/prompts"
	"github.com/xuri/excelize/v2"
)

func sampleArtifact() *domain.ExplanationArtifact {
	return &domain.ExplanationArtifact{
		LectureName:  "Week <1>",
		PartCount:    3,
		Explanations: []string{"First slide & intro", prompts.PartError(errors.New("timeout"))},
		Positions:    []int{0, 2},
	}
}

func TestParseFormat(t *testing.T) {
	testCases := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"json", FormatJSON, false},
		{" XLSX ", FormatXLSX, false},
		{"pdf", "", true},
	}
	for _, tc := range testCases {
		got, err := ParseFormat(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}

	assert.Equal(t, "application/json", FormatJSON.ContentType())
	assert.Contains(t, FormatXLSX.ContentType(), "spreadsheetml")
}

func TestJSON(t *testing.T) {
	data, err := JSON(sampleArtifact())
	require.NoError(t, err)

	assert.Contains(t, string(data), `"lecture name": "Week <1>"`)
	assert.Contains(t, string(data), "First slide & intro")

	var back domain.ExplanationArtifact
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, *sampleArtifact(), back)
}

func TestXLSX(t *testing.T) {
	data, err := Render(FormatXLSX, sampleArtifact())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Explanations"}, f.GetSheetList())

	rows, err := f.GetRows("Explanations")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Week <1> (3 slides)", rows[0][0])
	assert.Equal(t, []string{"Slide", "Status", "Explanation"}, rows[1])
	assert.Equal(t, []string{"1", "ok", "First slide & intro"}, rows[2])
	assert.Equal(t, "3", rows[3][0])
	assert.Equal(t, "error", rows[3][1])
}

func TestRenderUnknownFormat(t *testing.T) {
	_, err := Render(Format("pdf"), sampleArtifact())
	assert.Error(t, err)
}
