package reportrender

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"permfuzz/internal/anomaly"
	"permfuzz/internal/seed"
)

func sampleSeeds() []*seed.Seed {
	s1 := seed.NewInitialSeed([]byte{1}, "Foo", "pkg", 10)
	s1.Interestingness = 0.8
	g1 := anomaly.NewGroup(anomaly.Time)
	g1.Slower.Add("jdk-a")
	g1.Faster.Add("jdk-b")
	s1.Anomalies = append(s1.Anomalies, g1)

	s2 := seed.NewInitialSeed([]byte{2}, "Bar", "pkg2", 10)
	s2.Interestingness = 0.3
	g2 := anomaly.NewGroup(anomaly.Memory)
	g2.Slower.Add("jdk-a")
	g2.Faster.Add("jdk-b")
	s2.Anomalies = append(s2.Anomalies, g2)

	return []*seed.Seed{s1, s2}
}

func TestRenderJSONRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderJSON(&buf, sampleSeeds()))
	var got []jsonSeed
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got), "output is not valid JSON")
	require.Len(t, got, 2)
	assert.Equal(t, "Foo", got[0].Class)
	assert.Equal(t, "TIME", got[0].AnomalyKinds[0])
}

func TestRenderJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderJSON(&buf, nil))
	assert.JSONEq(t, "[]", buf.String())
}

func TestRenderTextGroupsByKind(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderText(&buf, sampleSeeds()))
	out := buf.String()
	assert.Contains(t, out, "MEMORY")
	assert.Contains(t, out, "TIME")
	assert.Contains(t, out, "total confirmed anomalies: 2")
}

func TestRenderXLSXProducesReadableWorkbook(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderXLSX(&buf, sampleSeeds()))
	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err, "output is not a readable workbook")
	defer f.Close()
	sheets := f.GetSheetList()
	require.Len(t, sheets, 2, "one sheet per anomaly kind")
	header, err := f.GetCellValue(sheets[0], "A1")
	require.NoError(t, err)
	assert.Equal(t, "Description", header)
}

func TestCellName(t *testing.T) {
	assert.Equal(t, "A1", cellName(1, 1))
	assert.Equal(t, "B3", cellName(2, 3))
}
