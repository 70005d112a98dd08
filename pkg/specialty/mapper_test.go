package specialty

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/menta2k/medref/pkg/types"
)

func TestInfer(t *testing.T) {
	tests := []struct {
		disease string
		want    types.SpecialtyLabel
	}{
		{"acne", types.Dermatologist},
		{"cardiac", types.Cardiologist},
		{"stroke", types.Neurologist},
		{"fracture", types.Orthopedist},
		{"pneumonia", types.Pulmonologist},
		{"tumor", types.Oncologist},
		{"cataract", types.Ophthalmologist},
		{"  Cardiac ", types.Cardiologist},
		{"ACNE", types.Dermatologist},
		{"", types.GeneralPractitioner},
		{"psoriasis", types.GeneralPractitioner},
		{"cardiac arrest", types.GeneralPractitioner},
	}

	for _, tt := range tests {
		t.Run(tt.disease, func(t *testing.T) {
			require.Equal(t, tt.want, Infer(tt.disease))
			require.Equal(t, tt.want, NewMapper().Infer(tt.disease))
		})
	}
}

func TestInferAlwaysValid(t *testing.T) {
	inputs := append(Conditions(), "", " ", "unknown", "tümor", "\x00", "fracture\n")
	for _, input := range inputs {
		require.True(t, Infer(input).Valid(), "%q", input)
	}
}

func TestConditionsSorted(t *testing.T) {
	require.Equal(t, []string{"acne", "cardiac", "cataract", "fracture", "pneumonia", "stroke", "tumor"}, Conditions())
}

func TestKeywordExtractor(t *testing.T) {
	e := NewKeywordExtractor()

	tests := []struct {
		text string
		want string
	}{
		{"The image shows inflammatory acne on the cheek.", "acne"},
		{"Possible FRACTURE of the distal radius; rule out tumor.", "fracture"},
		{"A tumor is visible, with no sign of fracture.", "tumor"},
		{"Normal appearance, no findings.", ""},
		{"Noncardiac chest pain.", ""},
		{"Brushstroke artefact near the margin.", ""},
		{"Noncardiac pain; old fracture-line visible.", "fracture"},
		{"Acne.", "acne"},
		{"", ""},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, e.Extract(types.AnalysisReport{Text: tt.text}), tt.text)
	}
}

func TestFixedExtractor(t *testing.T) {
	e := FixedExtractor{Label: "acne"}
	require.Equal(t, "acne", e.Extract(types.AnalysisReport{Text: "cardiac anomaly"}))
	require.Equal(t, types.Dermatologist, Infer(e.Extract(types.AnalysisReport{})))
}

func TestExtractorFunc(t *testing.T) {
	var e Extractor = ExtractorFunc(func(r types.AnalysisReport) string { return r.Model })
	require.Equal(t, "phi-3", e.Extract(types.AnalysisReport{Model: "phi-3"}))
}

func TestKeywordExtractorFor(t *testing.T) {
	e, err := NewKeywordExtractorFor([]string{"Cardiac", " cardiac arrest ", "", "cardiac", "arrest"})
	require.NoError(t, err)

	// the longest keyword wins when several start at the same position
	require.Equal(t, "cardiac arrest", e.Extract(types.AnalysisReport{Text: "Sudden CARDIAC ARREST suspected."}))
	require.Equal(t, "cardiac", e.Extract(types.AnalysisReport{Text: "cardiac rhythm, no arrest"}))

	empty, err := NewKeywordExtractorFor(nil)
	require.NoError(t, err)
	require.Empty(t, empty.Extract(types.AnalysisReport{Text: "acne"}))
}
