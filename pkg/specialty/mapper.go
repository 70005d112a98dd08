package specialty

import (
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/menta2k/medref/pkg/types"
)

// table maps known condition labels to the specialty that treats them.
// Extend by adding entries.
var table = map[string]types.SpecialtyLabel{
	"acne":      types.Dermatologist,
	"cardiac":   types.Cardiologist,
	"stroke":    types.Neurologist,
	"fracture":  types.Orthopedist,
	"pneumonia": types.Pulmonologist,
	"tumor":     types.Oncologist,
	"cataract":  types.Ophthalmologist,
}

// Default is returned for any condition not in the table
const Default = types.GeneralPractitioner

// Infer returns the specialty for a disease label. It never fails.
func Infer(diseaseLabel string) types.SpecialtyLabel {
	if label, ok := table[strings.ToLower(strings.TrimSpace(diseaseLabel))]; ok {
		return label
	}
	return Default
}

// Conditions returns the known condition labels in sorted order
func Conditions() []string {
	keys := lo.Keys(table)
	slices.Sort(keys)
	return keys
}

// Mapper adapts Infer to an injectable dependency
type Mapper struct{}

// NewMapper creates a mapper backed by the static table
func NewMapper() *Mapper {
	return &Mapper{}
}

// Infer returns the specialty for a disease label
func (m *Mapper) Infer(diseaseLabel string) types.SpecialtyLabel {
	return Infer(diseaseLabel)
}
