package types

import (
	"strconv"
	"time"
)

// UploadedImage is the raw upload handed over by the presentation layer
type UploadedImage struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
	Filename string `json:"filename,omitempty"`
}

// EncodedPayload is a recompressed image in base64 form, ready for transport
type EncodedPayload struct {
	Data     string `json:"-"`
	MIMEType string `json:"mime_type"`
	Length   int    `json:"length"`
	Quality  int    `json:"quality"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// DataURL returns the payload as a data: URL
func (p EncodedPayload) DataURL() string {
	return "data:" + p.MIMEType + ";base64," + p.Data
}

// AnalysisReport is the free-text output of the vision model
type AnalysisReport struct {
	Text   string `json:"text"`
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

// SpecialtyLabel is one of a closed set of practitioner categories
type SpecialtyLabel string

const (
	Dermatologist       SpecialtyLabel = "dermatologist"
	Cardiologist        SpecialtyLabel = "cardiologist"
	Orthopedist         SpecialtyLabel = "orthopedist"
	Pulmonologist       SpecialtyLabel = "pulmonologist"
	Oncologist          SpecialtyLabel = "oncologist"
	Ophthalmologist     SpecialtyLabel = "ophthalmologist"
	Neurologist         SpecialtyLabel = "neurologist"
	GeneralPractitioner SpecialtyLabel = "general practitioner"
)

// Specialties lists every valid label
var Specialties = []SpecialtyLabel{
	Dermatologist,
	Cardiologist,
	Orthopedist,
	Pulmonologist,
	Oncologist,
	Ophthalmologist,
	Neurologist,
	GeneralPractitioner,
}

// Valid reports whether the label belongs to the closed set
func (s SpecialtyLabel) Valid() bool {
	for _, known := range Specialties {
		if s == known {
			return true
		}
	}
	return false
}

func (s SpecialtyLabel) String() string {
	return string(s)
}

// GeoPoint is a resolved WGS84 coordinate
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String renders the point as "lat,lng"
func (p GeoPoint) String() string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lng, 'f', -1, 64)
}

// DoctorListing is a read-only projection of a places result
type DoctorListing struct {
	Name        string   `json:"name"`
	Address     string   `json:"address"`
	Rating      *float64 `json:"rating,omitempty"`
	RatingCount int      `json:"rating_count"`
}

// ResultBundle is the complete output of one pipeline run
type ResultBundle struct {
	ID            string          `json:"id"`
	Report        AnalysisReport  `json:"report"`
	Disease       string          `json:"disease"`
	Specialty     SpecialtyLabel  `json:"specialty"`
	Location      *GeoPoint       `json:"location,omitempty"`
	Doctors       []DoctorListing `json:"doctors"`
	LocationError string          `json:"location_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
