package domain

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ExperimentStatus is the lifecycle status of an experiment
type ExperimentStatus string

const (
	StatusOngoing   ExperimentStatus = "ONGOING"
	StatusCompleted ExperimentStatus = "COMPLETED"
	StatusCancelled ExperimentStatus = "CANCELLED"
)

// ValidStatuses returns list of valid experiment statuses
func ValidStatuses() []ExperimentStatus {
	return []ExperimentStatus{StatusOngoing, StatusCompleted, StatusCancelled}
}

// ParseExperimentStatus maps text to an ExperimentStatus (case-insensitive).
// Returns false when the text matches no status.
func ParseExperimentStatus(text string) (ExperimentStatus, bool) {
	t := strings.ToUpper(strings.TrimSpace(text))
	for _, s := range ValidStatuses() {
		if t == string(s) {
			return s, true
		}
	}
	return "", false
}

// ExperimentType is the experimental setup category encoded in the ID prefix
type ExperimentType string

const (
	TypeSerum     ExperimentType = "Serum"
	TypeAutoclave ExperimentType = "Autoclave"
	TypeHPHT      ExperimentType = "HPHT"
	TypeCoreFlood ExperimentType = "Core Flood"
	TypeOther     ExperimentType = "Other"
)

// experimentTypeAbbreviations maps ID-prefix spellings to types. Lookup is
// case-insensitive; unmapped prefixes are a validation warning, not an error.
var experimentTypeAbbreviations = map[string]ExperimentType{
	"serum":      TypeSerum,
	"autoclave":  TypeAutoclave,
	"ac":         TypeAutoclave,
	"hpht":       TypeHPHT,
	"cf":         TypeCoreFlood,
	"coreflood":  TypeCoreFlood,
	"core flood": TypeCoreFlood,
	"other":      TypeOther,
}

// ParseExperimentType maps an ID-prefix spelling to an ExperimentType.
func ParseExperimentType(text string) (ExperimentType, bool) {
	t, ok := experimentTypeAbbreviations[strings.ToLower(strings.TrimSpace(text))]
	return t, ok
}

// ExperimentTypeSpellings returns the accepted type spellings, for warning messages.
func ExperimentTypeSpellings() []string {
	return []string{"ac", "autoclave", "cf", "core flood", "coreflood", "hpht", "other", "serum"}
}

// AmountUnit is the unit of a chemical additive dose
type AmountUnit string

const (
	UnitGram       AmountUnit = "g"
	UnitMilligram  AmountUnit = "mg"
	UnitMicrogram  AmountUnit = "μg"
	UnitKilogram   AmountUnit = "kg"
	UnitMicroliter AmountUnit = "μL"
	UnitMilliliter AmountUnit = "mL"
	UnitLiter      AmountUnit = "L"
	UnitMicromole  AmountUnit = "μmol"
	UnitMillimole  AmountUnit = "mmol"
	UnitMole       AmountUnit = "mol"
	UnitPPM        AmountUnit = "ppm"
	UnitMillimolar AmountUnit = "mM"
	UnitMolar      AmountUnit = "M"
)

// ValidAmountUnits returns every accepted dose unit
func ValidAmountUnits() []AmountUnit {
	return []AmountUnit{
		UnitGram, UnitMilligram, UnitMicrogram, UnitKilogram,
		UnitMicroliter, UnitMilliliter, UnitLiter,
		UnitMicromole, UnitMillimole, UnitMole,
		UnitPPM, UnitMillimolar, UnitMolar,
	}
}

// ParseAmountUnit matches text against the unit enumeration. Matching is
// exact except for NFKC folding, so the micro sign U+00B5 and the Greek mu
// U+03BC are interchangeable. Spreadsheets produce both.
func ParseAmountUnit(text string) (AmountUnit, bool) {
	t := norm.NFKC.String(strings.TrimSpace(text))
	for _, u := range ValidAmountUnits() {
		if t == norm.NFKC.String(string(u)) {
			return u, true
		}
	}
	return "", false
}
