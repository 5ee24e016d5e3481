package experimentid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mhensley/labtrack/internal/core/domain"
)

// ParsedExperimentID is the structured result of parsing an experiment ID.
// Parsing never fails outright: malformed IDs come back with IsValid false
// and human-readable warnings, and the caller decides whether to proceed.
type ParsedExperimentID struct {
	ExperimentType     domain.ExperimentType `json:"experiment_type,omitempty"`
	ResearcherInitials string                `json:"researcher_initials,omitempty"`
	Index              string                `json:"index,omitempty"`
	SequentialNumber   *int                  `json:"sequential_number,omitempty"`
	TreatmentVariant   *string               `json:"treatment_variant,omitempty"`
	BaseID             string                `json:"base_id"`
	OriginalID         string                `json:"original_id"`
	IsValid            bool                  `json:"is_valid"`
	Warnings           []string              `json:"warnings,omitempty"`
}

// IsDerivation reports whether the ID carries a sequential or treatment
// suffix, i.e. names a rerun or variant of a base experiment.
func (p *ParsedExperimentID) IsDerivation() bool {
	return p.SequentialNumber != nil || p.TreatmentVariant != nil
}

// ExtractLineage splits an experiment ID into its base ID, sequential rerun
// number and treatment variant. Hyphen-NUMBER marks a sequential rerun,
// a trailing underscore segment marks a treatment variant.
//
// The treatment segment is detected first. When the ID has more than three
// underscore segments, the last one is a treatment candidate; a candidate
// containing a hyphen is kept whole even when it ends in digits, so
// "Serum_MH_101_Desorption-2" yields treatment "Desorption-2" rather than a
// sequential rerun of a treatment.
func ExtractLineage(experimentID string) (baseID string, sequential *int, treatment *string) {
	id := strings.TrimSpace(experimentID)
	if id == "" {
		return "", nil, nil
	}

	baseID = id

	parts := strings.Split(id, "_")
	if len(parts) > 3 {
		candidate := parts[len(parts)-1]
		if strings.Contains(candidate, "-") || !isAllDigits(candidate) {
			treatment = &candidate
			baseID = strings.Join(parts[:len(parts)-1], "_")
		}
	}

	if i := strings.LastIndex(baseID, "-"); i >= 0 {
		if suffix := baseID[i+1:]; suffix != "" && isAllDigits(suffix) {
			n, _ := strconv.Atoi(suffix)
			sequential = &n
			baseID = baseID[:i]
		}
	}

	return baseID, sequential, treatment
}

// Parse validates an experiment ID against the TYPE_INITIALS_INDEX grammar
// after stripping lineage suffixes. Unknown type spellings and malformed
// segments produce warnings, never an error.
func Parse(experimentID string) ParsedExperimentID {
	id := strings.TrimSpace(experimentID)
	if id == "" {
		return ParsedExperimentID{
			OriginalID: id,
			Warnings:   []string{"Experiment ID is empty or invalid"},
		}
	}

	baseID, sequential, treatment := ExtractLineage(id)

	result := ParsedExperimentID{
		SequentialNumber: sequential,
		TreatmentVariant: treatment,
		BaseID:           baseID,
		OriginalID:       id,
	}

	parts := strings.Split(baseID, "_")
	if len(parts) < 3 {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"Expected format: ExperimentType_ResearcherInitials_Index (e.g., Serum_MH_101). Got: %s", id))
		return result
	}

	typeText := parts[0]
	result.ResearcherInitials = parts[1]
	result.Index = parts[2]

	if expType, ok := domain.ParseExperimentType(typeText); ok {
		result.ExperimentType = expType
	} else {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"Unknown experiment type '%s'. Expected one of: %s",
			typeText, strings.Join(domain.ExperimentTypeSpellings(), ", ")))
	}

	if result.ResearcherInitials == "" || !isAlphanumeric(result.ResearcherInitials) {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"Researcher initials '%s' should be alphanumeric (e.g., MH, JD)", result.ResearcherInitials))
	}

	if result.Index == "" {
		result.Warnings = append(result.Warnings, "Index portion is missing (e.g., 101, 001)")
	}

	result.IsValid = len(result.Warnings) == 0
	return result
}

// ExpectedParentID computes the ID of the parent a derivation implies:
// sequential-only and treatment-only derivations descend from the bare base,
// a combined derivation descends from the sequential variant. Base IDs
// return false.
func ExpectedParentID(experimentID string) (string, bool) {
	baseID, sequential, treatment := ExtractLineage(experimentID)
	switch {
	case sequential != nil && treatment != nil:
		return fmt.Sprintf("%s-%d", baseID, *sequential), true
	case sequential != nil || treatment != nil:
		return baseID, true
	default:
		return "", false
	}
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isAlphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}
