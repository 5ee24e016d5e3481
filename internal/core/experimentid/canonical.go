// Package experimentid implements the experiment ID grammar:
// TYPE_INITIALS_INDEX[-SEQ][_TREATMENT], its canonical normal form, and the
// lineage extraction used for parent resolution.
package experimentid

import "strings"

// Canonical returns the canonical form of an experiment ID: lowercased with
// every hyphen, underscore and space removed. Two IDs denote the same
// experiment iff their canonical forms are equal; every lookup in the system
// compares canonical forms, never raw strings.
func Canonical(id string) string {
	replacer := strings.NewReplacer("-", "", "_", "", " ", "")
	return replacer.Replace(strings.ToLower(id))
}

// Same reports whether two raw IDs denote the same experiment.
func Same(a, b string) bool {
	return Canonical(a) == Canonical(b)
}
