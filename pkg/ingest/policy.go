package ingest

import "fmt"

// Policy decides what happens to annotations already stored for a tomogram.
type Policy string

const (
	// PolicyAppend keeps stored annotations and adds the new ones.
	PolicyAppend Policy = "append"
	// PolicyReplace deletes stored annotations of each ingested tomogram first.
	PolicyReplace Policy = "replace"
)

// ParsePolicy validates a policy name. The empty string means PolicyAppend.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyAppend:
		return PolicyAppend, nil
	case PolicyReplace:
		return PolicyReplace, nil
	}
	return "", fmt.Errorf("unknown ingest policy %q (want append or replace)", s)
}
