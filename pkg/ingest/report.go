package ingest

import (
	"fmt"
	"time"
)

// Report summarizes one ingestion run. After a failure it describes the
// tomograms committed before the failing one.
type Report struct {
	RunID  string
	Policy Policy
	// Tomograms is the number of tomograms committed
	Tomograms int
	// Created counts tomogram rows inserted by this run
	Created int
	// Existing counts tomograms that were already stored
	Existing    int
	Annotations int64
	// Replaced counts annotations deleted under PolicyReplace
	Replaced int64
	// FailedTomogram names the tomogram whose transaction was rolled back
	FailedTomogram string
	Duration       time.Duration
}

func (r Report) String() string {
	s := fmt.Sprintf("run %s: %d tomograms (%d new, %d existing), %d annotations inserted",
		r.RunID, r.Tomograms, r.Created, r.Existing, r.Annotations)
	if r.Replaced > 0 {
		s += fmt.Sprintf(", %d replaced", r.Replaced)
	}
	if r.FailedTomogram != "" {
		s += fmt.Sprintf(", failed at %s", r.FailedTomogram)
	}
	return s
}
