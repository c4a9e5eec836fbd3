package audit

import (
	"fmt"
	"strconv"
)

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// CredentialFetchEvent records a read of the credential bundle
type CredentialFetchEvent struct {
	Path         string
	Found        bool
	Success      bool
	ErrorMessage string
}

func (e CredentialFetchEvent) MessageID() string {
	return "credential-fetch"
}

func (e CredentialFetchEvent) Message() string {
	switch {
	case e.Success && e.Found:
		return fmt.Sprintf("credentials retrieved from %s", e.Path)
	case e.Success:
		return fmt.Sprintf("no credentials stored at %s", e.Path)
	}
	msg := fmt.Sprintf("failed to read credentials from %s", e.Path)
	if e.ErrorMessage != "" {
		msg += ": " + e.ErrorMessage
	}
	return msg
}

func (e CredentialFetchEvent) Severity() Severity {
	if e.Success {
		return SeverityInfo
	}
	return SeverityError
}

func (e CredentialFetchEvent) Facility() int {
	return FacilityAuthPriv
}

func (e CredentialFetchEvent) StructuredData() map[string]map[string]string {
	return map[string]map[string]string{
		SDIDSubject: {"path": e.Path},
		SDIDAction: {
			"operation": "fetch",
			"found":     strconv.FormatBool(e.Found),
			"result":    result(e.Success),
		},
	}
}

// BootstrapEvent records the first-run provisioning of the credential bundle
type BootstrapEvent struct {
	Path         string
	Outcome      string // "provisioned", "already-provisioned"
	Success      bool
	ErrorMessage string
}

func (e BootstrapEvent) MessageID() string {
	return "bootstrap"
}

func (e BootstrapEvent) Message() string {
	if e.Success {
		if e.Outcome == "provisioned" {
			return fmt.Sprintf("credentials provisioned at %s", e.Path)
		}
		return fmt.Sprintf("credentials at %s already provisioned", e.Path)
	}
	msg := fmt.Sprintf("failed to provision credentials at %s", e.Path)
	if e.ErrorMessage != "" {
		msg += ": " + e.ErrorMessage
	}
	return msg
}

func (e BootstrapEvent) Severity() Severity {
	if e.Success {
		return SeverityNotice
	}
	return SeverityError
}

func (e BootstrapEvent) Facility() int {
	return FacilityAuthPriv
}

func (e BootstrapEvent) StructuredData() map[string]map[string]string {
	sd := map[string]map[string]string{
		SDIDSubject: {"path": e.Path},
		SDIDAction: {
			"operation": "provision",
			"result":    result(e.Success),
		},
	}
	if e.Outcome != "" {
		sd[SDIDAction]["outcome"] = e.Outcome
	}
	return sd
}

// IngestEvent records one ingestion run
type IngestEvent struct {
	RunID        string
	Source       string
	Policy       string
	Tomograms    int
	Created      int
	Annotations  int64
	Success      bool
	ErrorMessage string
}

func (e IngestEvent) MessageID() string {
	return "ingest"
}

func (e IngestEvent) Message() string {
	if e.Success {
		return fmt.Sprintf("ingested %d annotations into %d tomograms (%d new) from %s",
			e.Annotations, e.Tomograms, e.Created, e.Source)
	}
	msg := fmt.Sprintf("ingestion from %s failed after %d tomograms", e.Source, e.Tomograms)
	if e.ErrorMessage != "" {
		msg += ": " + e.ErrorMessage
	}
	return msg
}

func (e IngestEvent) Severity() Severity {
	if e.Success {
		return SeverityInfo
	}
	return SeverityError
}

func (e IngestEvent) Facility() int {
	return FacilityLocal0
}

func (e IngestEvent) StructuredData() map[string]map[string]string {
	return map[string]map[string]string{
		SDIDRun: {
			"id":     e.RunID,
			"policy": e.Policy,
		},
		SDIDSubject: {"source": e.Source},
		SDIDAction: {
			"operation":   "ingest",
			"tomograms":   strconv.Itoa(e.Tomograms),
			"created":     strconv.Itoa(e.Created),
			"annotations": strconv.FormatInt(e.Annotations, 10),
			"result":      result(e.Success),
		},
	}
}

// TomogramDeleteEvent records removal of a tomogram and its annotations
type TomogramDeleteEvent struct {
	TomoName     string
	Annotations  int64
	Success      bool
	ErrorMessage string
}

func (e TomogramDeleteEvent) MessageID() string {
	return "tomogram-delete"
}

func (e TomogramDeleteEvent) Message() string {
	if e.Success {
		return fmt.Sprintf("deleted tomogram %s and %d annotations", e.TomoName, e.Annotations)
	}
	msg := fmt.Sprintf("failed to delete tomogram %s", e.TomoName)
	if e.ErrorMessage != "" {
		msg += ": " + e.ErrorMessage
	}
	return msg
}

func (e TomogramDeleteEvent) Severity() Severity {
	if e.Success {
		return SeverityNotice
	}
	return SeverityWarning
}

func (e TomogramDeleteEvent) Facility() int {
	return FacilityLocal0
}

func (e TomogramDeleteEvent) StructuredData() map[string]map[string]string {
	return map[string]map[string]string{
		SDIDSubject: {"tomogram": e.TomoName},
		SDIDAction: {
			"operation":   "delete",
			"annotations": strconv.FormatInt(e.Annotations, 10),
			"result":      result(e.Success),
		},
	}
}
