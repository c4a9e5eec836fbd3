// Package audit provides audit logging for pipeline operations.
//
// Credential bootstrap, credential reads, ingestion runs and tomogram
// deletions each produce an Event. A Logger renders events as RFC5424 syslog
// lines and, when a Store is attached, persists them to the pipeline_audit
// table.
//
// # Event Types
//
//   - CredentialFetchEvent: bundle read from the secret store (found or not)
//   - BootstrapEvent: first-run provisioning of the bundle
//   - IngestEvent: one ingestion run
//   - TomogramDeleteEvent: removal of a tomogram and its annotations
//
// # Usage
//
//	logger := audit.NewLogger()
//	logger.Log(audit.BootstrapEvent{Path: "cryoet", Outcome: "provisioned", Success: true})
package audit
