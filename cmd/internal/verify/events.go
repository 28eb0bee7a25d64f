package verify

import "time"

// ResultKind is the type of an asynchronous session result.
type ResultKind string

const (
	ResultStarted ResultKind = "started"
	ResultSuccess ResultKind = "success"
	ResultFailed  ResultKind = "failed"
	ResultError   ResultKind = "error"
)

// Result is one message emitted to a session.
type Result struct {
	Kind        ResultKind
	RunID       string
	Message     string
	DisplayName string // success only; msgSuccess does not repeat it
	At          time.Time
}

// User-facing result messages.
const (
	msgStarted       = "Verification process initiated. Receiving frames..."
	msgSuccess       = "Verification successful!"
	msgTimeout       = "Face mismatch or timeout."
	msgStopped       = "Verification stopped by user."
	msgNotSet        = "Target image not set. Please upload target image first."
	msgStale         = "Target image has expired or been removed. Please upload again."
	msgExpiredMidRun = "Target image data missing or expired. Please upload again."
	reasonDisconnect = "Client disconnected."
)
