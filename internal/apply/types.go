// Package apply implements the solution application engine: the
// Downloader → Remover → Scheduler pipeline that executes a resolved
// ActionGraph against local package state, plus the Applier entry point
// that orchestrates preview, confirmation, and reporting around it.
package apply

import (
	"github.com/sourcepm/sourcepm/internal/actiongraph"
	"github.com/sourcepm/sourcepm/internal/pkgset"
)

// Outcome is a node's terminal state. Cancellation is a value here, not
// an error: a cancelled node never invoked the executor, so conflating it
// with a thrown failure would misreport what happened.
type Outcome int

const (
	// OutcomeSuccess means the node's action completed without error.
	OutcomeSuccess Outcome = iota
	// OutcomeFailed means the executor returned an error for this node.
	OutcomeFailed
	// OutcomeCancelled means a predecessor failed or was cancelled, so
	// this node's action was never attempted.
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// NodeResult is one node's terminal outcome plus, on failure, the error
// that caused it.
type NodeResult struct {
	Node    *actiongraph.Node
	Outcome Outcome
	Err     error
}

// RequestKind discriminates the caller's original request shape, used by
// RootInstallNames derivation.
type RequestKind int

const (
	RequestInit RequestKind = iota
	RequestInstall
	RequestImport
	RequestSwitch
	RequestUpgrade
	RequestReinstall
	RequestDepends
	RequestRemove
)

// FinalStatus discriminates the five terminal states an apply can reach.
type FinalStatus int

const (
	StatusOK FinalStatus = iota
	StatusNothingToDo
	StatusAborted
	StatusNoSolution
	StatusError
)

// AbortReason discriminates why an Aborted FinalResult happened: a plain
// decline and an environment-warning decline map to different exit codes
// even though both abort the same way internally.
type AbortReason int

const (
	AbortNone AbortReason = iota
	AbortDeclined
	AbortEnvWarningDeclined
)

// FinalResult is the Applier's terminal report.
type FinalResult struct {
	Status      FinalStatus
	AbortReason AbortReason

	// Interrupted marks a StatusError caused by a user-initiated
	// interrupt rather than action failures: the pipeline was aborted
	// mid-flight, finalizers ran, and the caller must re-surface the
	// interruption (non-zero exit) instead of reading the partition.
	Interrupted bool

	// Actions holds every node's action, populated for StatusOK.
	Actions []actiongraph.Action

	// Successful, Failed, Remaining partition the plan's packages for
	// StatusError: together they cover every node, pairwise disjoint.
	Successful []pkgset.Package
	Failed     []pkgset.Package
	Remaining  []pkgset.Package

	// Errors maps a failed package's String() to the error that failed it,
	// used for report rendering and audit records.
	Errors map[string]error
}
