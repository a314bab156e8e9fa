package updater

import "github.com/NumeralHQ/rate-and-boundary-updates/internal/report"

// State is how far a member got: Discovered → Parsed → SchemaValidated →
// Processed.
type State uint8

const (
	Discovered State = iota
	Parsed
	SchemaValidated
	Processed
)

func (s State) String() string {
	switch s {
	case Parsed:
		return "parsed"
	case SchemaValidated:
		return "schema_validated"
	case Processed:
		return "processed"
	default:
		return "discovered"
	}
}

// Outcome is a member's terminal result.
type Outcome string

const (
	Success Outcome = "success"
	Partial Outcome = "partial"
	Failed  Outcome = "failed"
)

// member tracks one batch member through the state machine.
type member struct {
	state   State
	failed  bool
	summary report.MemberSummary
}

func (m *member) advance(s State) { m.state = s }

// finish fills the terminal state and outcome. A member that stopped before
// Processed, or failed at the file level, is failed; one with row errors is
// partial.
func (m *member) finish(errs, warns int) report.MemberSummary {
	m.summary.State = m.state.String()
	m.summary.Errors = errs
	m.summary.Warnings = warns
	switch {
	case m.failed || m.state != Processed:
		m.summary.Outcome = string(Failed)
	case errs > 0:
		m.summary.Outcome = string(Partial)
	default:
		m.summary.Outcome = string(Success)
	}
	return m.summary
}
