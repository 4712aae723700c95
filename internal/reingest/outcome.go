package reingest

// Outcome is the terminal state of a granule in one processing run.
type Outcome string

const (
	// OutcomeTriggered means the trigger object existed and was touched.
	OutcomeTriggered Outcome = "triggered"
	// OutcomeMissing means no trigger object exists; the granule must be reprocessed upstream.
	OutcomeMissing Outcome = "missing"
	// OutcomeSkipped means the catalog already lists the granule.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeError means the granule could not be evaluated (bad name or service failure).
	OutcomeError Outcome = "error"
)

// Outcomes lists every outcome in reporting order.
var Outcomes = []Outcome{OutcomeTriggered, OutcomeMissing, OutcomeSkipped, OutcomeError}

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	return string(o)
}
