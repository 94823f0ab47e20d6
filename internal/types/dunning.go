package types

// DunningOutcome is the result of one payment attempt tracked by dunning.
type DunningOutcome string

const (
	DunningOutcomePending   DunningOutcome = "pending"
	DunningOutcomeSucceeded DunningOutcome = "succeeded"
	DunningOutcomeFailed    DunningOutcome = "failed"
	DunningOutcomeFinal     DunningOutcome = "final"
)

func (o DunningOutcome) String() string {
	return string(o)
}
