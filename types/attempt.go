package types

type Action string

const (
	ActionLink   Action = "link"
	ActionUnlink Action = "unlink"
)

func (action Action) IsValidAction() bool {
	switch action {
	case ActionLink, ActionUnlink:
		return true
	default:
		return false
	}
}

type BodyVariant string

const (
	BodyVariantGuid       BodyVariant = "Guid"
	BodyVariantSystemPath BodyVariant = "SystemPath"
	BodyVariantArmID      BodyVariant = "ArmId"
	BodyVariantLowerCamel BodyVariant = "LowerCamelGuid"
	BodyVariantEmpty      BodyVariant = "Empty"
)

// AllBodyVariants lists every request-body encoding, in the order the
// exhaustive fallback sweep tries them.
var AllBodyVariants = []BodyVariant{
	BodyVariantGuid,
	BodyVariantSystemPath,
	BodyVariantArmID,
	BodyVariantLowerCamel,
	BodyVariantEmpty,
}

type FinalStatus string

const (
	FinalStatusNone      FinalStatus = ""
	FinalStatusSucceeded FinalStatus = "Succeeded"
	FinalStatusFailed    FinalStatus = "Failed"
	FinalStatusCanceled  FinalStatus = "Canceled"
	FinalStatusTimedOut  FinalStatus = "TimedOut"
)

// IsTerminal reports whether the remote operation reached a state that ends
// polling. TimedOut is a local verdict, not a remote state, so it is not
// terminal in this sense.
func (status FinalStatus) IsTerminal() bool {
	switch status {
	case FinalStatusSucceeded, FinalStatusFailed, FinalStatusCanceled:
		return true
	default:
		return false
	}
}

// LinkOperationAttempt records one call into the administrative API. Every
// attempt is kept, successful or not, because the attempt history is the only
// diagnostic surface the vendor API reliably offers.
type LinkOperationAttempt struct {
	Action            Action
	APIVersion        string
	BodyVariant       BodyVariant
	Endpoint          string
	RequestID         string
	HTTPStatus        int
	OperationLocation string
	CorrelationID     string
	ErrorCode         string
	ErrorMessage      string
	FinalStatus       FinalStatus
}

// Succeeded reports whether the attempt ended in unambiguous success: either
// an immediate 2xx with no error envelope and nothing to poll, or a polled
// operation that reached Succeeded.
func (attempt *LinkOperationAttempt) Succeeded() bool {
	if attempt.OperationLocation != "" {
		return attempt.FinalStatus == FinalStatusSucceeded
	}
	return attempt.HTTPStatus >= 200 && attempt.HTTPStatus < 300 && attempt.ErrorCode == "" && attempt.ErrorMessage == ""
}

type Outcome string

const (
	OutcomeLinked                Outcome = "Linked"
	OutcomeUnlinked              Outcome = "Unlinked"
	OutcomeAlreadyInDesiredState Outcome = "AlreadyInDesiredState"
	OutcomeFailed                Outcome = "Failed"
	OutcomeUnknown               Outcome = "Unknown"
)

// IsSuccess reports whether callers should map the outcome to a zero exit
// code.
func (outcome Outcome) IsSuccess() bool {
	switch outcome {
	case OutcomeLinked, OutcomeUnlinked, OutcomeAlreadyInDesiredState:
		return true
	default:
		return false
	}
}

// LinkageOutcome is the aggregate result of one orchestration run: the final
// verdict plus the ordered attempt history that produced it.
type LinkageOutcome struct {
	Outcome  Outcome
	Attempts []*LinkOperationAttempt
}
