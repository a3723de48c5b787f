package orderv1

// RejectReason enumerates the client-error taxonomy. Each value is what
// flows out on a Rejected or Cancelled event; none of them carry side
// effects on engine state.
type RejectReason string

const (
	ReasonInvalidSymbol         RejectReason = "InvalidSymbol"
	ReasonTickSizeViolation     RejectReason = "TickSizeViolation"
	ReasonLotSizeViolation      RejectReason = "LotSizeViolation"
	ReasonMinNotionalViolation  RejectReason = "MinNotionalViolation"
	ReasonUnknownOrder          RejectReason = "UnknownOrder"
	ReasonNotOwner              RejectReason = "NotOwner"
	ReasonAlreadyTerminal       RejectReason = "AlreadyTerminal"
	ReasonDeadlineExceeded      RejectReason = "DeadlineExceeded"
	ReasonInsufficientAvailable RejectReason = "InsufficientAvailable"
	ReasonRiskLimitExceeded     RejectReason = "RiskLimitExceeded"
	ReasonRateLimited           RejectReason = "RateLimited"
	ReasonPostOnlyCrossed       RejectReason = "PostOnlyCrossed"
	ReasonFokUnfillable         RejectReason = "FokUnfillable"
	ReasonSelfTradePrevention   RejectReason = "SelfTradePrevention"
	ReasonOcoSibling            RejectReason = "OcoSibling"
	ReasonStaleTrigger          RejectReason = "StaleTrigger"
	ReasonNoLiquidity           RejectReason = "NoLiquidity"
	ReasonSessionExpired        RejectReason = "SessionExpired"
	ReasonSymbolHalted          RejectReason = "SymbolHalted"
)

// RejectError is the typed client error the engine hands back for any
// Rejected/Cancelled outcome. It is never used for fatal conditions.
type RejectError struct {
	Reason RejectReason
}

func (e *RejectError) Error() string {
	return string(e.Reason)
}

// NewRejectError builds a RejectError for the given reason.
func NewRejectError(reason RejectReason) *RejectError {
	return &RejectError{Reason: reason}
}
