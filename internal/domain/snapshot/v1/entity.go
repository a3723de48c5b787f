package snapshotv1

// Snapshot captures the full restart state of one symbol engine: the
// resting book, the trigger registry, and the monotonic counters that
// must resume exactly where they left off.
type Snapshot struct {
	Symbol      string       `json:"symbol"`
	SequenceNum int64        `json:"sequenceNum"`
	NextOrderID int64        `json:"nextOrderID"`
	LastTradePx string       `json:"lastTradePx"`
	Book        BookSnapshot `json:"book"`
	Triggers    []TriggerRow `json:"triggers"`
}

// BookSnapshot is a flattened list of every resting order, sufficient to
// rebuild both price-level maps and the id->handle lookup.
type BookSnapshot struct {
	Orders []BookOrder `json:"orders"`
}

// BookOrder is one resting order, amounts carried as decimal strings so
// the snapshot never loses precision or depends on a specific wire type.
type BookOrder struct {
	OrderID      int64  `json:"orderID"`
	UserID       string `json:"userID"`
	Side         string `json:"side"`
	Type         string `json:"type"`
	Price        string `json:"price"`
	RemainingQty string `json:"remainingQty"`
	Qty          string `json:"qty"`
	DisplayQty   string `json:"displayQty,omitempty"`
	AcceptedTs   int64  `json:"acceptedTs"`
	TimeInForce  string `json:"timeInForce"`
}

// TriggerRow is one pending conditional order held by the trigger
// registry at snapshot time.
type TriggerRow struct {
	OrderID      int64  `json:"orderID"`
	UserID       string `json:"userID"`
	Side         string `json:"side"`
	Type         string `json:"type"`
	Direction    string `json:"direction"`
	TriggerPrice string `json:"triggerPrice"`
	LimitPrice   string `json:"limitPrice,omitempty"`
	Qty          string `json:"qty"`
	TrailAmount  string `json:"trailAmount,omitempty"`
	TrailPercent string `json:"trailPercent,omitempty"`
	WaterMark    string `json:"waterMark,omitempty"`
	OcoSiblingID int64  `json:"ocoSiblingID,omitempty"`
	DisplayQty   string `json:"displayQty,omitempty"`
	AcceptedTs   int64  `json:"acceptedTs"`
}
