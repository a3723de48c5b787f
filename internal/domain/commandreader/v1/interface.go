// Package commandreaderv1 is the inbound command-queue contract, one per
// symbol, modelled on the teacher's order-reader but generalized to the
// full Submit/Cancel/Modify/Tick command surface of spec §6.
package commandreaderv1

import (
	"context"

	commandv1 "github.com/clobcore/matching-engine/internal/domain/command/v1"
)

// Envelope wraps exactly one of Submit/Cancel/Modify/Tick, tagged by
// Kind, plus the transport offset needed to resume after a restart.
type Envelope struct {
	Kind   string // "submit", "cancel", "modify", "tick"
	Offset int64

	Submit *commandv1.Submit
	Cancel *commandv1.Cancel
	Modify *commandv1.Modify
	Tick   *commandv1.Tick
}

// Reader is the per-symbol MPSC command queue contract.
//
//go:generate mockgen -source interface.go -destination=mock/interface_mock.go -package=commandreaderv1_mock
type Reader interface {
	ReadMessage(ctx context.Context) (*Envelope, error)
	SetOffset(offset int64) error
	CommitMessages(ctx context.Context, offset int64) error
	Close() error
}
