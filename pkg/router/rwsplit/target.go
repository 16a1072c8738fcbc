// Package rwsplit implements component D: read/write splitting, including
// transaction-aware routing, causal-read replay, transaction replay on
// failure, and hint-based overrides, per spec section 4.D.
package rwsplit

import "github.com/lishubing/sqlgate/pkg/classify"

// TargetKind is the routing target kind vocabulary of spec section 4.D.
type TargetKind int

const (
	TargetNone TargetKind = iota
	TargetMaster
	TargetSlave
	TargetNamedServer
	TargetAll
	TargetRlagMax
	TargetLastUsed
)

// TrxState is the per-client-session transaction state machine of spec
// section 3.
type TrxState int

const (
	TrxInactive TrxState = iota
	TrxActiveRW
	TrxActiveRO
	TrxEnding
)

// Hint overrides the decision table's result outright, per spec section
// 4.D's first rule.
type Hint struct {
	Present bool
	Target  TargetKind
	Server  string // used when Target == TargetNamedServer
}

// DecisionInput is everything the decision table of spec section 4.D reads.
type DecisionInput struct {
	Hint         Hint
	Trx          TrxState
	Mask         classify.TypeMask
	LockedToNode bool // session is locked to the node that opened the active-ro trx
}

// Decide implements spec section 4.D's decision table verbatim:
//
//   - a hint overrides everything;
//   - S.trx == active-rw -> MASTER;
//   - S.trx == active-ro and T subset of READ -> stay on current node;
//   - T contains WRITE-class flags -> MASTER;
//   - T contains only SESSION_WRITE-class flags -> ALL;
//   - otherwise -> SLAVE.
func Decide(in DecisionInput) TargetKind {
	if in.Hint.Present {
		return in.Hint.Target
	}
	if in.Trx == TrxActiveRW {
		return TargetMaster
	}
	if in.Trx == TrxActiveRO && in.Mask&^classify.Read == 0 {
		return TargetLastUsed
	}
	if isWriteClass(in.Mask) {
		return TargetMaster
	}
	if isSessionWriteOnly(in.Mask) {
		return TargetAll
	}
	return TargetSlave
}

func isWriteClass(m classify.TypeMask) bool {
	writeFlags := classify.Write | classify.SysVarWrite | classify.GSysVarWrite |
		classify.CreateTmpTable | classify.PrepareNamedStmt
	if m.Has(writeFlags) {
		return true
	}
	if m.Has(classify.BeginTrx) && m.Has(classify.Write) {
		return true
	}
	return false
}

func isSessionWriteOnly(m classify.TypeMask) bool {
	if !m.Has(classify.SessionWrite) {
		return false
	}
	return !isWriteClass(m)
}
