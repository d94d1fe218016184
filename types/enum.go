/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

// Common illegal/default values used by enums.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum represents a basic enum contract used by domain types.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// TxState is the lifecycle state of a unit-of-work.
//
//	NotStarted -> Active -> Committed
//	                     -> RolledBack
//
// Committed and RolledBack are terminal.
type TxState int

const (
	TxNotStarted TxState = iota
	TxActive
	TxCommitted
	TxRolledBack
)

var _ BaseEnum = TxState(0)

var txStateNames = map[TxState][2]string{
	TxNotStarted: {"NOT_STARTED", "transaction has not begun"},
	TxActive:     {"ACTIVE", "transaction is in progress"},
	TxCommitted:  {"COMMITTED", "transaction committed"},
	TxRolledBack: {"ROLLED_BACK", "transaction rolled back"},
}

func (s TxState) IsValid() bool {
	_, ok := txStateNames[s]
	return ok
}

func (s TxState) Number() int {
	if !s.IsValid() {
		return IllegalValue
	}
	return int(s)
}

func (s TxState) String() string { return s.Name() }

func (s TxState) Name() string {
	if v, ok := txStateNames[s]; ok {
		return v[0]
	}
	return IllegalName
}

func (s TxState) Desc() string {
	if v, ok := txStateNames[s]; ok {
		return v[1]
	}
	return IllegalDesc
}

// IsTerminal reports whether no further transition is possible.
func (s TxState) IsTerminal() bool {
	return s == TxCommitted || s == TxRolledBack
}

// CanTransition reports whether moving from s to next is a legal step.
func (s TxState) CanTransition(next TxState) bool {
	switch s {
	case TxNotStarted:
		return next == TxActive
	case TxActive:
		return next == TxCommitted || next == TxRolledBack
	default:
		return false
	}
}
