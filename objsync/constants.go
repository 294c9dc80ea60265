// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package objsync

// EntityType names a kind of domain entity (e.g. "Product", "CouponConfig").
// It selects the DaoAdapter used to persist entries of that kind.
type EntityType string

// Command is the change applied by a JobEntry.
type Command string

// Command constants for job entries. UPDATE covers both insert and modify.
const (
	CmdUpdate Command = "UPDATE"
	CmdRemove Command = "REMOVE"
)

// Callback phases, used in CallbackError and in diagnostics
const (
	PhasePreUpdate  = "pre_update"
	PhasePostUpdate = "post_update"
	PhasePreRemove  = "pre_remove"
	PhasePostRemove = "post_remove"
	PhasePreCommit  = "pre_commit"
)

// GUIDSeparator joins the parts of a synthesized composite GUID
// (e.g. categoryGuid|productCode).
const GUIDSeparator = "|"
