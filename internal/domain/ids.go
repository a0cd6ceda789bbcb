// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package domain holds the entity types of spec §3's data model: the shapes
// persisted through the repository façade and consumed by Config Services,
// the Service Supervisor, and the Flow/DNS Steering Core.
package domain

import (
	"github.com/google/uuid"
)

// ConfigID is the opaque identifier for row-keyed entities.
type ConfigID = uuid.UUID

// NewConfigID allocates a fresh ConfigID.
func NewConfigID() ConfigID { return uuid.New() }

// ParseConfigID parses a string ConfigID.
func ParseConfigID(s string) (ConfigID, error) { return uuid.Parse(s) }

// FlowID is the on-wire flow tag. 0 is the reserved "default" flow for
// packets from unclassified sources.
type FlowID = uint32

// DefaultFlowID is the implicit flow for unmatched sources (spec §3).
const DefaultFlowID FlowID = 0

// IfaceName is a short, printable interface name (<=16 bytes, matching the
// kernel's IFNAMSIZ convention).
type IfaceName = string
