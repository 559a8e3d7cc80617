// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package internal_routing

import (
	"context"
	"time"
)

// MatchType decides how a rule's caller pattern is compared. Closed set;
// both the router and the gateway handler switch over it exhaustively.
type MatchType string

const (
	MatchAll         MatchType = "all"
	MatchPrefix      MatchType = "prefix"
	MatchExact       MatchType = "exact"
	MatchContactOnly MatchType = "contact_only"
)

// Action is what happens to an incoming call. Closed set.
type Action string

const (
	ActionAnswer  Action = "answer"
	ActionReject  Action = "reject"
	ActionForward Action = "forward"
)

// Reject reasons carried on decisions.
const (
	RejectNoMatchingRule = "no_matching_rule"
	RejectByRule         = "rejected_by_rule"
)

// Rule is one org-scoped routing rule, read-only to the bridge. Lower
// Priority values are evaluated first.
type Rule struct {
	ID            uint64
	OrgID         uint64
	Name          string
	CallerPattern *string
	MatchType     MatchType
	Action        Action
	ForwardTo     *string

	// Answer overrides.
	SystemInstruction *string
	VoiceName         *string

	// Optional schedule predicates. TimeStart/TimeEnd are "15:04" local
	// times; a start after the end wraps past midnight.
	TimeStart  *string
	TimeEnd    *string
	DaysOfWeek []time.Weekday

	IsActive bool
	Priority int
}

// Device is one registered gateway device.
type Device struct {
	GatewayID         string
	OrgID             uint64
	Name              string
	IsActive          bool
	AutoAnswer        bool
	SystemInstruction string
	VoiceName         string
}

// Contact is an org-scoped known caller.
type Contact struct {
	ID          uint64
	OrgID       uint64
	Name        string
	PhoneNumber string
}

// CallMeta is the incoming-call metadata the router decides on.
type CallMeta struct {
	CallID       string
	GatewayID    string
	CallerNumber string
	CalleeNumber string
	Carrier      string
	SimSlot      int
}

// Decision is the single, total outcome of routing one incoming call.
type Decision struct {
	Action    Action
	CallID    string
	OrgID     *uint64
	ContactID *uint64
	RuleID    *uint64

	ForwardTo         string
	SystemInstruction string
	VoiceName         string
	RejectReason      string
}

// Directory is the read side of the persistence collaborator the router
// needs: devices, contacts and active rules.
type Directory interface {
	// GetDevice returns nil (not an error) for an unknown gateway id.
	GetDevice(ctx context.Context, gatewayID string) (*Device, error)
	// GetContactByNumber returns nil for an unknown caller.
	GetContactByNumber(ctx context.Context, orgID uint64, number string) (*Contact, error)
	// ListActiveRules returns the org's active rules in any order; the
	// router sorts by priority itself.
	ListActiveRules(ctx context.Context, orgID uint64) ([]Rule, error)
}
