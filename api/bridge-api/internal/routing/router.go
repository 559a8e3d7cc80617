// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package internal_routing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/voxbridgeai/pkg/commons"
)

// EvaluationError wraps a directory failure hit while evaluating a call. It
// never escapes Route: the caller always gets a fail-open ANSWER instead.
type EvaluationError struct {
	CallID string
	Err    error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate call %s: %v", e.CallID, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// Router turns incoming-call metadata into a routing decision. Route is
// total: persistence failures, bad rule data and panics all degrade to an
// ANSWER decision so a broken rule table can never drop calls.
type Router struct {
	logger commons.Logger
	dir    Directory

	// now is swappable for schedule tests.
	now func() time.Time
}

func NewRouter(logger commons.Logger, dir Directory) *Router {
	return &Router{logger: logger, dir: dir, now: time.Now}
}

// Route decides what to do with one incoming call.
func (r *Router) Route(ctx context.Context, meta CallMeta) (decision Decision) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Errorf("routing panic, failing open: call_id=%s err=%v", meta.CallID, rec)
			decision = Decision{Action: ActionAnswer, CallID: meta.CallID}
		}
	}()

	decision, err := r.route(ctx, meta)
	if err != nil {
		r.logger.Errorw("routing failed, failing open", "call_id", meta.CallID, "gateway_id", meta.GatewayID, "error", err)
		return Decision{Action: ActionAnswer, CallID: meta.CallID}
	}
	return decision
}

func (r *Router) route(ctx context.Context, meta CallMeta) (Decision, error) {
	device, err := r.dir.GetDevice(ctx, meta.GatewayID)
	if err != nil {
		return Decision{}, &EvaluationError{CallID: meta.CallID, Err: fmt.Errorf("resolve device %s: %w", meta.GatewayID, err)}
	}
	if device == nil || !device.IsActive {
		// Unregistered hardware still gets its calls answered; no org means
		// no rules to consult.
		r.logger.Warnf("unknown or inactive gateway, answering by default: gateway_id=%s", meta.GatewayID)
		return Decision{Action: ActionAnswer, CallID: meta.CallID}, nil
	}

	decision := Decision{
		CallID:            meta.CallID,
		OrgID:             &device.OrgID,
		SystemInstruction: device.SystemInstruction,
		VoiceName:         device.VoiceName,
	}

	contact, err := r.dir.GetContactByNumber(ctx, device.OrgID, meta.CallerNumber)
	if err != nil {
		return Decision{}, &EvaluationError{CallID: meta.CallID, Err: fmt.Errorf("resolve contact %s: %w", meta.CallerNumber, err)}
	}
	if contact != nil {
		decision.ContactID = &contact.ID
	}

	rules, err := r.dir.ListActiveRules(ctx, device.OrgID)
	if err != nil {
		return Decision{}, &EvaluationError{CallID: meta.CallID, Err: fmt.Errorf("list rules for org %d: %w", device.OrgID, err)}
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })

	now := r.now()
	for i := range rules {
		rule := &rules[i]
		if !rule.IsActive {
			continue
		}
		if !r.ruleMatches(rule, meta.CallerNumber, contact != nil, now) {
			continue
		}
		return r.apply(rule, decision), nil
	}

	// No rule fired: the device's auto-answer flag decides.
	if device.AutoAnswer {
		return decision.answered(), nil
	}
	decision.Action = ActionReject
	decision.RejectReason = RejectNoMatchingRule
	return decision, nil
}

func (r *Router) apply(rule *Rule, decision Decision) Decision {
	decision.RuleID = &rule.ID
	switch rule.Action {
	case ActionReject:
		decision.Action = ActionReject
		decision.RejectReason = RejectByRule
	case ActionForward:
		decision.Action = ActionForward
		if rule.ForwardTo != nil {
			decision.ForwardTo = *rule.ForwardTo
		}
	default:
		decision = decision.answered()
		if rule.SystemInstruction != nil {
			decision.SystemInstruction = *rule.SystemInstruction
		}
		if rule.VoiceName != nil {
			decision.VoiceName = *rule.VoiceName
		}
	}
	return decision
}

func (d Decision) answered() Decision {
	d.Action = ActionAnswer
	d.RejectReason = ""
	return d
}

func (r *Router) ruleMatches(rule *Rule, caller string, knownContact bool, now time.Time) bool {
	if !r.patternMatches(rule, caller, knownContact) {
		return false
	}
	if len(rule.DaysOfWeek) > 0 && !containsWeekday(rule.DaysOfWeek, now.Weekday()) {
		return false
	}
	return r.withinWindow(rule, now)
}

func (r *Router) patternMatches(rule *Rule, caller string, knownContact bool) bool {
	switch rule.MatchType {
	case MatchAll:
		return true
	case MatchContactOnly:
		return knownContact
	case MatchPrefix:
		if rule.CallerPattern == nil {
			return true
		}
		return strings.HasPrefix(caller, strings.TrimSuffix(*rule.CallerPattern, "*"))
	case MatchExact:
		if rule.CallerPattern == nil {
			return true
		}
		return caller == *rule.CallerPattern
	default:
		r.logger.Warnf("rule %d has unknown match_type %q, skipping", rule.ID, rule.MatchType)
		return false
	}
}

// withinWindow checks the rule's daily time window. A start later than the
// end wraps past midnight, so 22:00-06:00 matches 23:30 and 02:00 but not
// 12:00. A rule without a window always matches.
func (r *Router) withinWindow(rule *Rule, now time.Time) bool {
	if rule.TimeStart == nil || rule.TimeEnd == nil {
		return true
	}
	start, err := minuteOfDay(*rule.TimeStart)
	if err != nil {
		r.logger.Warnf("rule %d has bad time_start %q, skipping", rule.ID, *rule.TimeStart)
		return false
	}
	end, err := minuteOfDay(*rule.TimeEnd)
	if err != nil {
		r.logger.Warnf("rule %d has bad time_end %q, skipping", rule.ID, *rule.TimeEnd)
		return false
	}
	minute := now.Hour()*60 + now.Minute()
	if start == end {
		return true
	}
	if start < end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}

func minuteOfDay(value string) (int, error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, err
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

func containsWeekday(days []time.Weekday, day time.Weekday) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
