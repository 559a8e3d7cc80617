// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package internal_store

import (
	"strconv"
	"strings"
	"time"

	internal_routing "github.com/voxbridgeai/api/bridge-api/internal/routing"
)

// GatewayDevice is one registered telephony gateway. Devices are provisioned
// out of band; the bridge only reads them and stamps last_seen_date on
// connect.
type GatewayDevice struct {
	Id                uint64    `json:"id" gorm:"type:bigint;primaryKey;autoIncrement;<-:create"`
	GatewayID         string    `json:"gatewayId" gorm:"column:gateway_id;type:varchar(100);not null;uniqueIndex"`
	OrganizationID    uint64    `json:"organizationId" gorm:"column:organization_id;type:bigint;not null"`
	Name              string    `json:"name" gorm:"column:name;type:varchar(200);not null;default:''"`
	IsActive          bool      `json:"isActive" gorm:"column:is_active;not null;default:true"`
	AutoAnswer        bool      `json:"autoAnswer" gorm:"column:auto_answer;not null;default:true"`
	SystemInstruction string    `json:"systemInstruction" gorm:"column:system_instruction;type:text;not null;default:''"`
	VoiceName         string    `json:"voiceName" gorm:"column:voice_name;type:varchar(100);not null;default:''"`
	CreatedDate       time.Time `json:"createdDate" gorm:"type:timestamp;not null;default:NOW();<-:create"`
	LastSeenDate      time.Time `json:"lastSeenDate" gorm:"column:last_seen_date;type:timestamp;default:null"`
}

func (GatewayDevice) TableName() string {
	return "gateway_devices"
}

func (d *GatewayDevice) toRouting() *internal_routing.Device {
	return &internal_routing.Device{
		GatewayID:         d.GatewayID,
		OrgID:             d.OrganizationID,
		Name:              d.Name,
		IsActive:          d.IsActive,
		AutoAnswer:        d.AutoAnswer,
		SystemInstruction: d.SystemInstruction,
		VoiceName:         d.VoiceName,
	}
}

// Contact is an org-scoped known caller, matched by normalized phone number.
type Contact struct {
	Id             uint64    `json:"id" gorm:"type:bigint;primaryKey;autoIncrement;<-:create"`
	OrganizationID uint64    `json:"organizationId" gorm:"column:organization_id;type:bigint;not null;index:idx_contacts_org_number"`
	Name           string    `json:"name" gorm:"column:name;type:varchar(200);not null;default:''"`
	PhoneNumber    string    `json:"phoneNumber" gorm:"column:phone_number;type:varchar(50);not null;index:idx_contacts_org_number"`
	CreatedDate    time.Time `json:"createdDate" gorm:"type:timestamp;not null;default:NOW();<-:create"`
}

func (Contact) TableName() string {
	return "contacts"
}

func (c *Contact) toRouting() *internal_routing.Contact {
	return &internal_routing.Contact{
		ID:          c.Id,
		OrgID:       c.OrganizationID,
		Name:        c.Name,
		PhoneNumber: c.PhoneNumber,
	}
}

// RoutingRule is the persisted form of one routing rule. DaysOfWeek is a
// comma separated list of weekday numbers, 0=Sunday, matching time.Weekday.
type RoutingRule struct {
	Id                uint64    `json:"id" gorm:"type:bigint;primaryKey;autoIncrement;<-:create"`
	OrganizationID    uint64    `json:"organizationId" gorm:"column:organization_id;type:bigint;not null;index"`
	Name              string    `json:"name" gorm:"column:name;type:varchar(200);not null;default:''"`
	CallerPattern     *string   `json:"callerPattern" gorm:"column:caller_pattern;type:varchar(100)"`
	MatchType         string    `json:"matchType" gorm:"column:match_type;type:varchar(20);not null;default:all"`
	Action            string    `json:"action" gorm:"column:action;type:varchar(20);not null;default:answer"`
	ForwardTo         *string   `json:"forwardTo" gorm:"column:forward_to;type:varchar(50)"`
	SystemInstruction *string   `json:"systemInstruction" gorm:"column:system_instruction;type:text"`
	VoiceName         *string   `json:"voiceName" gorm:"column:voice_name;type:varchar(100)"`
	TimeStart         *string   `json:"timeStart" gorm:"column:time_start;type:varchar(5)"`
	TimeEnd           *string   `json:"timeEnd" gorm:"column:time_end;type:varchar(5)"`
	DaysOfWeek        string    `json:"daysOfWeek" gorm:"column:days_of_week;type:varchar(20);not null;default:''"`
	IsActive          bool      `json:"isActive" gorm:"column:is_active;not null;default:true"`
	Priority          int       `json:"priority" gorm:"column:priority;type:int;not null;default:100"`
	CreatedDate       time.Time `json:"createdDate" gorm:"type:timestamp;not null;default:NOW();<-:create"`
	UpdatedDate       time.Time `json:"updatedDate" gorm:"type:timestamp;default:null"`
}

func (RoutingRule) TableName() string {
	return "routing_rules"
}

func (r *RoutingRule) toRouting() internal_routing.Rule {
	return internal_routing.Rule{
		ID:                r.Id,
		OrgID:             r.OrganizationID,
		Name:              r.Name,
		CallerPattern:     r.CallerPattern,
		MatchType:         internal_routing.MatchType(r.MatchType),
		Action:            internal_routing.Action(r.Action),
		ForwardTo:         r.ForwardTo,
		SystemInstruction: r.SystemInstruction,
		VoiceName:         r.VoiceName,
		TimeStart:         r.TimeStart,
		TimeEnd:           r.TimeEnd,
		DaysOfWeek:        parseWeekdays(r.DaysOfWeek),
		IsActive:          r.IsActive,
		Priority:          r.Priority,
	}
}

// parseWeekdays tolerates blanks and junk entries; a rule with no parseable
// days has no day restriction.
func parseWeekdays(csv string) []time.Weekday {
	if csv == "" {
		return nil
	}
	var days []time.Weekday
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 6 {
			continue
		}
		days = append(days, time.Weekday(n))
	}
	return days
}

// Interaction status constants.
const (
	InteractionActive    = "active"
	InteractionCompleted = "completed"
	InteractionFailed    = "failed"
)

// Interaction is one call handled by the bridge: the routing outcome plus
// session facts filled in as the call ends. One row per call_id.
type Interaction struct {
	Id             uint64    `json:"id" gorm:"type:bigint;primaryKey;autoIncrement;<-:create"`
	CallID         string    `json:"callId" gorm:"column:call_id;type:varchar(100);not null;uniqueIndex"`
	GatewayID      string    `json:"gatewayId" gorm:"column:gateway_id;type:varchar(100);not null;index"`
	OrganizationID uint64    `json:"organizationId" gorm:"column:organization_id;type:bigint;not null;default:0"`
	ContactID      *uint64   `json:"contactId" gorm:"column:contact_id;type:bigint"`
	RuleID         *uint64   `json:"ruleId" gorm:"column:rule_id;type:bigint"`
	CallerNumber   string    `json:"callerNumber" gorm:"column:caller_number;type:varchar(50);not null;default:''"`
	Action         string    `json:"action" gorm:"column:action;type:varchar(20);not null"`
	RejectReason   string    `json:"rejectReason" gorm:"column:reject_reason;type:varchar(50);not null;default:''"`
	ForwardTo      string    `json:"forwardTo" gorm:"column:forward_to;type:varchar(50);not null;default:''"`
	SessionID      string    `json:"sessionId" gorm:"column:session_id;type:varchar(36);not null;default:''"`
	Status         string    `json:"status" gorm:"column:status;type:varchar(20);not null;default:active"`
	Transcript     string    `json:"transcript" gorm:"column:transcript;type:text;not null;default:''"`
	RecordingPath  string    `json:"recordingPath" gorm:"column:recording_path;type:varchar(500);not null;default:''"`
	Resumptions    int       `json:"resumptions" gorm:"column:resumptions;type:int;not null;default:0"`
	StartedDate    time.Time `json:"startedDate" gorm:"column:started_date;type:timestamp;not null;default:NOW();<-:create"`
	EndedDate      time.Time `json:"endedDate" gorm:"column:ended_date;type:timestamp;default:null"`
	DurationMs     int64     `json:"durationMs" gorm:"column:duration_ms;type:bigint;not null;default:0"`
}

func (Interaction) TableName() string {
	return "interactions"
}
