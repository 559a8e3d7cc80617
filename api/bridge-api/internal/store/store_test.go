// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package internal_store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	internal_routing "github.com/voxbridgeai/api/bridge-api/internal/routing"
	"github.com/voxbridgeai/pkg/commons"
	"github.com/voxbridgeai/pkg/connectors"
	"github.com/voxbridgeai/pkg/utils"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err)

	// A single connection keeps every query on the same in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := NewStore(connectors.NewPostgresConnectorFromDB(db, commons.NewNopLogger()), commons.NewNopLogger())
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func seedDevice(t *testing.T, store Store, device *GatewayDevice) {
	t.Helper()
	pg := store.(*postgresStore)
	require.NoError(t, pg.postgres.DB(context.Background()).Create(device).Error)
}

func seedContact(t *testing.T, store Store, contact *Contact) {
	t.Helper()
	pg := store.(*postgresStore)
	require.NoError(t, pg.postgres.DB(context.Background()).Create(contact).Error)
}

func seedRule(t *testing.T, store Store, rule *RoutingRule) {
	t.Helper()
	pg := store.(*postgresStore)
	require.NoError(t, pg.postgres.DB(context.Background()).Create(rule).Error)
}

func TestStore_GetDevice(t *testing.T) {
	store := newTestStore(t)
	seedDevice(t, store, &GatewayDevice{
		GatewayID:      "gw-1",
		OrganizationID: 7,
		Name:           "front desk",
		IsActive:       true,
		AutoAnswer:     true,
		VoiceName:      "Aoede",
	})

	device, err := store.GetDevice(context.Background(), "gw-1")
	require.NoError(t, err)
	require.NotNil(t, device)
	assert.Equal(t, uint64(7), device.OrgID)
	assert.Equal(t, "Aoede", device.VoiceName)
	assert.True(t, device.AutoAnswer)

	missing, err := store.GetDevice(context.Background(), "gw-unknown")
	require.NoError(t, err, "unknown devices are nil, not an error")
	assert.Nil(t, missing)
}

func TestStore_GetContactByNumber(t *testing.T) {
	store := newTestStore(t)
	seedContact(t, store, &Contact{OrganizationID: 7, Name: "Asha", PhoneNumber: "+15551230000"})

	contact, err := store.GetContactByNumber(context.Background(), 7, "+15551230000")
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, "Asha", contact.Name)

	// Contacts are org scoped.
	other, err := store.GetContactByNumber(context.Background(), 8, "+15551230000")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestStore_ListActiveRulesOrderedAndFiltered(t *testing.T) {
	store := newTestStore(t)
	seedRule(t, store, &RoutingRule{
		OrganizationID: 7, Name: "late", MatchType: "all", Action: "answer", IsActive: true, Priority: 50,
	})
	seedRule(t, store, &RoutingRule{
		OrganizationID: 7, Name: "first", MatchType: "prefix", CallerPattern: utils.Ptr("+977*"),
		Action: "reject", IsActive: true, Priority: 10, DaysOfWeek: "0,6",
	})
	seedRule(t, store, &RoutingRule{
		OrganizationID: 7, Name: "disabled", MatchType: "all", Action: "reject", IsActive: false, Priority: 1,
	})
	seedRule(t, store, &RoutingRule{
		OrganizationID: 9, Name: "other org", MatchType: "all", Action: "reject", IsActive: true, Priority: 1,
	})

	rules, err := store.ListActiveRules(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "first", rules[0].Name)
	assert.Equal(t, internal_routing.MatchPrefix, rules[0].MatchType)
	assert.Equal(t, []time.Weekday{time.Sunday, time.Saturday}, rules[0].DaysOfWeek)
	assert.Equal(t, "late", rules[1].Name)
}

func TestStore_BacksRouterEndToEnd(t *testing.T) {
	store := newTestStore(t)
	seedDevice(t, store, &GatewayDevice{GatewayID: "gw-1", OrganizationID: 7, IsActive: true, AutoAnswer: true})
	seedRule(t, store, &RoutingRule{
		OrganizationID: 7, MatchType: "prefix", CallerPattern: utils.Ptr("+977*"),
		Action: "reject", IsActive: true, Priority: 10,
	})

	router := internal_routing.NewRouter(commons.NewNopLogger(), store)

	decision := router.Route(context.Background(), internal_routing.CallMeta{
		CallID: "call-1", GatewayID: "gw-1", CallerNumber: "+9779800000",
	})
	assert.Equal(t, internal_routing.ActionReject, decision.Action)

	decision = router.Route(context.Background(), internal_routing.CallMeta{
		CallID: "call-2", GatewayID: "gw-1", CallerNumber: "+15551234567",
	})
	assert.Equal(t, internal_routing.ActionAnswer, decision.Action)
}

func TestStore_TouchDeviceSeen(t *testing.T) {
	store := newTestStore(t)
	seedDevice(t, store, &GatewayDevice{GatewayID: "gw-1", OrganizationID: 7, IsActive: true})

	require.NoError(t, store.TouchDeviceSeen(context.Background(), "gw-1"))
	require.NoError(t, store.TouchDeviceSeen(context.Background(), "gw-unknown"))

	pg := store.(*postgresStore)
	var device GatewayDevice
	require.NoError(t, pg.postgres.DB(context.Background()).Where("gateway_id = ?", "gw-1").First(&device).Error)
	assert.WithinDuration(t, time.Now(), device.LastSeenDate, 5*time.Second)
}

func TestStore_InteractionLifecycle(t *testing.T) {
	store := newTestStore(t)

	started := time.Now().Add(-90 * time.Second)
	require.NoError(t, store.CreateInteraction(context.Background(), &Interaction{
		CallID:         "call-1",
		GatewayID:      "gw-1",
		OrganizationID: 7,
		CallerNumber:   "+15551230000",
		Action:         "answer",
		SessionID:      "sess-1",
		StartedDate:    started,
	}))

	ended := time.Now()
	require.NoError(t, store.CompleteInteraction(context.Background(), "call-1", InteractionClosing{
		Transcript:    "caller: hello\nassistant: hi there",
		RecordingPath: "/recordings/call-1.wav",
		Resumptions:   2,
		EndedAt:       ended,
	}))

	pg := store.(*postgresStore)
	var row Interaction
	require.NoError(t, pg.postgres.DB(context.Background()).Where("call_id = ?", "call-1").First(&row).Error)
	assert.Equal(t, InteractionCompleted, row.Status)
	assert.Equal(t, 2, row.Resumptions)
	assert.Equal(t, "/recordings/call-1.wav", row.RecordingPath)
	assert.InDelta(t, ended.Sub(started).Milliseconds(), row.DurationMs, 1500)
}

func TestStore_CompleteUnknownInteractionIsNoop(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.CompleteInteraction(context.Background(), "never-created", InteractionClosing{}))
}

func TestStore_RejectInteractionRecordedTerminal(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateInteraction(context.Background(), &Interaction{
		CallID:       "call-2",
		GatewayID:    "gw-1",
		CallerNumber: "+9779800000",
		Action:       "reject",
		RejectReason: "rejected_by_rule",
		Status:       InteractionCompleted,
	}))

	pg := store.(*postgresStore)
	var row Interaction
	require.NoError(t, pg.postgres.DB(context.Background()).Where("call_id = ?", "call-2").First(&row).Error)
	assert.Equal(t, InteractionCompleted, row.Status)
	assert.Equal(t, "rejected_by_rule", row.RejectReason)
}

func TestParseWeekdays(t *testing.T) {
	assert.Nil(t, parseWeekdays(""))
	assert.Equal(t, []time.Weekday{time.Monday, time.Friday}, parseWeekdays("1,5"))
	assert.Equal(t, []time.Weekday{time.Tuesday}, parseWeekdays(" 2 , bogus , 9 "))
}
