// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package internal_store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	internal_routing "github.com/voxbridgeai/api/bridge-api/internal/routing"
	"github.com/voxbridgeai/pkg/commons"
	"github.com/voxbridgeai/pkg/connectors"
)

// Store is the bridge's read/write surface over Postgres. The read side
// (devices, contacts, rules) backs routing; the write side records one
// interaction row per handled call. Devices, contacts and rules are
// provisioned by the management plane, never written here beyond the
// last-seen stamp.
type Store interface {
	internal_routing.Directory

	// TouchDeviceSeen stamps last_seen_date for a connecting gateway.
	// Unknown devices are a no-op, not an error.
	TouchDeviceSeen(ctx context.Context, gatewayID string) error

	// CreateInteraction records the routing outcome for one call. The row
	// starts in "active" status for answered calls and goes straight to
	// "completed" for rejects and forwards.
	CreateInteraction(ctx context.Context, interaction *Interaction) error

	// CompleteInteraction closes out an answered call's row with its final
	// transcript, recording path and duration.
	CompleteInteraction(ctx context.Context, callID string, closing InteractionClosing) error

	// Migrate creates or updates the bridge's tables.
	Migrate(ctx context.Context) error
}

// InteractionClosing carries the end-of-call facts for CompleteInteraction.
type InteractionClosing struct {
	Status        string
	Transcript    string
	RecordingPath string
	Resumptions   int
	EndedAt       time.Time
}

type postgresStore struct {
	postgres connectors.PostgresConnector
	logger   commons.Logger
}

// NewStore creates a new bridge store backed by Postgres.
func NewStore(postgres connectors.PostgresConnector, logger commons.Logger) Store {
	return &postgresStore{
		postgres: postgres,
		logger:   logger,
	}
}

func (s *postgresStore) Migrate(ctx context.Context) error {
	db := s.postgres.DB(ctx)
	if err := db.AutoMigrate(&GatewayDevice{}, &Contact{}, &RoutingRule{}, &Interaction{}); err != nil {
		return fmt.Errorf("failed to migrate bridge tables: %w", err)
	}
	return nil
}

// GetDevice resolves a gateway device by its external id. A missing row is
// returned as nil, not an error, so callers can distinguish "unknown
// hardware" from a failing database.
func (s *postgresStore) GetDevice(ctx context.Context, gatewayID string) (*internal_routing.Device, error) {
	db := s.postgres.DB(ctx)
	var device GatewayDevice
	if err := db.Where("gateway_id = ?", gatewayID).First(&device).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve gateway device %s: %w", gatewayID, err)
	}
	return device.toRouting(), nil
}

func (s *postgresStore) GetContactByNumber(ctx context.Context, orgID uint64, number string) (*internal_routing.Contact, error) {
	db := s.postgres.DB(ctx)
	var contact Contact
	err := db.Where("organization_id = ? AND phone_number = ?", orgID, number).First(&contact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve contact %s: %w", number, err)
	}
	return contact.toRouting(), nil
}

func (s *postgresStore) ListActiveRules(ctx context.Context, orgID uint64) ([]internal_routing.Rule, error) {
	db := s.postgres.DB(ctx)
	var rows []RoutingRule
	err := db.Where("organization_id = ? AND is_active = ?", orgID, true).
		Order("priority asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list routing rules for org %d: %w", orgID, err)
	}

	rules := make([]internal_routing.Rule, 0, len(rows))
	for i := range rows {
		rules = append(rules, rows[i].toRouting())
	}
	return rules, nil
}

func (s *postgresStore) TouchDeviceSeen(ctx context.Context, gatewayID string) error {
	db := s.postgres.DB(ctx)
	result := db.Model(&GatewayDevice{}).
		Where("gateway_id = ?", gatewayID).
		Update("last_seen_date", time.Now())
	if result.Error != nil {
		return fmt.Errorf("failed to stamp last_seen for gateway %s: %w", gatewayID, result.Error)
	}
	return nil
}

func (s *postgresStore) CreateInteraction(ctx context.Context, interaction *Interaction) error {
	if interaction.Status == "" {
		interaction.Status = InteractionActive
	}
	if interaction.StartedDate.IsZero() {
		interaction.StartedDate = time.Now()
	}

	db := s.postgres.DB(ctx)
	if err := db.Create(interaction).Error; err != nil {
		return fmt.Errorf("failed to record interaction for call %s: %w", interaction.CallID, err)
	}

	s.logger.Infof("recorded interaction: call_id=%s gateway=%s action=%s",
		interaction.CallID, interaction.GatewayID, interaction.Action)
	return nil
}

func (s *postgresStore) CompleteInteraction(ctx context.Context, callID string, closing InteractionClosing) error {
	if closing.Status == "" {
		closing.Status = InteractionCompleted
	}
	if closing.EndedAt.IsZero() {
		closing.EndedAt = time.Now()
	}

	db := s.postgres.DB(ctx)
	var row Interaction
	if err := db.Where("call_id = ?", callID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Debugf("complete_interaction for unknown call: call_id=%s", callID)
			return nil
		}
		return fmt.Errorf("failed to load interaction for call %s: %w", callID, err)
	}

	result := db.Model(&Interaction{}).
		Where("call_id = ?", callID).
		Updates(map[string]interface{}{
			"status":         closing.Status,
			"transcript":     closing.Transcript,
			"recording_path": closing.RecordingPath,
			"resumptions":    closing.Resumptions,
			"ended_date":     closing.EndedAt,
			"duration_ms":    closing.EndedAt.Sub(row.StartedDate).Milliseconds(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to complete interaction for call %s: %w", callID, result.Error)
	}
	return nil
}
