package database

import (
	"context"
	"fmt"
)

// schemaStatements holds the bootstrap DDL. Statements are idempotent and run
// in order at startup; foreign keys require the parent tables to come first.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS engines (
		id UUID PRIMARY KEY,
		engine_key VARCHAR(255) UNIQUE NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		engine_name VARCHAR(500) NOT NULL,
		description TEXT NOT NULL,
		category VARCHAR(50) NOT NULL,
		kind VARCHAR(50) NOT NULL DEFAULT 'primitive',
		reasoning_domain VARCHAR(255),
		researcher_question TEXT,
		stage_context JSONB,
		extraction_prompt TEXT,
		curation_prompt TEXT,
		concretization_prompt TEXT,
		canonical_schema JSONB NOT NULL,
		extraction_focus JSONB NOT NULL DEFAULT '[]',
		primary_output_modes JSONB NOT NULL DEFAULT '[]',
		paradigm_keys JSONB NOT NULL DEFAULT '[]',
		engine_profile JSONB,
		status VARCHAR(50) NOT NULL DEFAULT 'active',
		created_at TIMESTAMP NOT NULL DEFAULT now(),
		updated_at TIMESTAMP NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_engines_engine_key ON engines (engine_key)`,

	`CREATE TABLE IF NOT EXISTS engine_versions (
		id UUID PRIMARY KEY,
		engine_id UUID NOT NULL REFERENCES engines(id) ON DELETE CASCADE,
		version INTEGER NOT NULL,
		full_snapshot JSONB NOT NULL,
		change_summary TEXT,
		changed_by VARCHAR(255),
		created_at TIMESTAMP NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_engine_versions_engine_id ON engine_versions (engine_id)`,

	`CREATE TABLE IF NOT EXISTS paradigms (
		id UUID PRIMARY KEY,
		paradigm_key VARCHAR(255) UNIQUE NOT NULL,
		version VARCHAR(50) NOT NULL DEFAULT '1.0.0',
		paradigm_name VARCHAR(500) NOT NULL,
		description TEXT NOT NULL,
		guiding_thinkers TEXT NOT NULL,
		foundational JSONB NOT NULL DEFAULT '{}',
		structural JSONB NOT NULL DEFAULT '{}',
		dynamic JSONB NOT NULL DEFAULT '{}',
		explanatory JSONB NOT NULL DEFAULT '{}',
		active_traits JSONB NOT NULL DEFAULT '[]',
		trait_definitions JSONB NOT NULL DEFAULT '[]',
		critique_patterns JSONB NOT NULL DEFAULT '[]',
		historical_context TEXT,
		related_paradigms JSONB NOT NULL DEFAULT '[]',
		primary_engines JSONB NOT NULL DEFAULT '[]',
		compatible_engines JSONB NOT NULL DEFAULT '[]',
		status VARCHAR(50) NOT NULL DEFAULT 'active',
		parent_paradigm_key VARCHAR(255),
		branch_metadata JSONB,
		branch_depth INTEGER NOT NULL DEFAULT 0,
		generation_status VARCHAR(50) NOT NULL DEFAULT 'complete',
		created_at TIMESTAMP NOT NULL DEFAULT now(),
		updated_at TIMESTAMP NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_paradigms_parent_key ON paradigms (parent_paradigm_key)`,

	`CREATE TABLE IF NOT EXISTS pipelines (
		id UUID PRIMARY KEY,
		pipeline_key VARCHAR(255) UNIQUE NOT NULL,
		pipeline_name VARCHAR(500) NOT NULL,
		description TEXT NOT NULL,
		stage_definitions JSONB NOT NULL DEFAULT '[]',
		blend_mode VARCHAR(50) NOT NULL DEFAULT 'sequential',
		category VARCHAR(100),
		status VARCHAR(50) NOT NULL DEFAULT 'active',
		created_at TIMESTAMP NOT NULL DEFAULT now(),
		updated_at TIMESTAMP NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS pipeline_stages (
		id UUID PRIMARY KEY,
		pipeline_id UUID NOT NULL REFERENCES pipelines(id) ON DELETE CASCADE,
		stage_order INTEGER NOT NULL,
		stage_name VARCHAR(255) NOT NULL,
		engine_key VARCHAR(255),
		sub_pipeline_id UUID,
		blend_mode VARCHAR(50),
		sub_pass_engine_keys JSONB NOT NULL DEFAULT '[]',
		pass_context BOOLEAN NOT NULL DEFAULT true,
		config JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pipeline_stages_pipeline_id ON pipeline_stages (pipeline_id)`,

	`CREATE TABLE IF NOT EXISTS consumers (
		id UUID PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		consumer_type VARCHAR(50) NOT NULL,
		repo_url VARCHAR(500),
		webhook_url VARCHAR(500),
		contact_email VARCHAR(255),
		auto_update BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMP NOT NULL DEFAULT now(),
		updated_at TIMESTAMP NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS consumer_dependencies (
		id UUID PRIMARY KEY,
		consumer_id UUID NOT NULL REFERENCES consumers(id) ON DELETE CASCADE,
		construct_type VARCHAR(50) NOT NULL,
		construct_key VARCHAR(255) NOT NULL,
		usage_location TEXT,
		usage_type VARCHAR(50) NOT NULL DEFAULT 'direct',
		discovered_at TIMESTAMP NOT NULL DEFAULT now(),
		last_verified TIMESTAMP NOT NULL DEFAULT now(),
		is_active BOOLEAN NOT NULL DEFAULT true
	)`,
	`CREATE INDEX IF NOT EXISTS idx_consumer_dependencies_construct ON consumer_dependencies (construct_type, construct_key)`,

	`CREATE TABLE IF NOT EXISTS change_events (
		id UUID PRIMARY KEY,
		construct_type VARCHAR(50) NOT NULL,
		construct_key VARCHAR(255) NOT NULL,
		change_type VARCHAR(50) NOT NULL,
		old_value JSONB,
		new_value JSONB,
		diff JSONB,
		changed_by VARCHAR(255),
		change_summary TEXT,
		propagation_status VARCHAR(50) NOT NULL DEFAULT 'pending',
		affected_consumers JSONB NOT NULL DEFAULT '[]',
		changed_at TIMESTAMP NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_change_events_construct ON change_events (construct_type, construct_key)`,

	`CREATE TABLE IF NOT EXISTS change_notifications (
		id UUID PRIMARY KEY,
		change_event_id UUID NOT NULL REFERENCES change_events(id) ON DELETE CASCADE,
		consumer_id UUID NOT NULL REFERENCES consumers(id) ON DELETE CASCADE,
		notified_at TIMESTAMP,
		acknowledged_at TIMESTAMP,
		action_taken VARCHAR(50) NOT NULL DEFAULT 'pending',
		response_message TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_change_notifications_event ON change_notifications (change_event_id)`,

	`CREATE TABLE IF NOT EXISTS grids (
		id UUID PRIMARY KEY,
		grid_key VARCHAR(255) UNIQUE NOT NULL,
		grid_name VARCHAR(500) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		track VARCHAR(50) NOT NULL,
		conditions JSONB NOT NULL DEFAULT '[]',
		axes JSONB NOT NULL DEFAULT '[]',
		version INTEGER NOT NULL DEFAULT 1,
		status VARCHAR(50) NOT NULL DEFAULT 'active',
		created_at TIMESTAMP NOT NULL DEFAULT now(),
		updated_at TIMESTAMP NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS grid_versions (
		id UUID PRIMARY KEY,
		grid_id UUID NOT NULL REFERENCES grids(id) ON DELETE CASCADE,
		version INTEGER NOT NULL,
		full_snapshot JSONB NOT NULL,
		change_summary TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_grid_versions_grid_id ON grid_versions (grid_id)`,

	`CREATE TABLE IF NOT EXISTS wildcard_suggestions (
		id UUID PRIMARY KEY,
		grid_id UUID NOT NULL REFERENCES grids(id) ON DELETE CASCADE,
		dimension_type VARCHAR(50) NOT NULL,
		name VARCHAR(500) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		rationale TEXT NOT NULL DEFAULT '',
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		scope VARCHAR(50) NOT NULL DEFAULT 'project_specific',
		source_project VARCHAR(255),
		source_session_id VARCHAR(255),
		evidence_questions JSONB,
		status VARCHAR(50) NOT NULL DEFAULT 'suggested',
		created_at TIMESTAMP NOT NULL DEFAULT now(),
		updated_at TIMESTAMP NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_wildcard_suggestions_grid_id ON wildcard_suggestions (grid_id)`,
}

// EnsureSchema creates all catalog tables if they do not exist yet.
func (db *PostgreSQL) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
