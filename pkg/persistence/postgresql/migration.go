package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow definitions. The engine reads these; full authoring
			-- CRUD lives with an external collaborator.
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL,
				nodes JSONB NOT NULL DEFAULT '[]',
				connections JSONB NOT NULL DEFAULT '[]',
				variables JSONB DEFAULT '{}',
				metadata JSONB DEFAULT '{}',
				owner VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				published_at TIMESTAMP WITH TIME ZONE,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);
		`,
		2: `
			-- Execution rows: one per workflow run.
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				trigger_node_id VARCHAR(255),
				status VARCHAR(50) NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				nodes_executed INT NOT NULL DEFAULT 0,
				notifications_sent INT NOT NULL DEFAULT 0,
				context_snapshot JSONB,
				trigger_data JSONB DEFAULT '{}',
				error_message TEXT NOT NULL DEFAULT '',
				error_details JSONB,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id);
			CREATE INDEX idx_executions_status ON executions(status);
			CREATE INDEX idx_executions_started_at ON executions(started_at);
			CREATE INDEX idx_executions_status_updated_at ON executions(status, updated_at);

			-- Node execution audit trail, totally ordered by sequence.
			CREATE TABLE node_executions (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				node_type VARCHAR(50) NOT NULL,
				node_kind VARCHAR(255) NOT NULL,
				sequence INT NOT NULL,
				status VARCHAR(50) NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				input JSONB,
				output JSONB,
				error_message TEXT NOT NULL DEFAULT '',
				retry_count INT NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_node_executions_execution_id ON node_executions(execution_id);
			CREATE UNIQUE INDEX idx_node_executions_sequence ON node_executions(execution_id, sequence);
		`,
		3: `
			-- Wait states: one durable suspension point per waiting node.
			CREATE TABLE execution_wait_states (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				correlation_id VARCHAR(255) NOT NULL DEFAULT '',
				expectations JSONB NOT NULL DEFAULT '[]',
				policy VARCHAR(50) NOT NULL DEFAULT 'all',
				on_timeout VARCHAR(50) NOT NULL DEFAULT 'fail',
				event_payloads JSONB DEFAULT '{}',
				received_kinds JSONB DEFAULT '[]',
				status VARCHAR(50) NOT NULL,
				version BIGINT NOT NULL DEFAULT 1,
				expires_at TIMESTAMP WITH TIME ZONE,
				resume_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_wait_states_correlation_id ON execution_wait_states(correlation_id);
			CREATE INDEX idx_wait_states_expires ON execution_wait_states(status, expires_at);
			CREATE INDEX idx_wait_states_resume ON execution_wait_states(status, resume_at);

			-- At most one active wait state per (execution, node).
			CREATE UNIQUE INDEX idx_wait_states_active
				ON execution_wait_states(execution_id, node_id)
				WHERE status = 'waiting';

			-- Durable retry intents, claimed with optimistic versioning.
			CREATE TABLE retry_schedules (
				id VARCHAR(255) PRIMARY KEY,
				target_type VARCHAR(50) NOT NULL,
				target_id VARCHAR(255) NOT NULL,
				execution_id VARCHAR(255) NOT NULL DEFAULT '',
				strategy VARCHAR(50) NOT NULL DEFAULT 'fixed',
				max_attempts INT NOT NULL DEFAULT 1,
				current_attempt INT NOT NULL DEFAULT 0,
				initial_delay_ns BIGINT NOT NULL DEFAULT 0,
				multiplier DOUBLE PRECISION NOT NULL DEFAULT 0,
				max_delay_ns BIGINT NOT NULL DEFAULT 0,
				custom_delays JSONB DEFAULT '[]',
				scheduled_at TIMESTAMP WITH TIME ZONE NOT NULL,
				last_attempt_at TIMESTAMP WITH TIME ZONE,
				expires_at TIMESTAMP WITH TIME ZONE,
				status VARCHAR(50) NOT NULL,
				claimed_by VARCHAR(255) NOT NULL DEFAULT '',
				claimed_at TIMESTAMP WITH TIME ZONE,
				version BIGINT NOT NULL DEFAULT 1,
				error_history JSONB DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_retry_schedules_due ON retry_schedules(status, scheduled_at);
			CREATE INDEX idx_retry_schedules_execution_id ON retry_schedules(execution_id);
		`,
	}
}
