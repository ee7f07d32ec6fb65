package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE flows (
				id TEXT PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				version VARCHAR(64) NOT NULL DEFAULT '',
				owner_id VARCHAR(255) NOT NULL DEFAULT '',
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_flows_owner_id ON flows(owner_id);
			CREATE INDEX idx_flows_created_at ON flows(created_at);

			CREATE TABLE executions (
				id TEXT PRIMARY KEY,
				flow_id TEXT NOT NULL,
				flow_version VARCHAR(64) NOT NULL DEFAULT '',
				user_id VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(32) NOT NULL CHECK (status IN ('pending', 'running', 'completed', 'failed', 'cancelled')),
				progress INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
				total_components INTEGER NOT NULL DEFAULT 0,
				completed_components INTEGER NOT NULL DEFAULT 0,
				execution_config JSONB,
				flow_snapshot JSONB,
				error_message TEXT NOT NULL DEFAULT '',
				error_details JSONB,
				final_output JSONB,
				execution_metrics JSONB,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_executions_flow_id ON executions(flow_id, created_at DESC);
			CREATE INDEX idx_executions_status ON executions(status);

			CREATE TABLE node_executions (
				id TEXT PRIMARY KEY,
				execution_id TEXT NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				component_type VARCHAR(255) NOT NULL DEFAULT '',
				execution_order INTEGER NOT NULL,
				status VARCHAR(32) NOT NULL,
				config_snapshot JSONB,
				input_snapshot JSONB,
				output_snapshot JSONB,
				execution_time_ms BIGINT NOT NULL DEFAULT 0,
				cost_estimate JSONB,
				error_message TEXT NOT NULL DEFAULT '',
				error_details JSONB,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_node_executions_execution_id ON node_executions(execution_id, execution_order);

			CREATE TABLE execution_logs (
				seq BIGSERIAL PRIMARY KEY,
				id TEXT NOT NULL UNIQUE,
				execution_id TEXT NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				node_execution_id TEXT NOT NULL DEFAULT '',
				level VARCHAR(16) NOT NULL,
				message TEXT NOT NULL,
				details JSONB,
				source VARCHAR(255) NOT NULL DEFAULT '',
				logged_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_execution_logs_execution_id ON execution_logs(execution_id, seq);
		`,
		2: `
			CREATE TABLE publications (
				flow_id TEXT NOT NULL,
				version VARCHAR(64) NOT NULL,
				name VARCHAR(255) NOT NULL,
				endpoint TEXT NOT NULL,
				is_public BOOLEAN NOT NULL DEFAULT false,
				rate_limit INTEGER,
				max_instances INTEGER NOT NULL DEFAULT 1,
				flow JSONB NOT NULL,
				published_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (flow_id, version)
			);
		`,
	}
}
