package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Menzorg/rugpt/roles"
)

// RoleStore implements roles.Store on the shared database, plus the
// upsert used for seeding.
type RoleStore struct {
	s *Store
}

func (s *Store) Roles() *RoleStore {
	return &RoleStore{s: s}
}

const roleColumns = `id, org_id, name, code, description, agent_kind, model_name,
	tool_names, prompt_file, fallback_prompt, agent_config, is_active, created_at, updated_at`

func (rs *RoleStore) Get(ctx context.Context, id uuid.UUID) (*roles.Role, error) {
	row := rs.s.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = ?`, id.String())
	r, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, roles.ErrNotFound
	}
	return r, err
}

func (rs *RoleStore) GetByCode(ctx context.Context, orgID uuid.UUID, code string) (*roles.Role, error) {
	row := rs.s.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE org_id = ? AND code = ?`,
		orgID.String(), code)
	r, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, roles.ErrNotFound
	}
	return r, err
}

func (rs *RoleStore) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*roles.Role, error) {
	rows, err := rs.s.db.QueryContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE org_id = ? ORDER BY code`, orgID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*roles.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (rs *RoleStore) Upsert(ctx context.Context, r *roles.Role) error {
	toolNames, err := json.Marshal(r.ToolNames)
	if err != nil {
		return fmt.Errorf("encoding tool names: %w", err)
	}
	var agentConfig sql.NullString
	if len(r.AgentConfig) > 0 {
		agentConfig = sql.NullString{String: string(r.AgentConfig), Valid: true}
	}
	_, err = rs.s.db.ExecContext(ctx, `INSERT INTO roles (`+roleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (org_id, code) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			agent_kind = excluded.agent_kind,
			model_name = excluded.model_name,
			tool_names = excluded.tool_names,
			prompt_file = excluded.prompt_file,
			fallback_prompt = excluded.fallback_prompt,
			agent_config = excluded.agent_config,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		r.ID.String(), r.OrgID.String(), r.Name, r.Code, r.Description,
		string(r.AgentKind), r.ModelName, string(toolNames),
		r.PromptFile, r.FallbackPrompt, agentConfig,
		boolToInt(r.IsActive), formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	return err
}

func scanRole(row rowScanner) (*roles.Role, error) {
	var r roles.Role
	var idStr, orgStr, kindStr, toolNamesJSON, createdStr, updatedStr string
	var agentConfig sql.NullString
	var isActive int
	err := row.Scan(&idStr, &orgStr, &r.Name, &r.Code, &r.Description,
		&kindStr, &r.ModelName, &toolNamesJSON, &r.PromptFile, &r.FallbackPrompt,
		&agentConfig, &isActive, &createdStr, &updatedStr)
	if err != nil {
		return nil, err
	}
	if r.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if r.OrgID, err = uuid.Parse(orgStr); err != nil {
		return nil, err
	}
	r.AgentKind = roles.AgentKind(kindStr)
	if toolNamesJSON != "" && toolNamesJSON != "[]" {
		if err := json.Unmarshal([]byte(toolNamesJSON), &r.ToolNames); err != nil {
			return nil, fmt.Errorf("decoding tool names: %w", err)
		}
	}
	if agentConfig.Valid {
		r.AgentConfig = json.RawMessage(agentConfig.String)
	}
	r.IsActive = isActive != 0
	if r.CreatedAt, err = parseTime(createdStr); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(updatedStr); err != nil {
		return nil, err
	}
	return &r, nil
}
