// Package rolefile loads role definitions from a YAML seed file. It
// backs development setups and tests where no database rows exist
// yet; the loaded set also implements roles.Store directly.
package rolefile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/Menzorg/rugpt/roles"
)

type fileDoc struct {
	OrgID string     `yaml:"org_id"`
	Roles []roleSpec `yaml:"roles"`
}

type roleSpec struct {
	ID             string         `yaml:"id"`
	Code           string         `yaml:"code"`
	Name           string         `yaml:"name"`
	Description    string         `yaml:"description"`
	AgentKind      string         `yaml:"agent_kind"`
	Model          string         `yaml:"model"`
	Tools          []string       `yaml:"tools"`
	PromptFile     string         `yaml:"prompt_file"`
	FallbackPrompt string         `yaml:"fallback_prompt"`
	AgentConfig    map[string]any `yaml:"agent_config"`
	Active         *bool          `yaml:"active"`
}

// Load parses the seed file and validates every role.
func Load(path string) ([]*roles.Role, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading role file: %w", err)
	}
	var doc fileDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing role file: %w", err)
	}

	orgID, err := uuid.Parse(strings.TrimSpace(doc.OrgID))
	if err != nil {
		return nil, fmt.Errorf("invalid org_id: %w", err)
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, len(doc.Roles))
	out := make([]*roles.Role, 0, len(doc.Roles))
	for i, spec := range doc.Roles {
		code := strings.TrimSpace(spec.Code)
		if code == "" {
			return nil, fmt.Errorf("role %d: code is required", i)
		}
		if seen[code] {
			return nil, fmt.Errorf("role %d: duplicate code %q", i, code)
		}
		seen[code] = true

		kind, ok := roles.ParseAgentKind(spec.AgentKind)
		if !ok {
			return nil, fmt.Errorf("role %q: unknown agent_kind %q", code, spec.AgentKind)
		}

		id := uuid.New()
		if strings.TrimSpace(spec.ID) != "" {
			if id, err = uuid.Parse(strings.TrimSpace(spec.ID)); err != nil {
				return nil, fmt.Errorf("role %q: invalid id: %w", code, err)
			}
		}

		var agentConfig json.RawMessage
		if len(spec.AgentConfig) > 0 {
			b, err := json.Marshal(spec.AgentConfig)
			if err != nil {
				return nil, fmt.Errorf("role %q: encoding agent_config: %w", code, err)
			}
			agentConfig = b
		}

		active := true
		if spec.Active != nil {
			active = *spec.Active
		}
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			name = code
		}

		out = append(out, &roles.Role{
			ID:             id,
			OrgID:          orgID,
			Name:           name,
			Code:           code,
			Description:    spec.Description,
			AgentKind:      kind,
			ModelName:      strings.TrimSpace(spec.Model),
			ToolNames:      spec.Tools,
			PromptFile:     spec.PromptFile,
			FallbackPrompt: spec.FallbackPrompt,
			AgentConfig:    agentConfig,
			IsActive:       active,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	return out, nil
}

// Store serves a loaded role set as a read-only roles.Store.
type Store struct {
	byID   map[uuid.UUID]*roles.Role
	byCode map[string]*roles.Role
}

func NewStore(list []*roles.Role) *Store {
	s := &Store{
		byID:   make(map[uuid.UUID]*roles.Role, len(list)),
		byCode: make(map[string]*roles.Role, len(list)),
	}
	for _, r := range list {
		s.byID[r.ID] = r
		s.byCode[codeKey(r.OrgID, r.Code)] = r
	}
	return s
}

// Open is Load followed by NewStore.
func Open(path string) (*Store, error) {
	list, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewStore(list), nil
}

func (s *Store) Get(_ context.Context, id uuid.UUID) (*roles.Role, error) {
	r, ok := s.byID[id]
	if !ok {
		return nil, roles.ErrNotFound
	}
	return r, nil
}

func (s *Store) GetByCode(_ context.Context, orgID uuid.UUID, code string) (*roles.Role, error) {
	r, ok := s.byCode[codeKey(orgID, code)]
	if !ok {
		return nil, roles.ErrNotFound
	}
	return r, nil
}

func (s *Store) All() []*roles.Role {
	out := make([]*roles.Role, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, r)
	}
	return out
}

func codeKey(orgID uuid.UUID, code string) string {
	return orgID.String() + "/" + strings.ToLower(strings.TrimSpace(code))
}

// Upserter is the slice of a writable role store Seed needs.
type Upserter interface {
	Upsert(ctx context.Context, r *roles.Role) error
}

// Seed writes every loaded role into a writable store, updating
// existing rows by (org, code).
func Seed(ctx context.Context, dst Upserter, list []*roles.Role) error {
	for _, r := range list {
		if err := dst.Upsert(ctx, r); err != nil {
			return fmt.Errorf("seeding role %q: %w", r.Code, err)
		}
	}
	return nil
}
