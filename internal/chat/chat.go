// Package chat is the public facade over sessions, providers, and the
// turn orchestrator. Callers (gateway, CLI) talk to this package only.
package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strandlabs/loom/internal/agent"
	"github.com/strandlabs/loom/internal/errdefs"
	"github.com/strandlabs/loom/internal/observability"
	"github.com/strandlabs/loom/internal/sessions"
	"github.com/strandlabs/loom/pkg/models"
)

// Service exposes the conversation API.
//
// Thread Safety:
// Service is safe for concurrent use.
type Service struct {
	store  sessions.Store
	orch   *agent.Orchestrator
	logger *observability.Logger

	defaultPrompt string

	mu              sync.RWMutex
	providers       map[string]agent.Provider
	defaultProvider string
}

// Config wires the facade's collaborators.
type Config struct {
	Store        sessions.Store
	Orchestrator *agent.Orchestrator
	Logger       *observability.Logger

	// DefaultProvider names the provider used when neither the request
	// nor the session specifies one.
	DefaultProvider string

	// DefaultSystemPrompt seeds sessions created implicitly by
	// SendMessage when the caller supplies no prompt of their own.
	DefaultSystemPrompt string
}

// NewService creates the chat facade.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errdefs.New(errdefs.CodeValidationError, "store is required")
	}
	if cfg.Orchestrator == nil {
		return nil, errdefs.New(errdefs.CodeValidationError, "orchestrator is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Service{
		store:           cfg.Store,
		orch:            cfg.Orchestrator,
		logger:          cfg.Logger,
		defaultPrompt:   cfg.DefaultSystemPrompt,
		providers:       make(map[string]agent.Provider),
		defaultProvider: cfg.DefaultProvider,
	}, nil
}

// RegisterProvider adds a provider under its name. The first registered
// provider becomes the default unless one was configured.
func (s *Service) RegisterProvider(p agent.Provider) error {
	if p == nil || p.Name() == "" {
		return errdefs.New(errdefs.CodeValidationError, "provider with a name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.providers[p.Name()]; exists {
		return errdefs.Newf(errdefs.CodeValidationError, "provider already registered: %s", p.Name())
	}
	s.providers[p.Name()] = p
	if s.defaultProvider == "" {
		s.defaultProvider = p.Name()
	}
	return nil
}

// Provider returns a registered provider by name.
func (s *Service) Provider(name string) (agent.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[name]
	if !ok {
		return nil, errdefs.Newf(errdefs.CodeNotFound, "provider not registered: %s", name)
	}
	return p, nil
}

// Providers returns the registered provider names, sorted.
func (s *Service) Providers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateSessionParams configures session creation. All fields are
// optional; a zero value yields a session with a generated id.
type CreateSessionParams struct {
	ID           string
	Title        string
	ParentID     string
	Provider     string
	Model        string
	SystemPrompt string
	Metadata     map[string]any
}

// CreateSession persists a new session. When a system prompt is given
// it is frozen into the session and recorded as the first transcript
// message.
func (s *Service) CreateSession(ctx context.Context, p CreateSessionParams) (*models.Session, error) {
	session := &models.Session{
		ID:           p.ID,
		Title:        p.Title,
		ParentID:     p.ParentID,
		Provider:     p.Provider,
		Model:        p.Model,
		SystemPrompt: p.SystemPrompt,
		Metadata:     p.Metadata,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	if p.SystemPrompt != "" {
		if err := s.store.AddMessage(ctx, &models.Message{
			ID:        uuid.NewString(),
			SessionID: session.ID,
			Role:      models.RoleSystem,
			Content:   p.SystemPrompt,
			CreatedAt: time.Now(),
		}); err != nil {
			return nil, err
		}
	}
	s.logger.Info(ctx, "session created", "session_id", session.ID, "title", session.Title)
	return s.store.GetSession(ctx, session.ID)
}

// GetSession returns a session with its full message history.
func (s *Service) GetSession(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.GetSessionMessages(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	session.Messages = msgs
	return session, nil
}

// ListSessions lists sessions ordered by recent activity.
func (s *Service) ListSessions(ctx context.Context, opts sessions.ListOptions) ([]*models.Session, error) {
	return s.store.ListSessions(ctx, opts)
}

// ArchiveSession moves a session to the archived state.
func (s *Service) ArchiveSession(ctx context.Context, id string) error {
	status := models.SessionArchived
	return s.store.UpdateSession(ctx, id, sessions.SessionUpdate{Status: &status})
}

// DeleteSession removes a session and its history.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	return s.store.DeleteSession(ctx, id)
}

// SendOptions tunes a single SendMessage call.
type SendOptions struct {
	// Provider overrides the session's provider for this turn.
	Provider string

	// Model overrides the session's model for this turn.
	Model string

	// SystemPrompt seeds the session when SendMessage has to create it.
	SystemPrompt string
}

// SendMessage runs one turn: the session is created on first use, the
// user content is appended, and the turn loop runs to the final
// assistant reply. A concurrent send to the same session queues behind
// the active turn.
func (s *Service) SendMessage(ctx context.Context, sessionID, content string, opts SendOptions) (*models.Message, error) {
	if content == "" {
		return nil, errdefs.New(errdefs.CodeValidationError, "message content is required")
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if errdefs.IsCode(err, errdefs.CodeSessionNotFound) {
		prompt := opts.SystemPrompt
		if prompt == "" {
			prompt = s.defaultPrompt
		}
		session, err = s.CreateSession(ctx, CreateSessionParams{
			ID:           sessionID,
			Provider:     opts.Provider,
			Model:        opts.Model,
			SystemPrompt: prompt,
		})
	}
	if err != nil {
		return nil, err
	}

	providerName := opts.Provider
	if providerName == "" {
		providerName = session.Provider
	}
	if providerName == "" {
		s.mu.RLock()
		providerName = s.defaultProvider
		s.mu.RUnlock()
	}
	provider, err := s.Provider(providerName)
	if err != nil {
		return nil, err
	}

	model := opts.Model
	if model == "" {
		model = session.Model
	}

	return s.orch.Run(ctx, session.ID, provider, model, content)
}

// UpdateSystemPrompt forks a session: the system prompt is frozen at
// creation, so a new prompt yields a child session pointing back at the
// original via ParentID.
func (s *Service) UpdateSystemPrompt(ctx context.Context, sessionID, prompt string) (*models.Session, error) {
	if prompt == "" {
		return nil, errdefs.New(errdefs.CodeValidationError, "system prompt is required")
	}
	parent, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.CreateSession(ctx, CreateSessionParams{
		Title:        parent.Title,
		ParentID:     parent.ID,
		Provider:     parent.Provider,
		Model:        parent.Model,
		SystemPrompt: prompt,
		Metadata:     parent.Metadata,
	})
}

// Abort cancels the active turn on a session, if any.
func (s *Service) Abort(sessionID string) bool {
	return s.orch.Abort(sessionID)
}

// Health reports the backing store's health.
func (s *Service) Health(ctx context.Context) (*sessions.Health, error) {
	return s.store.Health(ctx)
}
