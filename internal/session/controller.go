// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/ollamachat/internal/ingest"
	"github.com/jeranaias/ollamachat/internal/logging"
	"github.com/jeranaias/ollamachat/internal/model"
	"github.com/jeranaias/ollamachat/internal/ollama"
	"github.com/jeranaias/ollamachat/internal/storage"
)

// ApologyText replaces the assistant reply of a failed turn.
const ApologyText = "Sorry, I couldn't connect. Please ensure Ollama is running."

// Turn time limits used when the matching Options field is zero.
const (
	DefaultTurnTimeout  = 30 * time.Minute
	DefaultStallTimeout = 2 * time.Minute
)

// Precondition errors returned by SubmitPrompt and friends. The
// presentation layer treats them as disabled affordances.
var (
	ErrNoModel             = errors.New("no model selected")
	ErrEmptyPrompt         = errors.New("prompt is empty and nothing is attached")
	ErrTurnInFlight        = errors.New("a reply is still streaming")
	ErrUnknownConversation = errors.New("conversation not found")
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Inference starts streaming chat completions and lists models.
type Inference interface {
	StartChat(ctx context.Context, model string, messages []ollama.Message) (*ollama.Stream, error)
	ModelNames(ctx context.Context) ([]string, error)
}

// Ingestor resolves attachment references into text blocks and images.
type Ingestor interface {
	Resolve(ctx context.Context, refs []model.Attachment) ingest.Resolved
}

// Store persists the whole conversation collection.
type Store interface {
	Load() ([]*model.Conversation, error)
	Save(convs []*model.Conversation) error
	Delete(id string) error
}

// Options configures a Controller.
type Options struct {
	Inference Inference
	Ingest    Ingestor
	Store     Store
	Logger    *log.Logger

	// TurnTimeout caps a whole turn (default: 30 minutes). Expiry takes
	// the failed path.
	TurnTimeout time.Duration

	// StallTimeout bounds the wait for the response and for each stream
	// event after it (default: 2 minutes). Every event restarts the clock,
	// so a reply that keeps streaming is never cut off by it.
	StallTimeout time.Duration

	// PersistFailedTurns also saves apology messages of failed turns.
	PersistFailedTurns bool

	// Model is preselected when RefreshModels finds it installed.
	Model string
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns conversation state and runs chat turns. All methods are
// safe for concurrent use.
type Controller struct {
	mu sync.Mutex

	inference Inference
	ingest    Ingestor
	store     Store
	logger    *log.Logger

	turnTimeout   time.Duration
	stallTimeout  time.Duration
	persistFailed bool
	preferred     string

	convs    []*model.Conversation
	activeID string
	model    string
	models   []string

	state    TurnState
	turn     *turn
	nextTurn uint64
	idle     chan struct{}
	lastErr  error
	stats    *ollama.StreamStats

	subs    map[int]chan Snapshot
	nextSub int
}

// New creates a Controller. Call Load to read the store.
func New(opts Options) *Controller {
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = DefaultTurnTimeout
	}
	if opts.StallTimeout <= 0 {
		opts.StallTimeout = DefaultStallTimeout
	}
	if opts.Ingest == nil {
		opts.Ingest = ingest.New(ingest.Config{Logger: opts.Logger})
	}

	idle := make(chan struct{})
	close(idle)

	c := &Controller{
		inference:     opts.Inference,
		ingest:        opts.Ingest,
		store:         opts.Store,
		logger:        logging.Component(opts.Logger, "session"),
		turnTimeout:   opts.TurnTimeout,
		stallTimeout:  opts.StallTimeout,
		persistFailed: opts.PersistFailedTurns,
		preferred:     opts.Model,
		idle:          idle,
		subs:          make(map[int]chan Snapshot),
	}
	if !ollama.IsPlaceholder(opts.Model) {
		c.model = opts.Model
	}
	return c
}

// Load replaces the in-memory list with the store's contents. A read
// failure is logged and leaves an empty list.
func (c *Controller) Load() {
	var convs []*model.Conversation
	if c.store != nil {
		loaded, err := c.store.Load()
		if err != nil {
			c.logger.Warn("failed to load conversations", "err", err)
		} else {
			convs = loaded
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if convs == nil {
		convs = []*model.Conversation{}
	}
	c.convs = convs
	c.activeID = ""
	c.publishLocked()
}

// Close cancels any turn in flight and closes all subscriptions.
func (c *Controller) Close() {
	c.CancelActiveTurn()

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
}

// =============================================================================
// PROMPTS
// =============================================================================

// SubmitPrompt starts a turn on the active conversation, creating one when
// none is active. It returns once the turn is running; progress is
// observable through Subscribe and Snapshot.
func (c *Controller) SubmitPrompt(prompt string, files []model.Attachment) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ollama.IsPlaceholder(c.model) {
		return ErrNoModel
	}
	if strings.TrimSpace(prompt) == "" && len(files) == 0 {
		return ErrEmptyPrompt
	}
	if c.turn != nil {
		return ErrTurnInFlight
	}

	conv := c.activeLocked()
	if conv == nil {
		conv = model.NewConversation(prompt, files)
		c.convs = append([]*model.Conversation{conv}, c.convs...)
		c.activeID = conv.ID
	}

	if _, err := conv.AppendUser(prompt, files); err != nil {
		return err
	}
	history := cloneMessages(conv.History())
	if _, err := conv.AppendProvisional(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.turnTimeout)
	c.nextTurn++
	t := &turn{
		id:     c.nextTurn,
		conv:   conv,
		model:  c.model,
		ctx:    ctx,
		cancel: cancel,
	}
	c.turn = t
	c.state = StateSending
	c.lastErr = nil
	c.idle = make(chan struct{})
	c.publishLocked()

	c.logger.Debug("turn started", "turn", t.id, "conversation", conv.ID, "model", t.model, "history", len(history))

	go c.runTurn(t, history)
	return nil
}

// CancelActiveTurn stops the turn in flight and removes its provisional
// reply. It returns false when no turn is running.
func (c *Controller) CancelActiveTurn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.turn
	if t == nil {
		return false
	}

	c.state = StateCanceling
	c.publishLocked()

	t.stop()
	t.conv.RollbackLast()
	c.logger.Debug("turn canceled", "turn", t.id, "conversation", t.conv.ID)

	c.finishLocked(t)
	return true
}

// Wait blocks until no turn is in flight or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// SelectConversation makes id the active conversation. Leaving an
// uncommitted conversation drops it from memory.
func (c *Controller) SelectConversation(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id == c.activeID {
		return nil
	}
	if c.findLocked(id) < 0 {
		return ErrUnknownConversation
	}
	c.abandonLocked()
	c.activeID = id
	c.publishLocked()
	return nil
}

// StartNewConversation clears the active conversation. Nothing is created
// until the first prompt is sent.
func (c *Controller) StartNewConversation() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.abandonLocked()
	c.activeID = ""
	c.publishLocked()
}

// RenameConversation sets a conversation's title. A blank title becomes
// model.DefaultTitle. Committed conversations are saved immediately.
func (c *Controller) RenameConversation(id, title string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.findLocked(id)
	if i < 0 {
		return ErrUnknownConversation
	}
	conv := c.convs[i]
	conv.Title = model.NormalizeTitle(title)
	if conv.Committed {
		c.saveLocked()
	}
	c.publishLocked()
	return nil
}

// DeleteConversation removes a conversation from memory and the store. A
// turn running on it is canceled. Deleting the active conversation leaves
// no conversation active.
func (c *Controller) DeleteConversation(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.findLocked(id)
	if i < 0 {
		return ErrUnknownConversation
	}
	conv := c.convs[i]

	if t := c.turn; t != nil && t.conv == conv {
		t.stop()
		c.finishLocked(t)
	}

	// finishLocked may already have dropped an uncommitted conversation.
	if i = c.findLocked(id); i >= 0 {
		c.convs = append(c.convs[:i], c.convs[i+1:]...)
	}
	if c.activeID == id {
		c.activeID = ""
	}

	if conv.Committed && c.store != nil {
		if err := c.store.Delete(id); err != nil {
			if errors.Is(err, storage.ErrConversationNotFound) {
				c.logger.Debug("conversation was not in store", "conversation", id)
			} else {
				c.logger.Warn("failed to delete conversation", "conversation", id, "err", err)
			}
		}
	}
	c.publishLocked()
	return nil
}

// =============================================================================
// MODELS
// =============================================================================

// SetModel selects the model for subsequent turns. Placeholders are
// rejected with ErrNoModel.
func (c *Controller) SetModel(name string) error {
	if ollama.IsPlaceholder(name) {
		return ErrNoModel
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = name
	c.publishLocked()
	return nil
}

// RefreshModels reloads the model list. The current selection is kept
// when still installed; otherwise the preferred model, then the first
// listed one, is chosen. The placeholder is never selected.
func (c *Controller) RefreshModels(ctx context.Context) ([]string, error) {
	if c.inference == nil {
		return []string{ollama.NoModelsPlaceholder}, ErrNoModel
	}
	names, err := c.inference.ModelNames(ctx)
	if err != nil {
		c.logger.Warn("failed to list models", "err", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.models = append([]string(nil), names...)
	c.model = pickModel(names, c.model, c.preferred)
	c.publishLocked()
	return names, err
}

func pickModel(names []string, current, preferred string) string {
	installed := func(name string) bool {
		if ollama.IsPlaceholder(name) {
			return false
		}
		for _, n := range names {
			if n == name {
				return true
			}
		}
		return false
	}

	switch {
	case installed(current):
		return current
	case installed(preferred):
		return preferred
	}
	for _, n := range names {
		if !ollama.IsPlaceholder(n) {
			return n
		}
	}
	return ""
}

// =============================================================================
// READ MODEL
// =============================================================================

// Snapshot returns a deep copy of the session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe returns a channel that receives the latest Snapshot after
// every change, starting with the current one. Slow readers only see the
// most recent state. The returned func unsubscribes.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, 1)
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				close(sub)
				delete(c.subs, id)
			}
		})
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	convs := make([]*model.Conversation, len(c.convs))
	for i, conv := range c.convs {
		convs[i] = conv.Clone()
	}
	return Snapshot{
		Conversations: convs,
		ActiveID:      c.activeID,
		State:         c.state,
		Model:         c.model,
		Models:        append([]string(nil), c.models...),
		LastError:     c.lastErr,
		Stats:         c.stats,
	}
}

// publishLocked hands the current snapshot to every subscriber, replacing
// any snapshot they have not read yet.
func (c *Controller) publishLocked() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Controller) activeLocked() *model.Conversation {
	if c.activeID == "" {
		return nil
	}
	if i := c.findLocked(c.activeID); i >= 0 {
		return c.convs[i]
	}
	return nil
}

func (c *Controller) findLocked(id string) int {
	for i, conv := range c.convs {
		if conv.ID == id {
			return i
		}
	}
	return -1
}

// abandonLocked drops the active conversation if it was never committed
// and no turn is writing into it.
func (c *Controller) abandonLocked() {
	conv := c.activeLocked()
	if conv == nil || conv.Committed {
		return
	}
	if c.turn != nil && c.turn.conv == conv {
		return
	}
	if i := c.findLocked(conv.ID); i >= 0 {
		c.convs = append(c.convs[:i], c.convs[i+1:]...)
	}
}

// saveLocked writes every committed conversation. Failures are logged.
func (c *Controller) saveLocked() {
	if c.store == nil {
		return
	}
	out := make([]*model.Conversation, 0, len(c.convs))
	for _, conv := range c.convs {
		if !conv.Committed {
			continue
		}
		out = append(out, &model.Conversation{
			ID:        conv.ID,
			Title:     conv.Title,
			Messages:  cloneMessages(conv.Persistable(c.persistFailed)),
			CreatedAt: conv.CreatedAt,
			Committed: true,
		})
	}
	if err := c.store.Save(out); err != nil {
		c.logger.Warn("failed to save conversations", "err", err)
	}
}

// finishLocked returns the session to Idle after t ends. A conversation
// the user left while its first turn was running is dropped here, since
// abandonLocked skipped it.
func (c *Controller) finishLocked(t *turn) {
	if c.turn != t {
		return
	}
	t.cancel()
	c.turn = nil
	c.state = StateIdle
	if !t.conv.Committed && t.conv.ID != c.activeID {
		if i := c.findLocked(t.conv.ID); i >= 0 {
			c.convs = append(c.convs[:i], c.convs[i+1:]...)
		}
	}
	close(c.idle)
	c.publishLocked()
}

func cloneMessages(msgs []*model.Message) []*model.Message {
	out := make([]*model.Message, len(msgs))
	for i, msg := range msgs {
		out[i] = msg.Clone()
	}
	return out
}
