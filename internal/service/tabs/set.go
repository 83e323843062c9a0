package tabs

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vertextoedge/browser-shell/internal/domain"
	"github.com/vertextoedge/browser-shell/internal/domain/event"
	"github.com/vertextoedge/browser-shell/internal/service/navigation"
)

const (
	// DefaultLabel is the label of a tab opened without one
	DefaultLabel = "New Tab"
	// HomeLabel is the label of the tab opened at startup
	HomeLabel = "Home"

	maxLabelRunes = 15
)

// ControllerFactory creates the navigation controller of a new tab
type ControllerFactory func(id string) *navigation.Controller

// Tab is a snapshot of one open tab
type Tab struct {
	ID      string `json:"id"`
	Index   int    `json:"index"`
	Label   string `json:"label"`
	URL     string `json:"url"`
	Current bool   `json:"current"`
}

type tab struct {
	id         string
	label      string
	controller *navigation.Controller
}

// Set holds the open tabs of a session. At least one tab stays open once
// the first has been opened.
type Set struct {
	homeURL       string
	newController ControllerFactory
	logger        *zap.Logger

	mu      sync.Mutex
	tabs    []*tab
	current int
}

// Ensure Set handles title events
var _ event.EventHandler = (*Set)(nil)

// New creates an empty tab set
func New(homeURL string, factory ControllerFactory, logger *zap.Logger) *Set {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Set{
		homeURL:       homeURL,
		newController: factory,
		logger:        logger,
	}
}

// OpenHome opens the startup tab
func (s *Set) OpenHome() (Tab, error) {
	return s.Open("", HomeLabel)
}

// Open adds a tab, makes it current and starts loading url.
// An empty url opens the home page.
func (s *Set) Open(url, label string) (Tab, error) {
	if url == "" {
		url = s.homeURL
	}
	if label == "" {
		label = DefaultLabel
	}
	target, err := navigation.NormalizeURL(url)
	if err != nil {
		return Tab{}, err
	}

	id := uuid.NewString()
	t := &tab{id: id, label: label, controller: s.newController(id)}

	s.mu.Lock()
	s.tabs = append(s.tabs, t)
	s.current = len(s.tabs) - 1
	s.mu.Unlock()

	// outside the lock: engines may report titles back into the set
	if _, err := t.controller.Navigate(target); err != nil {
		return Tab{}, err
	}

	s.logger.Debug("tab opened", zap.String("tab_id", id), zap.String("url", target))
	return s.snapshot(id)
}

// Close closes the tab at index. The last open tab cannot be closed.
func (s *Set) Close(index int) error {
	s.mu.Lock()
	if len(s.tabs) < 2 {
		s.mu.Unlock()
		return domain.ErrLastTab
	}
	if index < 0 || index >= len(s.tabs) {
		s.mu.Unlock()
		return fmt.Errorf("%w: tab %d", domain.ErrNotFound, index)
	}
	t := s.tabs[index]
	s.tabs = append(s.tabs[:index], s.tabs[index+1:]...)
	if s.current >= len(s.tabs) || s.current > index {
		s.current--
	}
	if s.current < 0 {
		s.current = 0
	}
	s.mu.Unlock()

	t.controller.Stop()
	s.logger.Debug("tab closed", zap.String("tab_id", t.id))
	return nil
}

// Navigate loads raw in the tab at index with a fresh retry budget
func (s *Set) Navigate(index int, raw string) (string, error) {
	s.mu.Lock()
	if index < 0 || index >= len(s.tabs) {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: tab %d", domain.ErrNotFound, index)
	}
	c := s.tabs[index].controller
	s.mu.Unlock()

	return c.Navigate(raw)
}

// Controller returns the navigation controller of the tab with id
func (s *Set) Controller(id string) (*navigation.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tabs {
		if t.id == id {
			return t.controller, true
		}
	}
	return nil, false
}

// SetTitle relabels the tab with id. Unknown ids are ignored.
func (s *Set) SetTitle(id, title string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tabs {
		if t.id == id {
			t.label = TruncateLabel(title)
			return true
		}
	}
	return false
}

// List returns the open tabs in order
func (s *Set) List() []Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Tab, 0, len(s.tabs))
	for i, t := range s.tabs {
		out = append(out, s.tabLocked(i, t))
	}
	return out
}

// Len returns the number of open tabs
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tabs)
}

// Handle applies title changes reported by the navigation controllers
func (s *Set) Handle(e event.DomainEvent) error {
	if tc, ok := e.(event.NavigationTitleChanged); ok && tc.Title != "" {
		s.SetTitle(tc.ContextID, tc.Title)
	}
	return nil
}

// HandledEvents returns the events the set subscribes to
func (s *Set) HandledEvents() []string {
	return []string{event.NameNavigationTitle}
}

func (s *Set) snapshot(id string) (Tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tabs {
		if t.id == id {
			return s.tabLocked(i, t), nil
		}
	}
	// closed before Open returned
	return Tab{}, fmt.Errorf("%w: tab %s", domain.ErrNotFound, id)
}

func (s *Set) tabLocked(i int, t *tab) Tab {
	out := Tab{ID: t.id, Index: i, Label: t.label, Current: i == s.current}
	if a, ok := t.controller.Attempt(); ok {
		out.URL = a.URL
	}
	return out
}

// TruncateLabel shortens a page title to fit a tab
func TruncateLabel(title string) string {
	r := []rune(title)
	if len(r) <= maxLabelRunes {
		return title
	}
	return string(r[:maxLabelRunes]) + "..."
}
