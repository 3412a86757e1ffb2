package view

import "sync"

const MenuHiddenClass = "menu-hidden"

// Menu owns the visibility of the navigation menu. The body class is only a
// projection of this state.
type Menu struct {
	mu     sync.RWMutex
	hidden bool
}

// NewMenu returns a menu that starts hidden
func NewMenu() *Menu {
	return &Menu{hidden: true}
}

// Toggle flips the visibility and returns the new hidden state
func (m *Menu) Toggle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hidden = !m.hidden
	return m.hidden
}

func (m *Menu) Hidden() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hidden
}

// BodyClass is the class rendered on <body> for the current state
func (m *Menu) BodyClass() string {
	if m.Hidden() {
		return MenuHiddenClass
	}
	return ""
}
