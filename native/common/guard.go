package common

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// Modules that can be paused independently.
const (
	ModuleVault       = "vault"
	ModulePositions   = "positions"
	ModuleLiquidation = "liquidation"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Pauses is an in-memory PauseView toggled by operators.
type Pauses struct {
	mu     sync.RWMutex
	paused map[string]bool
}

// NewPauses returns a switch board with the given modules already paused.
func NewPauses(modules ...string) *Pauses {
	p := &Pauses{paused: make(map[string]bool)}
	for _, module := range modules {
		p.Set(module, true)
	}
	return p
}

// Set pauses or resumes module.
func (p *Pauses) Set(module string, paused bool) {
	module = strings.ToLower(strings.TrimSpace(module))
	if module == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if paused {
		p.paused[module] = true
		return
	}
	delete(p.paused, module)
}

func (p *Pauses) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[strings.ToLower(module)]
}

// Paused lists the paused modules in name order.
func (p *Pauses) Paused() []string {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.paused))
	for module := range p.paused {
		out = append(out, module)
	}
	sort.Strings(out)
	return out
}
