// Package browser owns the authenticated Chrome context the retriever
// drives. It attaches to an already-running browser when a control URL is
// configured, or launches its own headless instance, and it injects the
// captured cookie jar into every page it opens. The jar may be rotated on
// disk between searches; the manager reloads it lazily.
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"caaasearch/internal/config"
	"caaasearch/internal/logging"
)

// Manager holds one browser connection and the current cookie jar.
type Manager struct {
	cfg config.BrowserConfig

	mu         sync.Mutex
	browser    *rod.Browser
	controlURL string
	cookies    []*proto.NetworkCookieParam
	watcher    *cookieWatcher
}

// NewManager returns an unstarted Manager.
func NewManager(cfg config.BrowserConfig) *Manager {
	return &Manager{cfg: cfg}
}

// Start connects to Chrome and loads the cookie jar. Calling Start on a
// healthy manager is a no-op; a dead connection is replaced.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		logging.BrowserWarn("Stale browser connection detected, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
		m.controlURL = ""
	}

	if m.cfg.CookieFile != "" {
		params, err := LoadCookieFile(m.cfg.CookieFile)
		if err != nil {
			return fmt.Errorf("cookie jar unavailable: %w", err)
		}
		m.cookies = params
		logging.Browser("Loaded %d cookies from %s", len(params), m.cfg.CookieFile)

		if m.watcher == nil {
			w, err := newCookieWatcher(m.cfg.CookieFile)
			if err != nil {
				logging.BrowserWarn("Cookie watcher unavailable, jar rotation will need a restart: %v", err)
			} else {
				m.watcher = w
				w.Start(ctx)
			}
		}
	}

	controlURL := m.cfg.ControlURL
	if controlURL == "" {
		url, err := launcher.New().Headless(m.cfg.Headless).Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = browser
	m.controlURL = controlURL
	logging.Browser("Browser connected")
	return nil
}

func (m *Manager) ensureStarted(ctx context.Context) error {
	m.mu.Lock()
	started := m.browser != nil
	m.mu.Unlock()
	if started {
		return nil
	}
	return m.Start(ctx)
}

// ControlURL returns the devtools URL of the connected browser.
func (m *Manager) ControlURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.controlURL
}

// IsConnected reports whether a browser connection exists.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser != nil
}

// OpenPage opens a new authenticated page and navigates it to url. The
// caller owns the page and must Close it. A cookie jar rotated on disk since
// the last call is reloaded first.
func (m *Manager) OpenPage(ctx context.Context, url string) (*rod.Page, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.reloadCookiesLocked()
	cookies := m.cookies
	browser := m.browser
	m.mu.Unlock()

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             1920,
		Height:            1080,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.BrowserWarn("Failed to set viewport: %v", err)
	}

	if len(cookies) > 0 {
		if err := page.SetCookies(cookies); err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("set cookies: %w", err)
		}
	}

	if err := page.Context(ctx).Timeout(m.cfg.GetNavTimeout()).Navigate(url); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("navigate to %s: %w", url, err)
	}

	return page, nil
}

// Cookies returns every cookie the connected browser currently holds,
// across all its pages. Used by the login capture flow to snapshot a
// freshly authenticated session.
func (m *Manager) Cookies(ctx context.Context) ([]*proto.NetworkCookie, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	browser := m.browser
	m.mu.Unlock()
	return browser.GetCookies()
}

// reloadCookiesLocked swaps in a freshly rotated jar. A broken replacement
// keeps the old cookies; the operator's refresh flow may still be writing.
func (m *Manager) reloadCookiesLocked() {
	if m.watcher == nil || !m.watcher.Stale() {
		return
	}
	params, err := LoadCookieFile(m.cfg.CookieFile)
	if err != nil {
		logging.BrowserWarn("Rotated cookie jar unreadable, keeping previous cookies: %v", err)
		return
	}
	m.cookies = params
	m.watcher.markFresh()
	logging.Browser("Reloaded %d cookies after jar rotation", len(params))
}

// Close tears down the watcher and the browser connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watcher != nil {
		m.watcher.Stop()
		m.watcher = nil
	}

	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	m.controlURL = ""
	return err
}
