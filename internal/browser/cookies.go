package browser

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-rod/rod/lib/proto"
)

// StorageState is the cookie jar document, a Playwright storage-state file.
// The login command writes it, and jars captured by external tooling in the
// same format load unchanged. Only cookies matter to the archive's session;
// origins are parsed but unused.
type StorageState struct {
	Cookies []StoredCookie `json:"cookies"`
	Origins []StoredOrigin `json:"origins"`
}

// StoredCookie is one captured cookie.
type StoredCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// StoredOrigin is per-origin local storage captured alongside the cookies.
type StoredOrigin struct {
	Origin       string `json:"origin"`
	LocalStorage []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"localStorage"`
}

// ParseStorageState decodes a storage-state document.
func ParseStorageState(data []byte) (*StorageState, error) {
	var state StorageState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("invalid storage state: %w", err)
	}
	return &state, nil
}

// CookieParams converts the captured cookies into the form the browser's
// devtools protocol accepts. A non-positive expiry means a session cookie,
// so the field stays unset.
func (s *StorageState) CookieParams() []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		switch c.SameSite {
		case "Strict":
			p.SameSite = proto.NetworkCookieSameSiteStrict
		case "Lax":
			p.SameSite = proto.NetworkCookieSameSiteLax
		case "None":
			p.SameSite = proto.NetworkCookieSameSiteNone
		}
		params = append(params, p)
	}
	return params
}

// LoadCookieFile reads and converts a storage-state file in one step.
func LoadCookieFile(path string) ([]*proto.NetworkCookieParam, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cookie file: %w", err)
	}
	state, err := ParseStorageState(data)
	if err != nil {
		return nil, fmt.Errorf("parse cookie file %s: %w", path, err)
	}
	return state.CookieParams(), nil
}

// StorageStateFromCookies builds a storage-state document from a live
// browser's cookies. Session cookies are written with expires -1, which is
// what the capture tooling the jar format comes from emits.
func StorageStateFromCookies(cookies []*proto.NetworkCookie) *StorageState {
	state := &StorageState{Cookies: make([]StoredCookie, 0, len(cookies))}
	for _, c := range cookies {
		expires := float64(c.Expires)
		if c.Session || expires <= 0 {
			expires = -1
		}
		state.Cookies = append(state.Cookies, StoredCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return state
}

// SaveCookieFile writes the browser's cookies as a storage-state file that
// LoadCookieFile can read back. The jar holds a live member session, so it
// is written owner-only.
func SaveCookieFile(path string, cookies []*proto.NetworkCookie) error {
	data, err := json.MarshalIndent(StorageStateFromCookies(cookies), "", "  ")
	if err != nil {
		return fmt.Errorf("encode storage state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write cookie file: %w", err)
	}
	return nil
}
