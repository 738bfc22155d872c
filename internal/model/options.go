package model

import "strings"

// DisplayMode selects whether the panel shows one record or the whole set.
type DisplayMode string

const (
	ModeSingle DisplayMode = "single"
	ModeMulti  DisplayMode = "multi"
)

// ParseMode validates a persisted or user-supplied mode.
func ParseMode(s string) (DisplayMode, bool) {
	switch DisplayMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSingle:
		return ModeSingle, true
	case ModeMulti:
		return ModeMulti, true
	default:
		return "", false
	}
}

// Option keys persisted through the host.
const (
	OptionMode         = "mode"
	OptionMapSource    = "mapSource"
	OptionMapCopyright = "mapCopyright"
)

// Defaults for the tile layer.
const (
	DefaultMapSource    = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"
	DefaultMapCopyright = `<a href="https://www.openstreetmap.org">Openstreetmap</a>`
)

// Options are the persisted panel settings.
type Options struct {
	Mode         DisplayMode `json:"mode"`
	MapSource    string      `json:"mapSource"`
	MapCopyright string      `json:"mapCopyright"`
}

// Merge overlays the keys present in raw onto o. Unknown keys and
// invalid modes are ignored.
func (o Options) Merge(raw map[string]any) Options {
	if raw == nil {
		return o
	}
	if s, ok := raw[OptionMode].(string); ok {
		if m, ok := ParseMode(s); ok {
			o.Mode = m
		}
	}
	if s, ok := raw[OptionMapSource].(string); ok && s != "" {
		o.MapSource = s
	}
	if s, ok := raw[OptionMapCopyright].(string); ok && s != "" {
		o.MapCopyright = s
	}
	return o
}

// AccessFull is the only access level that allows writes.
const AccessFull = "full"

// Access describes the panel's permissions on the host document.
type Access struct {
	Level string `json:"accessLevel"`
}

// CanWrite reports whether the panel may issue mutation requests.
func (a Access) CanWrite() bool {
	return a.Level == AccessFull
}
