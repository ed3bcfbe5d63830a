package change

import "sort"

// DataType identifies one syncable category of browser data.
type DataType string

const (
	Bookmarks DataType = "bookmarks"
	History   DataType = "history"
	Settings  DataType = "settings"
	Passwords DataType = "passwords"
	OpenTabs  DataType = "open_tabs"
)

// priorities: lower value syncs first. Settings and passwords go ahead of
// bulky types so a short window still propagates the critical data.
var priorities = map[DataType]int{
	Settings:  1,
	Passwords: 2,
	Bookmarks: 3,
	OpenTabs:  4,
	History:   5,
}

var encrypted = map[DataType]bool{
	Settings:  true,
	Passwords: true,
}

// Valid reports whether dt is a known data type.
func (dt DataType) Valid() bool {
	_, ok := priorities[dt]
	return ok
}

// Priority returns the fixed sync priority (lower = synced first).
func (dt DataType) Priority() int {
	return priorities[dt]
}

// RequiresEncryption reports whether payloads of this type must be sealed
// before leaving the device.
func (dt DataType) RequiresEncryption() bool {
	return encrypted[dt]
}

// AllDataTypes returns every known type in ascending priority order.
func AllDataTypes() []DataType {
	out := make([]DataType, 0, len(priorities))
	for dt := range priorities {
		out = append(out, dt)
	}
	SortByPriority(out)
	return out
}

// SortByPriority orders types ascending by priority, in place.
func SortByPriority(types []DataType) {
	sort.Slice(types, func(i, j int) bool {
		return types[i].Priority() < types[j].Priority()
	})
}
