package chat

import "github.com/samber/lo"

// DefaultChannels is the channel set every tenant gets.
var DefaultChannels = []ChannelName{
	"general",
	"rehearsals",
	"performances",
	"technical",
	"administration",
}

// Catalog is the fixed registry of channel names available to every tenant.
// It is built once at startup and never changes.
type Catalog struct {
	names []ChannelName
	set   map[ChannelName]struct{}
}

// NewCatalog creates a catalog with the given names in declaration order.
// Duplicates and empty names are dropped. With no names it falls back to
// DefaultChannels.
func NewCatalog(names ...ChannelName) *Catalog {
	if len(names) == 0 {
		names = DefaultChannels
	}
	names = lo.Uniq(lo.Compact(names))

	set := make(map[ChannelName]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return &Catalog{names: names, set: set}
}

// List returns a copy of the channel names.
func (c *Catalog) List() []ChannelName {
	return append([]ChannelName(nil), c.names...)
}

func (c *Catalog) Contains(name ChannelName) bool {
	_, ok := c.set[name]
	return ok
}
