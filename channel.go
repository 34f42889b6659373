package cometd

import "strings"

// Channel represents a Bayeux Channel which is defined as "a string that
// looks like a URL path such as `/foo/bar`, `/meta/connect`, or
// `/service/chat`." Channels are plain values: equality and matching are
// structural.
//
// See also: https://docs.cometd.org/current/reference/#_concepts_channels
type Channel string

const (
	// MetaHandshake is the Channel for the first message a new client sends.
	MetaHandshake Channel = "/meta/handshake"
	// MetaConnect is the Channel used for connect messages after a successful
	// handshake.
	MetaConnect Channel = "/meta/connect"
	// MetaDisconnect is the Channel used for disconnect messages.
	MetaDisconnect Channel = "/meta/disconnect"
	// MetaSubscribe is the Channel used by a client to subscribe to channels.
	MetaSubscribe Channel = "/meta/subscribe"
	// MetaUnsubscribe is the Channel used by a client to unsubscribe to
	// channels.
	MetaUnsubscribe Channel = "/meta/unsubscribe"
	emptyChannel    Channel = ""
)

// ChannelType is used to define the three types of channels:
// - meta channels, channels starting with `/meta/`
// - service channels, channels starting with `/service/`
// - broadcast channels, all other channels
type ChannelType string

const (
	// MetaChannel represents the `/meta/` channel type
	MetaChannel ChannelType = "meta"
	// ServiceChannel represents the `/service/` channel type
	ServiceChannel ChannelType = "service"
	// BroadcastChannel represents all other channels
	BroadcastChannel ChannelType = "broadcast"
)

const (
	metaPrefix    string = "/meta/"
	servicePrefix string = "/service/"

	wild     = "*"
	deepWild = "**"
)

// Type provides the type of Channel this struct represents
func (c Channel) Type() ChannelType {
	s := string(c)
	switch {
	case strings.HasPrefix(s, metaPrefix):
		return MetaChannel
	case strings.HasPrefix(s, servicePrefix):
		return ServiceChannel
	default:
		return BroadcastChannel
	}
}

// IsMeta reports whether c is a /meta/ channel
func (c Channel) IsMeta() bool { return c.Type() == MetaChannel }

// IsService reports whether c is a /service/ channel
func (c Channel) IsService() bool { return c.Type() == ServiceChannel }

// Segments splits the channel into its path segments. The leading slash does
// not produce an empty first segment.
func (c Channel) Segments() []string {
	s := strings.TrimPrefix(string(c), "/")
	if s == "" {
		return nil
	}
	return strings.Split(s, "/")
}

func (c Channel) last() string {
	s := string(c)
	return s[strings.LastIndexByte(s, '/')+1:]
}

// IsWild reports whether the last segment of c is the single wildcard `*`
func (c Channel) IsWild() bool { return c.last() == wild }

// IsDeepWild reports whether the last segment of c is the deep wildcard `**`
func (c Channel) IsDeepWild() bool { return c.last() == deepWild }

// HasWildcard indicates whether the Channel ends with * or **
//
// See also: https://docs.cometd.org/current/reference/#_concepts_channels_wild
func (c Channel) HasWildcard() bool {
	return c.IsWild() || c.IsDeepWild()
}

// IsValid does its best to check the validity of a Channel: it must start
// with a slash, have no empty segments and may only carry a wildcard as its
// whole last segment.
func (c Channel) IsValid() bool {
	if !strings.HasPrefix(string(c), "/") {
		return false
	}
	segments := c.Segments()
	if len(segments) == 0 {
		return false
	}
	for i, seg := range segments {
		if seg == "" {
			return false
		}
		if strings.Contains(seg, "*") && (i != len(segments)-1 || (seg != wild && seg != deepWild)) {
			return false
		}
	}
	return true
}

// Parent returns the channel one level up, or the empty channel for a
// top-level channel.
func (c Channel) Parent() Channel {
	s := string(c)
	i := strings.LastIndexByte(s, '/')
	if i <= 0 {
		return emptyChannel
	}
	return Channel(s[:i])
}

// Match checks if a given Channel matches this Channel. A `*` segment
// matches exactly one segment at that position and `**` matches one or more
// trailing segments. Wildcards are only valid after the last /.
//
// See also: https://docs.cometd.org/current/reference/#_concepts_channels_wild
func (c Channel) Match(other Channel) bool {
	if !c.HasWildcard() {
		return c == other
	}
	if !c.IsValid() {
		return false
	}
	pattern := c.Segments()
	target := other.Segments()
	prefix := len(pattern) - 1
	switch {
	case c.IsWild() && len(target) != len(pattern):
		return false
	case c.IsDeepWild() && len(target) < len(pattern):
		return false
	}
	for i := 0; i < prefix; i++ {
		if pattern[i] != target[i] {
			return false
		}
	}
	return true
}

// MatchString checks if a given string matches this Channel.
func (c Channel) MatchString(other string) bool {
	return c.Match(Channel(other))
}
