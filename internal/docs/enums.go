package docs

import (
	"fmt"
	"strings"
)

// ContentType classifies what a chunk of documentation is for.
type ContentType int

const (
	ContentOverview ContentType = iota
	ContentTutorial
	ContentReference
	ContentExample
	ContentConfiguration
	ContentTroubleshooting
	ContentMigration
	ContentChangelog
)

var contentTypeNames = [...]string{
	ContentOverview:        "overview",
	ContentTutorial:        "tutorial",
	ContentReference:       "reference",
	ContentExample:         "example",
	ContentConfiguration:   "configuration",
	ContentTroubleshooting: "troubleshooting",
	ContentMigration:       "migration",
	ContentChangelog:       "changelog",
}

// ContentTypes returns every content type in declaration order.
func ContentTypes() []ContentType {
	out := make([]ContentType, len(contentTypeNames))
	for i := range contentTypeNames {
		out[i] = ContentType(i)
	}
	return out
}

func (c ContentType) String() string {
	if c < 0 || int(c) >= len(contentTypeNames) {
		return fmt.Sprintf("ContentType(%d)", int(c))
	}
	return contentTypeNames[c]
}

// ParseContentType accepts the lowercase or capitalised name of a content type.
func ParseContentType(s string) (ContentType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range contentTypeNames {
		if n == name {
			return ContentType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown content type %q", ErrInvalidInput, s)
}

func (c ContentType) MarshalText() ([]byte, error) {
	if c < 0 || int(c) >= len(contentTypeNames) {
		return nil, fmt.Errorf("%w: content type %d out of range", ErrInvalidInput, int(c))
	}
	return []byte(contentTypeNames[c]), nil
}

func (c *ContentType) UnmarshalText(b []byte) error {
	v, err := ParseContentType(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// LibraryStatus tracks where a library is in the indexing lifecycle.
type LibraryStatus int

const (
	StatusPending LibraryStatus = iota
	StatusProcessing
	StatusIndexed
	StatusFailed
	StatusOutdated
)

var libraryStatusNames = [...]string{
	StatusPending:    "pending",
	StatusProcessing: "processing",
	StatusIndexed:    "indexed",
	StatusFailed:     "failed",
	StatusOutdated:   "outdated",
}

func (s LibraryStatus) String() string {
	if s < 0 || int(s) >= len(libraryStatusNames) {
		return fmt.Sprintf("LibraryStatus(%d)", int(s))
	}
	return libraryStatusNames[s]
}

func ParseLibraryStatus(s string) (LibraryStatus, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range libraryStatusNames {
		if n == name {
			return LibraryStatus(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown library status %q", ErrInvalidInput, s)
}

func (s LibraryStatus) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(libraryStatusNames) {
		return nil, fmt.Errorf("%w: library status %d out of range", ErrInvalidInput, int(s))
	}
	return []byte(libraryStatusNames[s]), nil
}

func (s *LibraryStatus) UnmarshalText(b []byte) error {
	v, err := ParseLibraryStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// SessionStatus is the lifecycle state of a chat session.
type SessionStatus int

const (
	SessionActive SessionStatus = iota
	SessionArchived
	SessionDeleted
)

var sessionStatusNames = [...]string{
	SessionActive:   "active",
	SessionArchived: "archived",
	SessionDeleted:  "deleted",
}

func (s SessionStatus) String() string {
	if s < 0 || int(s) >= len(sessionStatusNames) {
		return fmt.Sprintf("SessionStatus(%d)", int(s))
	}
	return sessionStatusNames[s]
}

func ParseSessionStatus(s string) (SessionStatus, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range sessionStatusNames {
		if n == name {
			return SessionStatus(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown session status %q", ErrInvalidInput, s)
}

func (s SessionStatus) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(sessionStatusNames) {
		return nil, fmt.Errorf("%w: session status %d out of range", ErrInvalidInput, int(s))
	}
	return []byte(sessionStatusNames[s]), nil
}

func (s *SessionStatus) UnmarshalText(b []byte) error {
	v, err := ParseSessionStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Role identifies the author of a chat message.
type Role int

const (
	RoleUser Role = iota
	RoleAssistant
	RoleSystem
)

var roleNames = [...]string{
	RoleUser:      "user",
	RoleAssistant: "assistant",
	RoleSystem:    "system",
}

func (r Role) String() string {
	if r < 0 || int(r) >= len(roleNames) {
		return fmt.Sprintf("Role(%d)", int(r))
	}
	return roleNames[r]
}

func ParseRole(s string) (Role, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range roleNames {
		if n == name {
			return Role(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
}

func (r Role) MarshalText() ([]byte, error) {
	if r < 0 || int(r) >= len(roleNames) {
		return nil, fmt.Errorf("%w: role %d out of range", ErrInvalidInput, int(r))
	}
	return []byte(roleNames[r]), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
