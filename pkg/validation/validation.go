package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// Room ids are externally issued opaque strings; we only bound their
	// character set and length, never their structure.
	RoomIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	EmailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

const (
	MaxChatMessageLen = 2000
	MaxDisplayNameLen = 60
	MaxRoomIDLen      = 100
)

// ValidateRoomID checks the room identifier format.
func ValidateRoomID(id string) error {
	if id == "" {
		return fmt.Errorf("room id is required")
	}
	if len(id) > MaxRoomIDLen {
		return fmt.Errorf("room id is too long (max %d characters)", MaxRoomIDLen)
	}
	if !RoomIDRegex.MatchString(id) {
		return fmt.Errorf("room id contains invalid characters")
	}
	return nil
}

// ValidateChatMessage checks chat text before local echo and broadcast.
func ValidateChatMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("message is empty")
	}
	if utf8.RuneCountInString(text) > MaxChatMessageLen {
		return fmt.Errorf("message is too long (max %d characters)", MaxChatMessageLen)
	}
	return nil
}

func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("display name is required")
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLen {
		return fmt.Errorf("display name is too long (max %d characters)", MaxDisplayNameLen)
	}
	return nil
}

func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > 254 {
		return fmt.Errorf("email is too long (max 254 characters)")
	}
	if !EmailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password is required")
	}
	if len(password) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}
	if len(password) > 128 {
		return fmt.Errorf("password is too long (max 128 characters)")
	}
	return nil
}
