package models

import "fmt"

// User represents a registered person in the user directory.
//
// A User document is created on first sign-in and mutated by profile edits.
// It is never deleted.
type User struct {
	// ID is the opaque identifier assigned at sign-in.
	ID string

	// Name is the display name of the user.
	Name string

	// AvatarURL points at the user's profile picture.
	AvatarURL string

	// Email is the user's email address, stored lower-cased.
	// Used by find-by-email and mail notifications.
	Email string

	// MonthlyLimit is the optional monthly spending limit. Nil means never set.
	MonthlyLimit *float64

	// NotificationPreferences is nil when the user never saved preferences,
	// in which case every flag defaults to true. Use Preferences to read it.
	NotificationPreferences *NotificationPreferences
}

// NotificationPreferences holds the three independent notification switches.
type NotificationPreferences struct {
	// OnAddedToTransaction notifies when someone else adds an expense that includes you.
	OnAddedToTransaction bool

	// OnGroupExpenseAdded notifies about new expenses in your groups.
	OnGroupExpenseAdded bool

	// OnSettlement notifies when someone pays you.
	OnSettlement bool
}

// DefaultNotificationPreferences returns preferences with every flag enabled.
func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{
		OnAddedToTransaction: true,
		OnGroupExpenseAdded:  true,
		OnSettlement:         true,
	}
}

// Preferences returns the user's notification preferences, falling back to
// DefaultNotificationPreferences when none were saved.
func (u User) Preferences() NotificationPreferences {
	if u.NotificationPreferences == nil {
		return DefaultNotificationPreferences()
	}
	return *u.NotificationPreferences
}

// DefaultAvatarURL returns the generated avatar used when sign-in provides none.
func DefaultAvatarURL(userID string) string {
	return fmt.Sprintf("https://i.pravatar.cc/150?u=%s", userID)
}
