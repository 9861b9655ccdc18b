package storage

import (
	"fmt"
	"strings"
)

// Collection names.
const (
	UsersCollection       = "users"
	GroupsCollection      = "groups"
	CredentialsCollection = "credentials"
)

// TransactionsCollection returns the path of a group's transaction subcollection.
func TransactionsCollection(groupID string) string {
	return GroupsCollection + "/" + groupID + "/transactions"
}

// DocPath joins a collection path and a document ID.
func DocPath(collection, id string) string {
	return collection + "/" + id
}

// SplitDocPath splits a document path into its collection and ID.
// Collection paths have an odd number of segments, document paths an even one.
func SplitDocPath(docPath string) (collection, id string, err error) {
	segments := strings.Split(docPath, "/")
	if len(segments) < 2 || len(segments)%2 != 0 {
		return "", "", fmt.Errorf("invalid document path: %q", docPath)
	}
	for _, s := range segments {
		if s == "" {
			return "", "", fmt.Errorf("invalid document path: %q", docPath)
		}
	}
	i := strings.LastIndex(docPath, "/")
	return docPath[:i], docPath[i+1:], nil
}

// ValidCollection reports whether path names a collection (odd, non-empty segments).
func ValidCollection(path string) bool {
	segments := strings.Split(path, "/")
	if len(segments)%2 != 1 {
		return false
	}
	for _, s := range segments {
		if s == "" {
			return false
		}
	}
	return true
}
