// Package models defines the ledger model shared by every layer of splitledger.
//
// # Ownership
//
// The authoritative data lives in the document store:
//   - User: one document per registered person, never deleted
//   - Group: name plus the set of member IDs (membership only grows)
//   - Transaction: an Expense or a Settlement, stored under its group
//
// Group.Members and Group.Transactions are derived. They are filled in by the
// synchronization coordinator from the latest snapshots and are never written back.
//
// # Design Principles
//
//  1. **Explicit variants**: a Transaction carries a Kind discriminant and exactly one
//     of Expense or Settlement. Code switches on Kind, never on which field is set.
//  2. **IDs over pointers**: relationships are expressed by ID strings so a snapshot
//     of one collection never needs another to be decoded.
//  3. **Fixed sign convention**: a positive Balance means "is owed", negative means "owes".
package models
