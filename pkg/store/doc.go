// Package store persists organizations, actors, projects and project
// memberships for PostgreSQL and SQLite.
//
// SQLStore implements rbac.Assignments, so the decision engine reads the
// current role assignment from the database on every call.
//
// Role mutations are optimistic. Actors carry a role_version and projects a
// member_version; UpdateActorRole and ApplyMembershipChange only write when
// the version still matches what the caller observed, and return
// rbac.ErrConflictingMutation otherwise. ApplyMembershipChange re-reads the
// membership row and OWNER count inside its transaction and passes them to a
// MembershipVerifier, which is where the last-owner guard runs.
//
// Driver errors are classified into rbac sentinels: unique violations,
// PostgreSQL serialization failures and SQLite busy/locked errors.
package store
