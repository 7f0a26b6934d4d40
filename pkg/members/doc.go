// Package members is the only writer of role assignments.
//
// Every mutation checks its preconditions in a fixed order and returns the
// first failure: the subject and scope must resolve, an actor may never
// change its own role, and the requester must outrank both the current and
// the new role. Project mutations run the last-owner check inside the write
// transaction against the persisted roster, so two concurrent demotions of
// the final OWNER cannot both succeed.
//
// After a write commits the service appends an audit event, pushes fresh
// claims to the identity provider and drops the actor's cached role
// snapshot. These steps are best-effort: a failure is reported as a warning
// on the result and counted, and never rolls the role change back.
package members
