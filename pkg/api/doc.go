// Package api serves the administrative HTTP API for roles, projects and the
// role change audit trail.
//
// # Routes
//
// All routes live under /api/v1/organization/{org}, where {org} is a numeric
// ID or slug, and run behind middleware.Guard:
//
//	POST   /check                               any member
//	POST   /projects/{project}/check            any member
//	GET    /me/roles                            any member, cached for display
//	PUT    /members/{actor}/role                manage-users
//	POST   /members/roles:bulk                  manage-users
//	POST   /projects                            create-project
//	GET    /projects/{project}/members          view-content
//	POST   /projects/{project}/members/{actor}  manage-project-members
//	PUT    /projects/{project}/members/{actor}  manage-project-members
//	DELETE /projects/{project}/members/{actor}  manage-project-members
//	GET    /audit/role-changes                  manage-users
//
// The guard only establishes scope and coarse permission. Role hierarchy,
// self-modification and last-owner rules are enforced by pkg/members, so a
// request that passes the guard can still fail with 409 or 422.
//
// # Errors
//
// Every error body is httputil.ErrorResponse with a stable code. Denials add
// required_permissions, actor_role and reason.
package api
