// Package middleware provides the request guard that establishes who is
// calling, which tenant they are acting in and whether they may do it.
//
// # Guard Pipeline
//
// Guard.Require runs its stages in a fixed order and stops at the first
// failure:
//
//  1. authenticate: bearer token to an active, provisioned actor (401)
//  2. resolve_organization: path segment or the actor's own organization (404)
//  3. resolve_project: optional path segment, scoped to the organization (404)
//  4. authorize: rbac.Engine.Decide with live role reads (403)
//
// Tenant checks run before the permission check, so an actor probing another
// organization's resources sees 404 whether or not they exist. Only
// SUPER_ADMIN may resolve an organization other than its own.
//
//	guard := middleware.NewGuard(authenticator, store, engine)
//	router.Handle("/api/v1/organization/{org}/projects/{project}/members",
//	    guard.Require(rbac.PermManageProjectMembers)(handler))
//
// Handlers read the trusted scope with FromContext.
//
// # Rate Limiting
//
// RateLimit keys on the actor ID the guard stored in the context, so it must
// be wrapped inside Guard.Require:
//
//	guard.Require(rbac.PermManageUsers)(middleware.RateLimit(limiter, logger)(handler))
//
// LocalLimiter keeps per-process token buckets. RedisLimiter shares one fixed
// window per actor across replicas and fails open when Redis is unreachable.
package middleware
