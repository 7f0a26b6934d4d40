// Package rbac holds the permission model and the authorization decision
// procedure for tenantguard.
//
// # Overview
//
// Authorization works over two nested scopes. Every actor has exactly one
// organization and one organization role; inside an organization an actor may
// additionally hold a role in any number of projects.
//
//	SUPER_ADMIN > ORG_ADMIN > MANAGER > USER > VIEWER   (OrgRole)
//	OWNER > ADMIN > MEMBER > VIEWER                       (ProjectRole)
//
// # Permission Catalog
//
// Permissions are a closed set of named capabilities (PermManageProject,
// PermEditContent, ...). OrgPermissions and ProjectPermissions are the only
// mapping from a role to what it may do. SUPER_ADMIN maps to the sentinel
// returned by AllPermissionSet, so new permissions are granted to it without
// editing any table.
//
// # Decisions
//
// Engine.Decide answers "may this actor hold these permissions here":
//
//	decision, err := engine.Decide(ctx, actorID,
//		rbac.NewPermissionSet(rbac.PermManageProject),
//		rbac.Scope{OrganizationID: orgID, ProjectID: &projectID},
//	)
//	if err != nil || !decision.Allowed {
//		// deny
//	}
//
// Organization authority and project membership are alternative grant paths.
// Either one covering the whole required set allows the request; an ORG_ADMIN
// needs no membership row to manage a project in its own organization, and a
// project OWNER needs no organization permission to manage its own project.
//
// The engine reads role assignments on every call. Nothing here caches roles;
// the cache in package rolecache is for display only.
//
// # Role Hierarchy
//
// CanAssign and CanAssignProjectRole describe who may grant which role.
// CheckOrgTransition and CheckProjectTransition additionally require the
// requester to be able to grant the subject's current role, so an ORG_ADMIN
// cannot demote a peer. CheckSelfModification and CheckLastOwner are the two
// structural guards every mutation applies.
//
// # Errors
//
// All failures are sentinel errors (ErrInvalidTransition, ErrSelfModification,
// ErrLastOwner, ...) or *PermissionDeniedError, which matches
// ErrPermissionDenied under errors.Is.
package rbac
