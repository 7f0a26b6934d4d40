package store

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// Path segments that introduce an organization or project selector in
// request URLs. A slug equal to one of them would read as a marker.
const (
	OrganizationSegment = "organization"
	ProjectsSegment     = "projects"
)

const maxSlugLength = 64

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ValidateSlug checks that slug can appear as a path selector. Numeric slugs
// are rejected because numeric selectors resolve as IDs.
func ValidateSlug(kind, slug string) error {
	if len(slug) > maxSlugLength || !slugPattern.MatchString(slug) {
		return fmt.Errorf("%w: %s slug must be lowercase letters, digits and hyphens", rbac.ErrInvalidInput, kind)
	}
	if _, err := strconv.ParseInt(slug, 10, 64); err == nil {
		return fmt.Errorf("%w: %s slug must not be numeric", rbac.ErrInvalidInput, kind)
	}
	if slug == OrganizationSegment || slug == ProjectsSegment {
		return fmt.Errorf("%w: %s slug %q is reserved", rbac.ErrInvalidInput, kind, slug)
	}
	return nil
}
