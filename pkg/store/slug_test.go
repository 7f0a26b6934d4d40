package store_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/store"
	"github.com/platinummonkey/tenantguard/pkg/store/storetest"
)

func TestValidateSlug(t *testing.T) {
	tests := []struct {
		slug  string
		valid bool
	}{
		{"acme", true},
		{"docs-site", true},
		{"v2", true},
		{"", false},
		{"Docs", false},
		{"docs-", false},
		{"docs site", false},
		{"2024", false},
		{strings.Repeat("a", 65), false},
		{store.OrganizationSegment, false},
		{store.ProjectsSegment, false},
	}

	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			err := store.ValidateSlug("test", tt.slug)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, rbac.ErrInvalidInput)
		})
	}
}

func TestSQLStore_CreateOrganization_ReservedSlugs(t *testing.T) {
	s := storetest.NewSQLite(t)
	ctx := context.Background()

	for _, slug := range []string{store.OrganizationSegment, store.ProjectsSegment, "42", ""} {
		err := s.CreateOrganization(ctx, &store.Organization{Name: "Reserved", Slug: slug})
		assert.ErrorIs(t, err, rbac.ErrInvalidInput, slug)
	}

	_, err := s.GetOrganizationBySlug(ctx, store.ProjectsSegment)
	assert.ErrorIs(t, err, rbac.ErrTenantNotFound)
}

func TestSQLStore_CreateProject_ReservedSlug(t *testing.T) {
	s := storetest.NewSQLite(t)
	acme := storetest.Organization(t, s, "acme")
	bob := storetest.Actor(t, s, acme.ID, "bob", rbac.OrgRoleManager)

	_, err := s.CreateProject(context.Background(), &store.Project{OrganizationID: acme.ID, Name: "Projects", Slug: store.ProjectsSegment}, bob.ID)
	assert.ErrorIs(t, err, rbac.ErrInvalidInput)
}
