package gatekeeper_test

import (
	"testing"

	gatekeeper "github.com/goliatone/go-gatekeeper"
	"github.com/stretchr/testify/assert"
)

func TestRoleHierarchy(t *testing.T) {
	assert.True(t, gatekeeper.RoleAdmin.IsAtLeast(gatekeeper.RoleBasic))
	assert.True(t, gatekeeper.RoleAdmin.IsAtLeast(gatekeeper.RoleAdmin))
	assert.True(t, gatekeeper.RoleBasic.IsAtLeast(gatekeeper.RoleBasic))
	assert.False(t, gatekeeper.RoleBasic.IsAtLeast(gatekeeper.RoleAdmin))

	assert.False(t, gatekeeper.UserRole("owner").IsAtLeast(gatekeeper.RoleBasic))
	assert.False(t, gatekeeper.RoleAdmin.IsAtLeast(gatekeeper.UserRole("owner")))
}

func TestParseRole(t *testing.T) {
	role, ok := gatekeeper.ParseRole("admin")
	assert.True(t, ok)
	assert.Equal(t, gatekeeper.RoleAdmin, role)

	_, ok = gatekeeper.ParseRole("superuser")
	assert.False(t, ok)

	_, ok = gatekeeper.ParseRole("")
	assert.False(t, ok)
}

func TestNormalizePageRequest(t *testing.T) {
	req := gatekeeper.NormalizePageRequest(gatekeeper.PageRequest{})
	assert.Equal(t, gatekeeper.DefaultPage, req.Page)
	assert.Equal(t, gatekeeper.DefaultPageSize, req.Limit)

	req = gatekeeper.NormalizePageRequest(gatekeeper.PageRequest{Page: -3, Limit: 5000})
	assert.Equal(t, gatekeeper.DefaultPage, req.Page)
	assert.Equal(t, gatekeeper.MaxPageSize, req.Limit)

	req = gatekeeper.NormalizePageRequest(gatekeeper.PageRequest{Page: 2, Limit: 10})
	assert.Equal(t, 10, req.Offset())
}

func TestNewPagination(t *testing.T) {
	p := gatekeeper.NewPagination(gatekeeper.PageRequest{Page: 2, Limit: 10}, 25)
	assert.Equal(t, int64(25), p.Total)
	assert.Equal(t, 3, p.TotalPages)

	p = gatekeeper.NewPagination(gatekeeper.PageRequest{Page: 1, Limit: 10}, 0)
	assert.Equal(t, 0, p.TotalPages)
}
