package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/governa/internal/audit/domain"
	auditrepo "github.com/smallbiznis/governa/internal/audit/repository"
	"github.com/smallbiznis/governa/internal/orgcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newAuditService(t *testing.T) (auditdomain.Service, context.Context, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepo.Provide(),
	})
	ctx := orgcontext.WithOrgID(context.Background(), node.Generate())
	return svc, ctx, node
}

func TestAuditLogAndList(t *testing.T) {
	svc, ctx, _ := newAuditService(t)

	target := "42"
	require.NoError(t, svc.AuditLog(ctx, nil, "", nil, "cycle.start", "cycle", &target, map[string]any{
		"scope_size": 3,
	}))
	require.NoError(t, svc.AuditLog(ctx, nil, "", nil, "membership.transfer", "membership", nil, nil))

	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 2)

	resp, err = svc.List(ctx, auditdomain.ListAuditLogRequest{Action: "cycle.start"})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	entry := resp.AuditLogs[0]
	assert.Equal(t, "cycle", entry.TargetType)
	require.NotNil(t, entry.TargetID)
	assert.Equal(t, target, *entry.TargetID)
	assert.Equal(t, string(auditdomain.ActorTypeSystem), entry.ActorType)
}

func TestAuditLog_RequiresAction(t *testing.T) {
	svc, ctx, _ := newAuditService(t)
	err := svc.AuditLog(ctx, nil, "", nil, "  ", "cycle", nil, nil)
	require.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}
