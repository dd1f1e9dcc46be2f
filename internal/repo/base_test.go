package repo

import (
	"context"
	"testing"
	"time"

	"github.com/foodbridge/foodbridge-backend/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctxKey struct{}

func TestBaseDB_BindsContext(t *testing.T) {
	conn := dbtest.Open(t)
	base := NewBase(conn)

	ctx := context.WithValue(context.Background(), ctxKey{}, "value")
	withCtx := base.DB(ctx)

	require.NotNil(t, withCtx.Statement)
	assert.Equal(t, ctx, withCtx.Statement.Context)
	assert.Same(t, conn, base.DB(nil))
}

func TestBaseBounded_AppliesDeadline(t *testing.T) {
	base := NewBase(dbtest.Open(t)).WithTimeout(250 * time.Millisecond)

	bounded, cancel := base.Bounded(context.Background())
	defer cancel()

	deadline, ok := bounded.Statement.Context.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(250*time.Millisecond), deadline, 100*time.Millisecond)
	assert.Nil(t, bounded.Statement.Context.Value(ctxKey{}))
}
