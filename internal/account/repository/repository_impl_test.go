package repository

import (
	"context"
	"testing"

	"github.com/smallbiznis/recouply/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindByID(t *testing.T) {
	db := storetest.Open(t)
	node := storetest.Node(t)
	id := storetest.SeedAccount(t, db, node, true)
	repo := Provide()

	account, err := repo.FindByID(context.Background(), db, id)
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.True(t, account.AutoApproveDrafts)

	missing, err := repo.FindByID(context.Background(), db, node.Generate())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
