package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDDL_ContainsProcedures(t *testing.T) {
	assert.Contains(t, DDL, "CREATE OR REPLACE FUNCTION search_passages_by_embedding")
	assert.Contains(t, DDL, "name text NOT NULL UNIQUE")
	assert.Contains(t, DDL, "CREATE TABLE IF NOT EXISTS text_jobs")
}

func TestApply(t *testing.T) {
	mock, err := pgxmock.NewConn(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer mock.Close(context.Background())

	mock.ExpectExec(DDL).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, Apply(context.Background(), mock))

	mock.ExpectExec(DDL).WillReturnError(errors.New("permission denied"))
	assert.ErrorContains(t, Apply(context.Background(), mock), "permission denied")

	require.NoError(t, mock.ExpectationsWereMet())
}
