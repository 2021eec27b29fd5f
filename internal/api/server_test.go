package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"assessflow/internal/util"

	"github.com/stretchr/testify/require"
)

func TestToAPIErrorInvalidState(t *testing.T) {
	e := toAPIError(http.StatusConflict, fmt.Errorf("%w: only a failed report can be resumed", util.ErrInvalidState))
	require.Equal(t, "AF-API-4009", e.Code)
	require.Equal(t, "Only a failed report can be resumed.", e.Message)

	e = toAPIError(http.StatusConflict, fmt.Errorf("%w: only a complete report can be refined", util.ErrInvalidState))
	require.Equal(t, "AF-API-4009", e.Code)
	require.Equal(t, "Ask AI is available on completed reports only.", e.Message)
}

func TestToAPIErrorHidesDatabaseDetail(t *testing.T) {
	e := toAPIError(http.StatusInternalServerError, errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"))
	require.Equal(t, "AF-DB-5002", e.Code)
	require.NotContains(t, e.Message, "127.0.0.1")
	require.NotContains(t, e.Message, "refused")

	e = toAPIError(http.StatusInternalServerError, errors.New(`ERROR: relation "reports" does not exist`))
	require.Equal(t, "AF-DB-5001", e.Code)
}
