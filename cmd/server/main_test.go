package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyhq/tally/internal/models"
)

func TestWriteJSONStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation maps to 400", models.Validationf("bad input"), http.StatusBadRequest},
		{"not found maps to 404", models.NotFound("expense", "e1"), http.StatusNotFound},
		{"conflict maps to 409", models.Conflictf("already settled"), http.StatusConflict},
		{"unknown maps to 500", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeJSON(rec, nil, tt.err)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestWriteJSONBodyShapes(t *testing.T) {
	t.Run("balances serialize with snake_case fields", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeJSON(rec, balanceViews([]models.Balance{
			{UserID: "alice", Net: 200, TotalPaid: 300, TotalOwed: 100},
		}), nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var got []map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "alice", got[0]["user_id"])
		assert.EqualValues(t, 200, got[0]["net"])
		assert.EqualValues(t, 300, got[0]["total_paid"])
		assert.EqualValues(t, 100, got[0]["total_owed"])
	})

	t.Run("transfers serialize with snake_case fields", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeJSON(rec, transferViews([]models.Transfer{
			{PayerID: "bob", RecipientID: "alice", Amount: 150},
		}), nil)

		require.Equal(t, http.StatusOK, rec.Code)

		var got []map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "bob", got[0]["payer_id"])
		assert.Equal(t, "alice", got[0]["recipient_id"])
		assert.EqualValues(t, 150, got[0]["amount"])
	})
}
