package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tallyhq/tally/internal/config"
	"github.com/tallyhq/tally/internal/models"
	"github.com/tallyhq/tally/internal/service"
	"github.com/tallyhq/tally/internal/storage/sqlite"
	"github.com/tallyhq/tally/pkg/logging"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel)

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.DBPath)

	ledger := service.NewLedgerService(store)

	// The full API surface (auth, CRUD routing) lives in front of this
	// process; here we expose health, metrics, and two read-only ledger
	// views for operators.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /groups/{id}/balances", func(w http.ResponseWriter, r *http.Request) {
		balances, err := ledger.GetGroupBalances(r.Context(), r.PathValue("id"))
		writeJSON(w, balanceViews(balances), err)
	})
	mux.HandleFunc("GET /groups/{id}/recommendations", func(w http.ResponseWriter, r *http.Request) {
		transfers, err := ledger.RecommendSettlements(r.Context(), r.PathValue("id"))
		writeJSON(w, transferViews(transfers), err)
	})

	slog.Info("Server starting", "address", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, mux); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// balanceView and transferView are the operator-facing JSON shapes of
// the ledger's domain types.
type balanceView struct {
	UserID    string `json:"user_id"`
	Net       int64  `json:"net"`
	TotalPaid int64  `json:"total_paid"`
	TotalOwed int64  `json:"total_owed"`
}

type transferView struct {
	PayerID     string `json:"payer_id"`
	RecipientID string `json:"recipient_id"`
	Amount      int64  `json:"amount"`
}

func balanceViews(balances []models.Balance) []balanceView {
	views := make([]balanceView, len(balances))
	for i, b := range balances {
		views[i] = balanceView{
			UserID:    b.UserID,
			Net:       b.Net,
			TotalPaid: b.TotalPaid,
			TotalOwed: b.TotalOwed,
		}
	}
	return views
}

func transferViews(transfers []models.Transfer) []transferView {
	views := make([]transferView, len(transfers))
	for i, tr := range transfers {
		views[i] = transferView{
			PayerID:     tr.PayerID,
			RecipientID: tr.RecipientID,
			Amount:      tr.Amount,
		}
	}
	return views
}

// writeJSON renders a ledger result, mapping the engine's error taxonomy
// onto status codes.
func writeJSON(w http.ResponseWriter, v any, err error) {
	if err != nil {
		var (
			validation *models.ValidationError
			notFound   *models.NotFoundError
			conflict   *models.ConflictError
		)
		switch {
		case errors.As(err, &validation):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.As(err, &notFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.As(err, &conflict):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
