package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/watchpoints/points-engine/api/responses"
	"github.com/watchpoints/points-engine/api/validators"
	"github.com/watchpoints/points-engine/internal/ledger"
	"github.com/watchpoints/points-engine/internal/wallet"
	"github.com/watchpoints/points-engine/pkg/db/models"
	"github.com/watchpoints/points-engine/pkg/enums"
	pkgerrors "github.com/watchpoints/points-engine/pkg/errors"
	"github.com/watchpoints/points-engine/pkg/logger"
	"github.com/watchpoints/points-engine/pkg/pagination"
)

type WalletReader interface {
	Get(ctx context.Context, userID uuid.UUID) (wallet.View, error)
}

type LedgerReader interface {
	QueryByUser(ctx context.Context, userID uuid.UUID, filter ledger.Filter) ([]models.LedgerEntry, string, error)
}

// GetWallet returns the caller's balances.
func GetWallet(svc WalletReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Get(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// ListLedger pages the caller's ledger history newest first.
func ListLedger(repo LedgerReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter, err := parseLedgerFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, next, err := repo.QueryByUser(r.Context(), userID, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]ledgerEntryResponse, 0, len(rows))
		for _, row := range rows {
			items = append(items, newLedgerEntryResponse(row))
		}
		responses.WriteSuccess(w, pageResponse[ledgerEntryResponse]{Items: items, NextCursor: next})
	}
}

func parseLedgerFilter(r *http.Request) (ledger.Filter, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return ledger.Filter{}, err
	}
	filter := ledger.Filter{
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	}
	for _, raw := range validators.ParseQueryList(r, "kind") {
		kind, err := enums.ParseLedgerEntryKind(raw)
		if err != nil {
			return ledger.Filter{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid kind filter")
		}
		filter.Kinds = append(filter.Kinds, kind)
	}
	for _, raw := range validators.ParseQueryList(r, "status") {
		status, err := enums.ParseLedgerEntryStatus(raw)
		if err != nil {
			return ledger.Filter{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	if filter.From, err = validators.ParseQueryTime(r, "from"); err != nil {
		return ledger.Filter{}, err
	}
	if filter.To, err = validators.ParseQueryTime(r, "to"); err != nil {
		return ledger.Filter{}, err
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return ledger.Filter{}, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}
	return filter, nil
}
