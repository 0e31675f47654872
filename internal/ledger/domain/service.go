package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/agencyops/credcore/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type AddTransactionRequest struct {
	OrgID       snowflake.ID
	Amount      int64
	Description string
	ProjectID   *snowflake.ID
}

type AddTransactionResponse struct {
	Entry   LedgerEntry `json:"entry"`
	Balance int64       `json:"balance"`
}

type ListEntriesRequest struct {
	pagination.Pagination
	OrgID snowflake.ID
}

type ListEntriesResponse struct {
	pagination.PageInfo
	Entries []LedgerEntry `json:"entries"`
}

type Service interface {
	// AddTransaction appends a ledger entry after checking that the resulting
	// balance stays non-negative. The check and the append are atomic with
	// respect to other writers for the same organization.
	AddTransaction(ctx context.Context, req AddTransactionRequest) (AddTransactionResponse, error)
	// AddTransactionTx is AddTransaction running inside a caller-owned
	// transaction, so a grant and related row updates can commit together.
	AddTransactionTx(ctx context.Context, tx *gorm.DB, req AddTransactionRequest) (AddTransactionResponse, error)
	Balance(ctx context.Context, orgID snowflake.ID) (int64, error)
	History(ctx context.Context, req ListEntriesRequest) (ListEntriesResponse, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidDescription  = errors.New("invalid_description")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrInsufficientBalance = errors.New("insufficient_balance")
)

// InsufficientBalanceError reports the exact figures of a rejected debit.
type InsufficientBalanceError struct {
	CurrentBalance   int64 `json:"current_balance"`
	AttemptedAmount  int64 `json:"attempted_amount"`
	ProjectedBalance int64 `json:"projected_balance"`
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient_balance: current=%d attempted=%d projected=%d",
		e.CurrentBalance, e.AttemptedAmount, e.ProjectedBalance)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }
