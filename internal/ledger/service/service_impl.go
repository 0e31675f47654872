package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	auditdomain "github.com/agencyops/credcore/internal/audit/domain"
	ledgerdomain "github.com/agencyops/credcore/internal/ledger/domain"
	obsmetrics "github.com/agencyops/credcore/internal/observability/metrics"
	pkgdb "github.com/agencyops/credcore/pkg/db"
	"github.com/agencyops/credcore/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	AuditSvc   auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

// AddTransaction appends a ledger entry. The non-negative balance check runs
// inside the store: the insert only lands if the running total stays >= 0, and
// the organization row is locked for the duration of the transaction so two
// concurrent debits cannot both pass the check on a stale balance.
func (s *Service) AddTransaction(ctx context.Context, req ledgerdomain.AddTransactionRequest) (ledgerdomain.AddTransactionResponse, error) {
	var resp ledgerdomain.AddTransactionResponse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		resp, txErr = s.AddTransactionTx(ctx, tx, req)
		return txErr
	})
	if err != nil {
		return ledgerdomain.AddTransactionResponse{}, err
	}
	return resp, nil
}

// AddTransactionTx runs the balance check and append inside the caller's
// transaction. The organization row is locked first so concurrent debits for
// the same organization serialize on it.
func (s *Service) AddTransactionTx(ctx context.Context, tx *gorm.DB, req ledgerdomain.AddTransactionRequest) (ledgerdomain.AddTransactionResponse, error) {
	if req.OrgID == 0 {
		return ledgerdomain.AddTransactionResponse{}, ledgerdomain.ErrInvalidOrganization
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return ledgerdomain.AddTransactionResponse{}, ledgerdomain.ErrInvalidDescription
	}

	var lockedID snowflake.ID
	result := tx.WithContext(ctx).Raw(
		`SELECT id FROM organizations WHERE id = ?`+pkgdb.ForUpdate(tx),
		req.OrgID,
	).Scan(&lockedID)
	if result.Error != nil {
		return ledgerdomain.AddTransactionResponse{}, result.Error
	}
	if result.RowsAffected == 0 {
		return ledgerdomain.AddTransactionResponse{}, ledgerdomain.ErrInvalidOrganization
	}

	entry := ledgerdomain.LedgerEntry{
		ID:          s.genID.Generate(),
		OrgID:       req.OrgID,
		Amount:      req.Amount,
		Description: description,
		ProjectID:   req.ProjectID,
		CreatedAt:   time.Now().UTC(),
	}

	insert := tx.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (id, org_id, amount, description, project_id, created_at)
		 SELECT ?, ?, ?, ?, ?, ?
		 FROM (SELECT 1) AS guard
		 WHERE (SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE org_id = ?) + ? >= 0`,
		entry.ID,
		entry.OrgID,
		entry.Amount,
		entry.Description,
		entry.ProjectID,
		entry.CreatedAt,
		entry.OrgID,
		entry.Amount,
	)
	if insert.Error != nil {
		return ledgerdomain.AddTransactionResponse{}, insert.Error
	}

	if insert.RowsAffected == 0 {
		current, err := s.balance(ctx, tx, req.OrgID)
		if err != nil {
			return ledgerdomain.AddTransactionResponse{}, err
		}
		s.obsMetrics.RecordInsufficientBalance()
		return ledgerdomain.AddTransactionResponse{}, &ledgerdomain.InsufficientBalanceError{
			CurrentBalance:   current,
			AttemptedAmount:  req.Amount,
			ProjectedBalance: current + req.Amount,
		}
	}

	balance, err := s.balance(ctx, tx, req.OrgID)
	if err != nil {
		return ledgerdomain.AddTransactionResponse{}, err
	}

	entryID := entry.ID.String()
	orgID := req.OrgID
	if err := s.auditSvc.AuditLog(ctx, &orgID, auditdomain.ActorTypeSystem, nil, "ledger.entry_created", "ledger_entry", &entryID, map[string]any{
		"amount":      req.Amount,
		"description": description,
	}); err != nil {
		s.log.Warn("failed to write ledger audit log", zap.Error(err))
	}

	s.obsMetrics.RecordLedgerEntry(req.Amount)
	return ledgerdomain.AddTransactionResponse{Entry: entry, Balance: balance}, nil
}

func (s *Service) Balance(ctx context.Context, orgID snowflake.ID) (int64, error) {
	if orgID == 0 {
		return 0, ledgerdomain.ErrInvalidOrganization
	}
	return s.balance(ctx, s.db, orgID)
}

func (s *Service) balance(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error) {
	var balance int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE org_id = ?`,
		orgID,
	).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Service) History(ctx context.Context, req ledgerdomain.ListEntriesRequest) (ledgerdomain.ListEntriesResponse, error) {
	if req.OrgID == 0 {
		return ledgerdomain.ListEntriesResponse{}, ledgerdomain.ErrInvalidOrganization
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 25
	}

	stmt := s.db.WithContext(ctx).Model(&ledgerdomain.LedgerEntry{}).
		Where("org_id = ?", req.OrgID)

	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return ledgerdomain.ListEntriesResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		cursorAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return ledgerdomain.ListEntriesResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		cursorID, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return ledgerdomain.ListEntriesResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			cursorAt, cursorAt, cursorID)
	}

	var entries []ledgerdomain.LedgerEntry
	err := stmt.Order("created_at desc, id desc").
		Limit(limit + 1).
		Find(&entries).Error
	if err != nil {
		return ledgerdomain.ListEntriesResponse{}, err
	}

	resp := ledgerdomain.ListEntriesResponse{}
	if len(entries) > limit {
		entries = entries[:limit]
		last := entries[len(entries)-1]
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        strconv.FormatInt(int64(last.ID), 10),
			CreatedAt: last.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err == nil {
			resp.NextPageToken = token
			resp.HasMore = true
		}
	}

	resp.Entries = entries
	return resp, nil
}
