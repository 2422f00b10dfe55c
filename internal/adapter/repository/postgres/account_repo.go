package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase"
)

const accountColumns = `id, reference, account_number, name, user_id, type, category, currency, currency_kind,
	parent_id, current_balance, available_balance, pending_balance, reserved_balance, frozen_balance,
	escrow_balance, allow_negative_balance, credit_limit, min_balance, max_balance, status, closed_at,
	refs, metadata, version, created_at, updated_at, payload_hash`

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct {
	db DBTX
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account inside tx.
func (r *AccountRepository) Create(ctx context.Context, t usecase.Transaction, account *domain.Account) error {
	tx, err := txFrom(t)
	if err != nil {
		return err
	}

	refs, err := json.Marshal(account.Refs)
	if err != nil {
		return fmt.Errorf("marshal refs: %w", err)
	}
	metadata, err := marshalMetadata(account.Metadata)
	if err != nil {
		return err
	}

	b := account.Balances
	_, err = tx.Exec(ctx, `INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26, $27, $28)`,
		account.ID,
		account.Reference,
		account.AccountNumber,
		account.Name,
		account.UserID,
		string(account.Type),
		account.Category,
		account.Currency,
		string(account.CurrencyKind),
		account.ParentID,
		decimalToNumeric(b.Current),
		decimalToNumeric(b.Available),
		decimalToNumeric(b.Pending),
		decimalToNumeric(b.Reserved),
		decimalToNumeric(b.Frozen),
		decimalToNumeric(b.Escrow),
		account.AllowNegativeBalance,
		nullableNumeric(account.CreditLimit),
		nullableNumeric(account.MinBalance),
		nullableNumeric(account.MaxBalance),
		string(account.Status),
		timeToPgTimestamptz(account.ClosedAt),
		refs,
		metadata,
		account.Version,
		account.CreatedAt,
		account.UpdatedAt,
		account.PayloadHash,
	)

	return translate(err, nil)
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// GetByNumber retrieves an account by its account number.
func (r *AccountRepository) GetByNumber(ctx context.Context, number string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, number)
}

// GetByReference retrieves the account created under reference.
func (r *AccountRepository) GetByReference(ctx context.Context, reference string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE reference = $1`, reference)
}

func (r *AccountRepository) getOne(ctx context.Context, query, key string) (*domain.Account, error) {
	acc, err := scanAccount(r.db.QueryRow(ctx, query, key))
	if err != nil {
		return nil, translate(err, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, key))
	}
	return acc, nil
}

// GetByIDsForUpdate locks the accounts in ascending ID order. Missing IDs are left out.
func (r *AccountRepository) GetByIDsForUpdate(ctx context.Context, t usecase.Transaction, ids []string) ([]*domain.Account, error) {
	tx, err := txFrom(t)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

// Update writes the mutable columns when the stored version still matches,
// then advances account.Version.
func (r *AccountRepository) Update(ctx context.Context, t usecase.Transaction, account *domain.Account) error {
	tx, err := txFrom(t)
	if err != nil {
		return err
	}

	b := account.Balances
	tag, err := tx.Exec(ctx, `UPDATE accounts SET
			parent_id = $2,
			current_balance = $3,
			available_balance = $4,
			pending_balance = $5,
			reserved_balance = $6,
			frozen_balance = $7,
			escrow_balance = $8,
			status = $9,
			closed_at = $10,
			updated_at = $11,
			version = version + 1
		WHERE id = $1 AND version = $12`,
		account.ID,
		account.ParentID,
		decimalToNumeric(b.Current),
		decimalToNumeric(b.Available),
		decimalToNumeric(b.Pending),
		decimalToNumeric(b.Reserved),
		decimalToNumeric(b.Frozen),
		decimalToNumeric(b.Escrow),
		string(account.Status),
		timeToPgTimestamptz(account.ClosedAt),
		account.UpdatedAt,
		account.Version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s at version %d", domain.ErrConcurrencyConflict, account.ID, account.Version)
	}

	account.Version++
	return nil
}

// List lists accounts ordered by account number.
func (r *AccountRepository) List(ctx context.Context, f domain.AccountFilter) ([]*domain.Account, error) {
	var q filter
	if f.UserID != "" {
		q.add("user_id = ?", f.UserID)
	}
	if f.Currency != "" {
		q.add("currency = ?", f.Currency)
	}
	if f.Type != "" {
		q.add("type = ?", string(f.Type))
	}
	if f.Status != "" {
		q.add("status = ?", string(f.Status))
	}
	if f.ParentID != "" {
		q.add("parent_id = ?", f.ParentID)
	}

	query := `SELECT ` + accountColumns + ` FROM accounts` + q.where() + ` ORDER BY account_number`
	query += q.page(f.Limit, f.Offset)

	rows, err := r.db.Query(ctx, query, q.args...)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

// NextAccountNumber draws the next value of account_number_seq.
func (r *AccountRepository) NextAccountNumber(ctx context.Context, t usecase.Transaction) (int64, error) {
	tx, err := txFrom(t)
	if err != nil {
		return 0, err
	}
	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('account_number_seq')`).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func collectAccounts(rows pgx.Rows) ([]*domain.Account, error) {
	defer rows.Close()

	accounts := make([]*domain.Account, 0)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}

	return accounts, rows.Err()
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		acc                         domain.Account
		accountType, kind, status   string
		parentID                    *string
		cur, avail, pend, res, froz pgtype.Numeric
		esc, credit, minBal, maxBal pgtype.Numeric
		closedAt                    pgtype.Timestamptz
		refs, metadata              []byte
	)

	err := row.Scan(
		&acc.ID,
		&acc.Reference,
		&acc.AccountNumber,
		&acc.Name,
		&acc.UserID,
		&accountType,
		&acc.Category,
		&acc.Currency,
		&kind,
		&parentID,
		&cur,
		&avail,
		&pend,
		&res,
		&froz,
		&esc,
		&acc.AllowNegativeBalance,
		&credit,
		&minBal,
		&maxBal,
		&status,
		&closedAt,
		&refs,
		&metadata,
		&acc.Version,
		&acc.CreatedAt,
		&acc.UpdatedAt,
		&acc.PayloadHash,
	)
	if err != nil {
		return nil, err
	}

	acc.Type = domain.AccountType(accountType)
	acc.CurrencyKind = domain.CurrencyKind(kind)
	acc.Status = domain.AccountStatus(status)
	acc.ParentID = parentID
	acc.Balances = domain.Balances{
		Current:   numericToDecimal(cur),
		Available: numericToDecimal(avail),
		Pending:   numericToDecimal(pend),
		Reserved:  numericToDecimal(res),
		Frozen:    numericToDecimal(froz),
		Escrow:    numericToDecimal(esc),
	}
	acc.CreditLimit = numericToDecimalPtr(credit)
	acc.MinBalance = numericToDecimalPtr(minBal)
	acc.MaxBalance = numericToDecimalPtr(maxBal)
	acc.ClosedAt = pgTimestamptzToTime(closedAt)
	acc.CreatedAt = acc.CreatedAt.UTC()
	acc.UpdatedAt = acc.UpdatedAt.UTC()

	if len(refs) > 0 {
		if err := json.Unmarshal(refs, &acc.Refs); err != nil {
			return nil, fmt.Errorf("decode refs of %s: %w", acc.ID, err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &acc.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", acc.ID, err)
		}
	}

	return &acc, nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return data, nil
}
