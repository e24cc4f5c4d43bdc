package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"AgentHub-Chain/deploy/migrations"
	xerrors "AgentHub-Chain/internal/errors"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

var embeddedMigrations fs.FS = migrations.Files

// MySQLConfig 描述 MySQL 连接池参数。
type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// MySQLStore 使用 MySQL 保存交易记录。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建连接池并执行迁移。
func NewMySQLStore(ctx context.Context, cfg MySQLConfig) (*MySQLStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store := &MySQLStore{db: db}
	if err := store.runMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func openDatabase(ctx context.Context, cfg MySQLConfig) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("无法连接到 MySQL: %w", err)
	}
	return db, nil
}

const recordColumns = `id, account, method, args, value_wei, tx_hash, block_number, status, error_code, last_error, created_at, updated_at`

// Create 实现 Store 接口。
func (s *MySQLStore) Create(ctx context.Context, record *TxRecord) error {
	if record == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "record 不能为空")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().Unix()
	if record.CreatedAt == 0 {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.Status == "" {
		record.Status = StatusPending
	}
	const query = `INSERT INTO tx_journal (` + recordColumns + `)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.Account, record.Method, record.Args, record.ValueWei, record.TxHash,
		record.BlockNumber, string(record.Status), record.ErrorCode, record.LastError,
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入交易记录失败")
	}
	return nil
}

// Get 返回交易记录。
func (s *MySQLStore) Get(ctx context.Context, id string) (*TxRecord, error) {
	const query = `SELECT ` + recordColumns + ` FROM tx_journal WHERE id = ?`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询交易记录失败")
	}
	return record, nil
}

// MarkSubmitted 记录交易哈希。
func (s *MySQLStore) MarkSubmitted(ctx context.Context, id, txHash string) error {
	const query = `UPDATE tx_journal SET tx_hash = ?, updated_at = ? WHERE id = ?`
	return s.exec(ctx, query, txHash, time.Now().Unix(), id)
}

// MarkConfirmed 将交易标记为已确认。
func (s *MySQLStore) MarkConfirmed(ctx context.Context, id string, blockNumber uint64) error {
	const query = `UPDATE tx_journal SET status = ?, block_number = ?, error_code = '', last_error = '', updated_at = ? WHERE id = ?`
	return s.exec(ctx, query, string(StatusConfirmed), blockNumber, time.Now().Unix(), id)
}

// MarkFailed 将交易标记为失败或被拒绝。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, status Status, code, lastError string) error {
	if err := validateFailure(status); err != nil {
		return err
	}
	const query = `UPDATE tx_journal SET status = ?, error_code = ?, last_error = ?, updated_at = ? WHERE id = ?`
	return s.exec(ctx, query, string(status), code, lastError, time.Now().Unix(), id)
}

func (s *MySQLStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新交易记录失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	if affected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// List 按创建时间倒序返回记录。
func (s *MySQLStore) List(ctx context.Context, opts ...ListOption) ([]*TxRecord, error) {
	options := buildListOptions(opts)
	query, args := buildListQuery(options)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询交易记录失败")
	}
	defer rows.Close()

	var result []*TxRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析交易记录失败")
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历交易记录失败")
	}
	return result, nil
}

func buildListQuery(options ListOptions) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if options.Account != "" {
		clauses = append(clauses, "LOWER(account) = ?")
		args = append(args, options.Account)
	}
	if options.Method != "" {
		clauses = append(clauses, "method = ?")
		args = append(args, options.Method)
	}
	if len(options.Statuses) > 0 {
		placeholders := make([]string, len(options.Statuses))
		for i, status := range options.Statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	var b strings.Builder
	b.WriteString("SELECT " + recordColumns + " FROM tx_journal")
	if len(clauses) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(clauses, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?")
	args = append(args, options.Limit, options.Offset)
	return b.String(), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*TxRecord, error) {
	var (
		record    TxRecord
		args      sql.NullString
		status    string
		lastError sql.NullString
	)
	if err := row.Scan(&record.ID, &record.Account, &record.Method, &args, &record.ValueWei, &record.TxHash,
		&record.BlockNumber, &status, &record.ErrorCode, &lastError, &record.CreatedAt, &record.UpdatedAt); err != nil {
		return nil, err
	}
	record.Args = args.String
	record.Status = Status(status)
	record.LastError = lastError.String
	return &record, nil
}

// Close 释放连接池。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type migrationFile struct {
	version    string
	name       string
	statements []string
}

func (s *MySQLStore) runMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version VARCHAR(32) NOT NULL PRIMARY KEY,
        applied_at BIGINT NOT NULL
)`); err != nil {
		return fmt.Errorf("创建 schema_migrations 表失败: %w", err)
	}

	applied, err := s.loadAppliedVersions(ctx)
	if err != nil {
		return err
	}

	files, err := loadMigrationFiles()
	if err != nil {
		return err
	}

	for _, migration := range files {
		if _, ok := applied[migration.version]; ok {
			continue
		}
		if err := s.applyMigration(ctx, migration); err != nil {
			return err
		}
	}
	return nil
}

func (s *MySQLStore) loadAppliedVersions(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("查询 schema_migrations 失败: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]struct{})
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("解析 schema_migrations 失败: %w", err)
		}
		applied[version] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历 schema_migrations 失败: %w", err)
	}
	return applied, nil
}

func (s *MySQLStore) applyMigration(ctx context.Context, migration migrationFile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启迁移事务失败: %w", err)
	}

	for _, stmt := range migration.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("执行迁移 %s 失败: %w", migration.name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, migration.version, time.Now().Unix()); err != nil {
		tx.Rollback()
		return fmt.Errorf("记录迁移版本失败: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交迁移事务失败: %w", err)
	}
	return nil
}

func loadMigrationFiles() ([]migrationFile, error) {
	entries, err := fs.ReadDir(embeddedMigrations, ".")
	if err != nil {
		return nil, fmt.Errorf("读取迁移目录失败: %w", err)
	}

	var files []migrationFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		content, err := fs.ReadFile(embeddedMigrations, name)
		if err != nil {
			return nil, fmt.Errorf("读取迁移文件 %s 失败: %w", name, err)
		}
		statements := splitSQLStatements(string(content))
		if len(statements) == 0 {
			continue
		}
		files = append(files, migrationFile{
			version:    parseMigrationVersion(name),
			name:       name,
			statements: statements,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].version == files[j].version {
			return files[i].name < files[j].name
		}
		return files[i].version < files[j].version
	})
	return files, nil
}

func splitSQLStatements(content string) []string {
	var statements []string
	for _, stmt := range strings.Split(content, ";") {
		trimmed := strings.TrimSpace(stmt)
		if trimmed == "" {
			continue
		}
		statements = append(statements, trimmed)
	}
	return statements
}

func parseMigrationVersion(name string) string {
	if idx := strings.IndexRune(name, '_'); idx > 0 {
		return name[:idx]
	}
	if dot := strings.IndexRune(name, '.'); dot > 0 {
		return name[:dot]
	}
	return name
}

var _ Store = (*MySQLStore)(nil)
