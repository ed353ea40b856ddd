package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"loan-risk/domain"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

//go:embed sql/*.sql
var schemaFS embed.FS

// AnalysisRepositorySQL stores analyses in sqlite or postgres.
type AnalysisRepositorySQL struct {
	db     *sql.DB
	driver string
}

// OpenAnalysisRepositorySQL opens the database, pings it and applies the
// schema.
func OpenAnalysisRepositorySQL(ctx context.Context, driver, dsn string) (*AnalysisRepositorySQL, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, errors.Errorf("unsupported sql driver %q", driver)
	}
	if dsn == "" {
		return nil, errors.New("dsn not specified")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", driver)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "failed to reach %s database", driver)
	}

	r := NewAnalysisRepositorySQL(db, driver)
	if err := r.ApplySchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func NewAnalysisRepositorySQL(db *sql.DB, driver string) *AnalysisRepositorySQL {
	return &AnalysisRepositorySQL{db: db, driver: driver}
}

func (r *AnalysisRepositorySQL) ApplySchema(ctx context.Context) error {
	b, err := schemaFS.ReadFile("sql/schema_" + r.driver + ".sql")
	if err != nil {
		return errors.Wrap(err, "failed to read schema")
	}
	if _, err := r.db.ExecContext(ctx, string(b)); err != nil {
		return errors.Wrap(err, "failed to apply schema")
	}
	return nil
}

func (r *AnalysisRepositorySQL) Close() error {
	return r.db.Close()
}

// rebind turns ? placeholders into $n for postgres.
func (r *AnalysisRepositorySQL) rebind(query string) string {
	if r.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r *AnalysisRepositorySQL) Save(ctx context.Context, a domain.Analysis) error {
	result, err := json.Marshal(a.Result)
	if err != nil {
		return errors.Wrap(err, "failed to encode analysis result")
	}

	var risk sql.NullString
	if a.Risk != nil {
		b, err := json.Marshal(a.Risk)
		if err != nil {
			return errors.Wrap(err, "failed to encode risk assessment")
		}
		risk = sql.NullString{String: string(b), Valid: true}
	}

	q := r.rebind(`INSERT INTO analyses (id, loan_id, notes, model, risk, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := r.db.ExecContext(ctx, q,
		a.ID, a.LoanID, a.Notes, a.Model, risk, string(result), a.CreatedAt.UTC().UnixNano(),
	); err != nil {
		return errors.Wrapf(err, "failed to insert analysis %s", a.ID)
	}
	return nil
}

const selectAnalysis = `SELECT id, loan_id, notes, model, risk, result, created_at FROM analyses`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (domain.Analysis, error) {
	var (
		a         domain.Analysis
		risk      sql.NullString
		result    string
		createdAt int64
	)
	if err := row.Scan(&a.ID, &a.LoanID, &a.Notes, &a.Model, &risk, &result, &createdAt); err != nil {
		return domain.Analysis{}, err
	}
	if err := json.Unmarshal([]byte(result), &a.Result); err != nil {
		return domain.Analysis{}, errors.Wrapf(err, "corrupt result for analysis %s", a.ID)
	}
	if risk.Valid {
		var ra domain.RiskAssessment
		if err := json.Unmarshal([]byte(risk.String), &ra); err != nil {
			return domain.Analysis{}, errors.Wrapf(err, "corrupt risk for analysis %s", a.ID)
		}
		a.Risk = &ra
	}
	a.CreatedAt = time.Unix(0, createdAt).UTC()
	return a, nil
}

func (r *AnalysisRepositorySQL) Get(ctx context.Context, id string) (domain.Analysis, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(selectAnalysis+` WHERE id = ?`), id)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Analysis{}, ErrAnalysisNotFound
	}
	if err != nil {
		return domain.Analysis{}, errors.Wrapf(err, "failed to load analysis %s", id)
	}
	return a, nil
}

func (r *AnalysisRepositorySQL) ListRecent(ctx context.Context, limit int) ([]domain.Analysis, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(selectAnalysis+` ORDER BY created_at DESC, seq DESC LIMIT ?`), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query recent analyses")
	}
	defer rows.Close()

	list := []domain.Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan analysis")
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate analyses")
	}
	return list, nil
}
