package repos

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"

	"openmarket/internal/domain"
)

type CodeRepo struct{ db *sqlx.DB }

func NewCodeRepo(db *sqlx.DB) *CodeRepo { return &CodeRepo{db: db} }

type codeEntryRow struct {
	Code      string         `db:"code"`
	CodeID    string         `db:"code_id"`
	Sort      int            `db:"sort"`
	Value     string         `db:"value"`
	Parent    string         `db:"parent"`
	Depth     int            `db:"depth"`
	ExtraJSON sql.NullString `db:"extra_json"`
}

func (r codeEntryRow) entry() domain.CodeEntry {
	e := domain.CodeEntry{Sort: r.Sort, Code: r.Code, Value: r.Value, Parent: r.Parent, Depth: r.Depth}
	if r.ExtraJSON.Valid && r.ExtraJSON.String != "" {
		_ = json.Unmarshal([]byte(r.ExtraJSON.String), &e.Extra)
	}
	return e
}

// ListAll loads every code table with its entries in sort order. This is the
// registry's reload source.
func (r *CodeRepo) ListAll() ([]domain.CodeGroup, error) {
	var groups []domain.CodeGroup
	if err := r.db.Select(&groups, `
		SELECT id, title, COALESCE(created_at,'') AS created_at, COALESCE(updated_at,'') AS updated_at
		FROM codes
		ORDER BY id
	`); err != nil {
		return nil, err
	}

	var rows []codeEntryRow
	if err := r.db.Select(&rows, `
		SELECT code, code_id, sort, value, parent, depth, extra_json
		FROM code_entries
		ORDER BY code_id, sort, code
	`); err != nil {
		return nil, err
	}
	byGroup := map[string][]domain.CodeEntry{}
	for _, row := range rows {
		byGroup[row.CodeID] = append(byGroup[row.CodeID], row.entry())
	}
	for i := range groups {
		groups[i].Codes = byGroup[groups[i].ID]
	}
	return groups, nil
}

func (r *CodeRepo) Get(id string) (domain.CodeGroup, error) {
	var g domain.CodeGroup
	err := r.db.Get(&g, `
		SELECT id, title, COALESCE(created_at,'') AS created_at, COALESCE(updated_at,'') AS updated_at
		FROM codes WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CodeGroup{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.CodeGroup{}, err
	}
	var rows []codeEntryRow
	if err := r.db.Select(&rows, `
		SELECT code, code_id, sort, value, parent, depth, extra_json
		FROM code_entries WHERE code_id = ?
		ORDER BY sort, code
	`, id); err != nil {
		return domain.CodeGroup{}, err
	}
	for _, row := range rows {
		g.Codes = append(g.Codes, row.entry())
	}
	return g, nil
}

// Create inserts a new code table. Entry codes must be unique across every
// table; a clash is reported as a validation error, not a constraint panic.
func (r *CodeRepo) Create(g domain.CodeGroup) (domain.CodeGroup, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return domain.CodeGroup{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := checkCodeClash(tx, g, ""); err != nil {
		return domain.CodeGroup{}, err
	}

	now := domain.Now()
	g.CreatedAt, g.UpdatedAt = now, now
	if _, err := tx.Exec(`INSERT INTO codes(id,title,created_at,updated_at) VALUES(?,?,?,?)`,
		g.ID, g.Title, now, now); err != nil {
		return domain.CodeGroup{}, err
	}
	if err := insertEntries(tx, g); err != nil {
		return domain.CodeGroup{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CodeGroup{}, err
	}
	return g, nil
}

// Update replaces a code table's title and full entry set.
func (r *CodeRepo) Update(id string, g domain.CodeGroup) (domain.CodeGroup, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return domain.CodeGroup{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`UPDATE codes SET title = ?, updated_at = ? WHERE id = ?`,
		g.Title, domain.Now(), id)
	if err != nil {
		return domain.CodeGroup{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.CodeGroup{}, domain.ErrNotFound
	}

	if err := checkCodeClash(tx, g, id); err != nil {
		return domain.CodeGroup{}, err
	}
	if _, err := tx.Exec(`DELETE FROM code_entries WHERE code_id = ?`, id); err != nil {
		return domain.CodeGroup{}, err
	}
	g.ID = id
	if err := insertEntries(tx, g); err != nil {
		return domain.CodeGroup{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CodeGroup{}, err
	}
	return g, nil
}

func (r *CodeRepo) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM codes WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// checkCodeClash rejects entry codes already registered under another table.
func checkCodeClash(tx *sqlx.Tx, g domain.CodeGroup, selfID string) error {
	if len(g.Codes) == 0 {
		return domain.Validationf("codes", "at least one entry is required")
	}
	seen := map[string]bool{}
	codes := make([]string, 0, len(g.Codes))
	for _, e := range g.Codes {
		if e.Code == "" {
			return domain.Validationf("codes", "entry code must not be empty")
		}
		if seen[e.Code] {
			return domain.Validationf("codes", "duplicate entry code %q", e.Code)
		}
		seen[e.Code] = true
		codes = append(codes, e.Code)
	}
	query, args, err := sqlx.In(`SELECT code FROM code_entries WHERE code IN (?) AND code_id != ?`, codes, selfID)
	if err != nil {
		return err
	}
	var clashes []string
	if err := tx.Select(&clashes, tx.Rebind(query), args...); err != nil {
		return err
	}
	if len(clashes) > 0 {
		return domain.Validationf("codes", "code %q is already registered in another table", clashes[0])
	}
	return nil
}

func insertEntries(tx *sqlx.Tx, g domain.CodeGroup) error {
	for _, e := range g.Codes {
		var extra any
		if len(e.Extra) > 0 {
			b, err := json.Marshal(e.Extra)
			if err != nil {
				return err
			}
			extra = string(b)
		}
		if _, err := tx.Exec(`
			INSERT INTO code_entries(code,code_id,sort,value,parent,depth,extra_json)
			VALUES(?,?,?,?,?,?,?)
		`, e.Code, g.ID, e.Sort, e.Value, e.Parent, e.Depth, extra); err != nil {
			return err
		}
	}
	return nil
}
