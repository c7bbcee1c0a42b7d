package platform

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"xentro.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an existing database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// OpenPG opens a pooled connection using the pgx stdlib driver.
func OpenPG(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PGStore{db: db}, nil
}

func (s *PGStore) Close() error { return s.db.Close() }

func (s *PGStore) DB() *sql.DB { return s.db }

func (s *PGStore) Users() UserStore                 { return &pgUsers{db: s.db} }
func (s *PGStore) Applications() ApplicationStore   { return &pgApplications{db: s.db} }
func (s *PGStore) Institutions() InstitutionStore   { return &pgInstitutions{db: s.db} }
func (s *PGStore) Members() MemberStore             { return &pgMembers{db: s.db} }
func (s *PGStore) Notifications() NotificationStore { return &pgNotifications{db: s.db} }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// User store ----------------------------------------------------------------

type pgUsers struct{ db *sql.DB }

const userColumns = `id, name, email, account_type, active_context, unlocked_contexts, password_hash, email_verified, is_active, created_at, updated_at`

func (s *pgUsers) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	contexts, _ := json.Marshal(u.UnlockedContexts)
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, name, email, account_type, active_context, unlocked_contexts, password_hash, email_verified, is_active)
		 values($1,$2,lower($3),$4,$5,$6,$7,$8,$9)`,
		u.ID, u.Name, u.Email, u.AccountType, u.ActiveContext, contexts, u.PasswordHash, u.EmailVerified, u.IsActive,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: user email %s", ErrAlreadyExists, strings.ToLower(u.Email))
	}
	return err
}

func (s *pgUsers) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *pgUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=lower($1)`, email)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		u        User
		contexts []byte
		hash     sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.AccountType, &u.ActiveContext, &contexts, &hash, &u.EmailVerified, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal(contexts, &u.UnlockedContexts)
	u.PasswordHash = hash.String
	return &u, nil
}

// Application store ---------------------------------------------------------

type pgApplications struct{ db *sql.DB }

const applicationColumns = `id, name, email, type, tagline, city, country, website, description, verified, verification_token, status, institution_id, applicant_user_id, remark, created_at, updated_at`

func (s *pgApplications) Create(ctx context.Context, app *Application) error {
	if app.ID == "" {
		app.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into institution_applications(id, name, email, type, tagline, city, country, website, description, verified, verification_token, status)
		 values($1,$2,lower($3),$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		app.ID, app.Name, app.Email, app.Type, app.Tagline, app.City, app.Country, app.Website, app.Description,
		app.Verified, app.VerificationToken, app.Status,
	)
	return err
}

func (s *pgApplications) Find(ctx context.Context, id string) (*Application, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+applicationColumns+` from institution_applications where id=$1`, id)
	return scanApplication(row)
}

func (s *pgApplications) FindByEmail(ctx context.Context, email string) (*Application, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+applicationColumns+` from institution_applications where email=lower($1)
		 order by created_at desc limit 1`, email)
	return scanApplication(row)
}

func (s *pgApplications) FindByToken(ctx context.Context, verificationToken string) (*Application, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+applicationColumns+` from institution_applications where verification_token=$1`, verificationToken)
	return scanApplication(row)
}

func (s *pgApplications) List(ctx context.Context) ([]*Application, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+applicationColumns+` from institution_applications order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Application
	for rows.Next() {
		app, err := scanApplicationRows(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, app)
	}
	return res, rows.Err()
}

func (s *pgApplications) MarkVerified(ctx context.Context, id, applicantUserID string) error {
	res, err := s.db.ExecContext(ctx,
		`update institution_applications
		 set verified=true, applicant_user_id=$2, updated_at=now()
		 where id=$1 and verified=false`,
		id, applicantUserID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// already verified rows are a no-op; only a missing row is an error
		return s.mustExist(ctx, id, nil)
	}
	return nil
}

func (s *pgApplications) Decide(ctx context.Context, id, status, remark, institutionID string) error {
	res, err := s.db.ExecContext(ctx,
		`update institution_applications
		 set status=$2, remark=$3, institution_id=nullif($4,''), updated_at=now()
		 where id=$1 and status=$5`,
		id, status, remark, institutionID, ApplicationPending,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return s.mustExist(ctx, id, ErrAlreadyDecided)
	}
	return nil
}

// mustExist distinguishes "row missing" from "conditional update lost":
// returns ErrNotFound when no row has the id, otherwise whenExists.
func (s *pgApplications) mustExist(ctx context.Context, id string, whenExists error) error {
	var one int
	err := s.db.QueryRowContext(ctx,
		`select 1 from institution_applications where id=$1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return whenExists
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row *sql.Row) (*Application, error) {
	app, err := scanApplicationFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return app, nil
}

func scanApplicationRows(rows *sql.Rows) (*Application, error) {
	return scanApplicationFrom(rows)
}

func scanApplicationFrom(sc rowScanner) (*Application, error) {
	var (
		app           Application
		institutionID sql.NullString
		applicantID   sql.NullString
		remark        sql.NullString
	)
	if err := sc.Scan(&app.ID, &app.Name, &app.Email, &app.Type, &app.Tagline, &app.City, &app.Country,
		&app.Website, &app.Description, &app.Verified, &app.VerificationToken, &app.Status,
		&institutionID, &applicantID, &remark, &app.CreatedAt, &app.UpdatedAt); err != nil {
		return nil, err
	}
	app.InstitutionID = institutionID.String
	app.ApplicantUserID = applicantID.String
	app.Remark = remark.String
	return &app, nil
}

// Institution store ---------------------------------------------------------

type pgInstitutions struct{ db *sql.DB }

const institutionColumns = `id, name, email, type, tagline, city, country, website, description, status, verified,
	startups_supported, students_mentored, funding_facilitated, funding_currency,
	sdg_focus, sector_focus, logo_url, social_links, created_at, updated_at`

func (s *pgInstitutions) Create(ctx context.Context, inst *Institution) error {
	if inst.ID == "" {
		inst.ID = ids.New()
	}
	sdg, _ := json.Marshal(inst.SDGFocus)
	sector, _ := json.Marshal(inst.SectorFocus)
	social, _ := json.Marshal(inst.SocialLinks)
	_, err := s.db.ExecContext(ctx,
		`insert into institutions(id, name, email, type, tagline, city, country, website, description, status, verified,
		   startups_supported, students_mentored, funding_facilitated, funding_currency, sdg_focus, sector_focus, logo_url, social_links)
		 values($1,$2,lower($3),$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		inst.ID, inst.Name, inst.Email, inst.Type, inst.Tagline, inst.City, inst.Country, inst.Website, inst.Description,
		inst.Status, inst.Verified,
		inst.Metrics.StartupsSupported, inst.Metrics.StudentsMentored, inst.Metrics.FundingFacilitated, inst.Metrics.FundingCurrency,
		sdg, sector, inst.LogoURL, social,
	)
	return err
}

func (s *pgInstitutions) Find(ctx context.Context, id string) (*Institution, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+institutionColumns+` from institutions where id=$1`, id)
	return scanInstitution(row)
}

func (s *pgInstitutions) Update(ctx context.Context, id string, upd InstitutionUpdate) (*Institution, error) {
	inst, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	applyInstitutionUpdate(inst, upd)
	sdg, _ := json.Marshal(inst.SDGFocus)
	sector, _ := json.Marshal(inst.SectorFocus)
	social, _ := json.Marshal(inst.SocialLinks)
	_, err = s.db.ExecContext(ctx,
		`update institutions set name=$2, tagline=$3, city=$4, country=$5, website=$6, description=$7,
		   startups_supported=$8, students_mentored=$9, funding_facilitated=$10, funding_currency=$11,
		   sdg_focus=$12, sector_focus=$13, logo_url=$14, social_links=$15, updated_at=now()
		 where id=$1`,
		id, inst.Name, inst.Tagline, inst.City, inst.Country, inst.Website, inst.Description,
		inst.Metrics.StartupsSupported, inst.Metrics.StudentsMentored, inst.Metrics.FundingFacilitated, inst.Metrics.FundingCurrency,
		sdg, sector, inst.LogoURL, social,
	)
	if err != nil {
		return nil, err
	}
	return s.Find(ctx, id)
}

func (s *pgInstitutions) SetStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`update institutions set status=$2, updated_at=now() where id=$1`, id, status)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanInstitution(row *sql.Row) (*Institution, error) {
	var (
		inst   Institution
		sdg    []byte
		sector []byte
		social []byte
	)
	if err := row.Scan(&inst.ID, &inst.Name, &inst.Email, &inst.Type, &inst.Tagline, &inst.City, &inst.Country,
		&inst.Website, &inst.Description, &inst.Status, &inst.Verified,
		&inst.Metrics.StartupsSupported, &inst.Metrics.StudentsMentored, &inst.Metrics.FundingFacilitated, &inst.Metrics.FundingCurrency,
		&sdg, &sector, &inst.LogoURL, &social, &inst.CreatedAt, &inst.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal(sdg, &inst.SDGFocus)
	_ = json.Unmarshal(sector, &inst.SectorFocus)
	_ = json.Unmarshal(social, &inst.SocialLinks)
	return &inst, nil
}

// Member store --------------------------------------------------------------

type pgMembers struct{ db *sql.DB }

const memberColumns = `id, institution_id, user_id, email, role, is_active, admin_approved, manager_approved, created_at, updated_at`

func (s *pgMembers) Create(ctx context.Context, m *Member) error {
	if m.ID == "" {
		m.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into institution_members(id, institution_id, user_id, email, role, is_active, admin_approved, manager_approved)
		 values($1,$2,nullif($3,''),lower($4),$5,$6,$7,$8)`,
		m.ID, m.InstitutionID, m.UserID, m.Email, m.Role, m.IsActive, m.AdminApproved, m.ManagerApproved,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: member %s", ErrAlreadyExists, strings.ToLower(m.Email))
	}
	return err
}

func (s *pgMembers) Find(ctx context.Context, id string) (*Member, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+memberColumns+` from institution_members where id=$1`, id)
	return scanMember(row)
}

func (s *pgMembers) FindActive(ctx context.Context, institutionID, email string) (*Member, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+memberColumns+` from institution_members
		 where institution_id=$1 and email=lower($2) and is_active=true`,
		institutionID, email)
	return scanMember(row)
}

func (s *pgMembers) ListByInstitution(ctx context.Context, institutionID string) ([]*Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+memberColumns+` from institution_members where institution_id=$1 order by created_at asc`,
		institutionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Member
	for rows.Next() {
		var (
			m      Member
			userID sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.InstitutionID, &userID, &m.Email, &m.Role, &m.IsActive,
			&m.AdminApproved, &m.ManagerApproved, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.UserID = userID.String
		res = append(res, &m)
	}
	return res, rows.Err()
}

func (s *pgMembers) Update(ctx context.Context, id string, upd MemberUpdate) (*Member, error) {
	m, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Role != nil {
		m.Role = *upd.Role
	}
	if upd.IsActive != nil {
		m.IsActive = *upd.IsActive
	}
	if upd.AdminApproved != nil {
		m.AdminApproved = *upd.AdminApproved
	}
	if upd.ManagerApproved != nil {
		m.ManagerApproved = *upd.ManagerApproved
	}
	_, err = s.db.ExecContext(ctx,
		`update institution_members set role=$2, is_active=$3, admin_approved=$4, manager_approved=$5, updated_at=now()
		 where id=$1`,
		id, m.Role, m.IsActive, m.AdminApproved, m.ManagerApproved,
	)
	if err != nil {
		return nil, err
	}
	return s.Find(ctx, id)
}

func scanMember(row *sql.Row) (*Member, error) {
	var (
		m      Member
		userID sql.NullString
	)
	if err := row.Scan(&m.ID, &m.InstitutionID, &userID, &m.Email, &m.Role, &m.IsActive,
		&m.AdminApproved, &m.ManagerApproved, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	m.UserID = userID.String
	return &m, nil
}

// Notification store --------------------------------------------------------

type pgNotifications struct{ db *sql.DB }

func (s *pgNotifications) Append(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = ids.New()
	}
	meta, _ := json.Marshal(n.Metadata)
	_, err := s.db.ExecContext(ctx,
		`insert into notifications(id, recipient, institution_id, event, message, metadata)
		 values($1,lower($2),nullif($3,''),$4,$5,$6)`,
		n.ID, n.Recipient, n.InstitutionID, n.Event, n.Message, meta,
	)
	return err
}

func (s *pgNotifications) ListByRecipient(ctx context.Context, recipient string, limit int) ([]*Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, recipient, institution_id, event, message, metadata, created_at
		 from notifications where recipient=lower($1) order by created_at desc limit $2`,
		recipient, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Notification
	for rows.Next() {
		var (
			n             Notification
			institutionID sql.NullString
			meta          []byte
		)
		if err := rows.Scan(&n.ID, &n.Recipient, &institutionID, &n.Event, &n.Message, &meta, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.InstitutionID = institutionID.String
		_ = json.Unmarshal(meta, &n.Metadata)
		res = append(res, &n)
	}
	return res, rows.Err()
}
