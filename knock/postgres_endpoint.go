package knock

import (
	"context"
	"database/sql"
	"fmt"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"slices"
	"strings"
)

// MaxSourceRows caps a single run. Rows past the cap are picked up by later
// runs only once earlier users show up in the directory.
const MaxSourceRows = 1000

const personIdColumn = "CAST(p.person_id AS TEXT)"

// one row per person; a person with several phones reports the lowest number
const userQuery = `SELECT ` + personIdColumn + ` AS person_id, p.email, p.preferred_language,
       p.first_name, p.middle_name, p.last_name,
       (SELECT min(ph.phone_number) FROM phone ph WHERE ph.person_id = p.person_id) AS phone_number
FROM person p
WHERE p.email IS NOT NULL
  AND p.active = true
  AND p.is_external = false`

type postgresEndpoint struct {
	db      *sql.DB
	domains []string
	logger  *zap.Logger
}

// NewPostgresEndpoint creates an ISourceStore reading the person table
// db: open connection pool
// domains: allowed email domain suffixes, e.g. "@rentpure.com"
func NewPostgresEndpoint(db *sql.DB, domains []string, logger *zap.Logger) ISourceStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &postgresEndpoint{
		db:      db,
		domains: domains,
		logger:  logger,
	}
}

// OpenSourceDatabase opens the source store pool without connecting
func OpenSourceDatabase(params DatabaseParameters) (db *sql.DB, err error) {
	if !slices.Contains(sql.Drivers(), params.Driver) {
		err = fmt.Errorf("%w: database driver \"%s\" is not registered", ErrDependencyMissing, params.Driver)
		return
	}
	if db, err = sql.Open(params.Driver, params.Dsn()); err != nil {
		err = fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return
}

func escapeLike(value string) string {
	var r = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(value)
}

// buildUserQuery renders the source query and its arguments
func buildUserQuery(domains []string, exclude Set[string]) (query string, args []any) {
	var sb strings.Builder
	sb.WriteString(userQuery)

	if len(domains) > 0 {
		var patterns = make([]string, 0, len(domains))
		for _, d := range domains {
			args = append(args, "%"+escapeLike(d))
			patterns = append(patterns, fmt.Sprintf(`lower(p.email) LIKE $%d ESCAPE '\'`, len(args)))
		}
		sb.WriteString("\n  AND (")
		sb.WriteString(strings.Join(patterns, " OR "))
		sb.WriteString(")")
	}

	var fragment, excludeArgs = ExclusionFilter(personIdColumn, exclude, len(args)+1)
	if len(fragment) > 0 {
		sb.WriteString("\n  AND ")
		sb.WriteString(fragment)
		args = append(args, excludeArgs...)
	}

	sb.WriteString(fmt.Sprintf("\nORDER BY p.email, p.person_id\nLIMIT %d", MaxSourceRows))
	query = sb.String()
	return
}

func canonicalLanguage(code string) string {
	code = strings.TrimSpace(code)
	if len(code) == 0 {
		return code
	}
	if tag, err := language.Parse(code); err == nil {
		return tag.String()
	}
	return code
}

func (pe *postgresEndpoint) Users(ctx context.Context, exclude Set[string]) (users []*SourceUser, err error) {
	if len(pe.domains) == 0 {
		err = fmt.Errorf("%w: %s resolved to no email domains", ErrConfigurationInvalid, EnvEmailDomains)
		return
	}
	var query, args = buildUserQuery(pe.domains, exclude)
	pe.logger.Debug("Querying source store", zap.Int("domains", len(pe.domains)), zap.Int("excluded", len(exclude)))

	var rows *sql.Rows
	if rows, err = pe.db.QueryContext(ctx, query, args...); err != nil {
		err = fmt.Errorf("%w: %w", ErrQueryFailed, err)
		return
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id, email string
		var lang, first, middle, last, phone sql.NullString
		if err = rows.Scan(&id, &email, &lang, &first, &middle, &last, &phone); err != nil {
			err = fmt.Errorf("%w: %w", ErrQueryFailed, err)
			return
		}
		users = append(users, &SourceUser{
			Id:                id,
			Email:             email,
			PreferredLanguage: canonicalLanguage(lang.String),
			FirstName:         first.String,
			MiddleName:        middle.String,
			LastName:          last.String,
			PhoneNumber:       phone.String,
		})
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("%w: %w", ErrQueryFailed, err)
		return
	}
	if len(users) >= MaxSourceRows {
		pe.logger.Warn("Source query hit the row cap; remaining users are left for a later run",
			zap.Int("cap", MaxSourceRows))
	}
	return
}
