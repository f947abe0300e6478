package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrUnsupportedDSN : schéma de DSN non reconnu.
var ErrUnsupportedDSN = eris.New("unsupported dsn")

// Dialect identifie le moteur SQL ; il pilote placeholders, DDL et syntaxe d'upsert.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// driverName : nom enregistré par le driver database/sql.
func (d Dialect) driverName() string {
	return string(d)
}

// placeholder renvoie le marqueur du n-ième argument (base 1).
func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Open DSN → *Store. Accepte mariadb:// mysql:// postgres:// postgresql:// sqlite:// file:,
// un chemin .db/.sqlite, ou un DSN natif du driver MySQL. Renvoie aussi le DSN effectivement utilisé.
func Open(dsn string) (*Store, string, error) {
	dialect, driverDSN, err := resolveDSN(dsn)
	if err != nil {
		return nil, "", err
	}
	db, err := sql.Open(dialect.driverName(), driverDSN)
	if err != nil {
		return nil, "", eris.Wrapf(err, "open %s", dialect)
	}
	if dialect == DialectSQLite {
		// un seul writer SQLite ; évite aussi une base :memory: différente par connexion
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	return NewStore(db, dialect), driverDSN, nil
}

func resolveDSN(dsn string) (Dialect, string, error) {
	dsn = strings.TrimSpace(dsn)
	lower := strings.ToLower(dsn)
	switch {
	case dsn == "":
		return "", "", eris.Wrap(ErrUnsupportedDSN, "empty dsn")
	case strings.HasPrefix(lower, "mariadb://"), strings.HasPrefix(lower, "mysql://"):
		out, err := toMySQLDSN(dsn)
		return DialectMySQL, out, err
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DialectPostgres, dsn, nil
	case strings.HasPrefix(lower, "sqlite://"):
		return DialectSQLite, dsn[len("sqlite://"):], nil
	case strings.HasPrefix(lower, "file:"), lower == ":memory:",
		strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return DialectSQLite, dsn, nil
	case strings.Contains(dsn, "@tcp("), strings.Contains(dsn, "@unix("), strings.Contains(dsn, "@/"):
		return DialectMySQL, dsn, nil
	}
	return "", "", eris.Wrapf(ErrUnsupportedDSN, "%q", redact(dsn))
}

// toMySQLDSN : mariadb:// ou mysql:// → format du driver MySQL ; autre chose passe tel quel.
func toMySQLDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "mariadb://") || strings.HasPrefix(dsn, "mysql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", eris.Wrap(err, "parse dsn")
		}
		user := ""
		pass := ""
		if u.User != nil {
			user = u.User.Username()
			pass, _ = u.User.Password()
		}
		host := u.Host
		db := strings.TrimPrefix(u.Path, "/")
		if user == "" || host == "" || db == "" {
			return "", eris.New("dsn incomplet (user/host/db)")
		}
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC&interpolateParams=true",
			user, pass, host, db), nil
	}
	return dsn, nil
}

// redact masque le mot de passe éventuel avant log.
func redact(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
			return u.String()
		}
	}
	return dsn
}
