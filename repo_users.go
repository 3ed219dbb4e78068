package gatekeeper

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserSortBy enumerates the orderings the directory listing supports.
type UserSortBy = string

const (
	SortByEmail        UserSortBy = "email"
	SortByLastActiveAt UserSortBy = "lastActiveAt"
	SortByCreatedAt    UserSortBy = "createdAt"
)

// ListUsersCriteria filters and orders a directory scan.
type ListUsersCriteria struct {
	Page            PageRequest
	EmailFilter     string
	SortBy          UserSortBy
	ShowDeactivated bool
}

// UserUpdate is a partial admin update. Nil fields are left untouched.
type UserUpdate struct {
	Role           *UserRole
	ExpirationDate *time.Time
}

// Users is the user directory
type Users interface {
	repository.Repository[*User]

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)

	Search(ctx context.Context, criteria ListUsersCriteria) ([]*User, int64, error)

	Apply(ctx context.Context, id uuid.UUID, update UserUpdate) (*User, error)
	Deactivate(ctx context.Context, id uuid.UUID, at time.Time) (*User, error)
	Reactivate(ctx context.Context, id uuid.UUID) (*User, error)
	TouchLastActive(ctx context.Context, id uuid.UUID, at time.Time) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)
	return a.Repository.CreateTx(ctx, tx, user)
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

// GetByEmailTx looks a user up by email. Lookups are case-insensitive,
// lookup(E) == lookup(lower(E)).
func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}

	err := tx.NewSelect().
		Model(record).
		Where("lower(?TableAlias.email) = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, goerrors.New("user not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound).
				WithMetadata(map[string]any{
					"email": NormalizeEmail(email),
				})
		}
		return nil, err
	}

	return record, nil
}

// GetByID shadows the generic lookup so an unknown id surfaces in the
// package error space, not the driver's.
func (a *users) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*User, error) {
	record, err := a.Repository.GetByID(ctx, id, criteria...)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, goerrors.New("user not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound).
				WithMetadata(map[string]any{
					"id": id,
				})
		}
		return nil, err
	}

	return record, nil
}

// Search performs the directory scan: filter, sort, then page-slice.
// Deactivated users are excluded unless explicitly requested.
func (a *users) Search(ctx context.Context, criteria ListUsersCriteria) ([]*User, int64, error) {
	page := NormalizePageRequest(criteria.Page)

	var records []*User
	q := a.db.NewSelect().Model(&records)

	if !criteria.ShowDeactivated {
		q = q.Where("?TableAlias.is_deactivated = ?", false)
	}

	if criteria.EmailFilter != "" {
		q = q.Where("?TableAlias.email LIKE ?", "%"+NormalizeEmail(criteria.EmailFilter)+"%")
	}

	switch criteria.SortBy {
	case SortByEmail:
		q = q.Order("email ASC")
	case SortByLastActiveAt:
		q = q.OrderExpr("last_active_at DESC NULLS LAST")
	default:
		q = q.Order("created_at DESC")
	}

	total, err := q.Limit(page.Limit).Offset(page.Offset()).ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}

	return records, int64(total), nil
}

// Apply persists a partial admin update and returns the fresh record.
func (a *users) Apply(ctx context.Context, id uuid.UUID, update UserUpdate) (*User, error) {
	q := a.db.NewUpdate().
		Model((*User)(nil)).
		Where("?TableAlias.id = ?", id.String())

	touched := false
	if update.Role != nil {
		q = q.Set("user_role = ?", string(*update.Role))
		touched = true
	}
	if update.ExpirationDate != nil {
		q = q.Set("expiration_date = ?", update.ExpirationDate)
		touched = true
	}

	if touched {
		q = q.Set("updated_at = ?", time.Now())
		if _, err := q.Exec(ctx); err != nil {
			return nil, err
		}
	}

	return a.Repository.GetByID(ctx, id.String())
}

// Deactivate soft-deletes the profile. The row stays for audit linkage.
func (a *users) Deactivate(ctx context.Context, id uuid.UUID, at time.Time) (*User, error) {
	_, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("is_deactivated = ?", true).
		Set("deactivated_at = ?", at).
		Set("updated_at = ?", at).
		Where("?TableAlias.id = ?", id.String()).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return a.Repository.GetByID(ctx, id.String())
}

// Reactivate clears the deactivation flag and timestamp.
func (a *users) Reactivate(ctx context.Context, id uuid.UUID) (*User, error) {
	_, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("is_deactivated = ?", false).
		Set("deactivated_at = NULL").
		Set("updated_at = ?", time.Now()).
		Where("?TableAlias.id = ?", id.String()).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return a.Repository.GetByID(ctx, id.String())
}

func (a *users) TouchLastActive(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("last_active_at = ?", at).
		Where("?TableAlias.id = ?", id.String()).
		Exec(ctx)
	return err
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleBasic
	}

	if record.RegistrationMethod == "" {
		record.RegistrationMethod = RegistrationMethodMagicLink
	}

	record.Email = NormalizeEmail(record.Email)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

// NormalizeEmail lowercases and trims an email so every store keys on the
// same representation.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
