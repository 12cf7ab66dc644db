package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"photogallery/errs"
	"photogallery/mail"
	"photogallery/models"
	"photogallery/utils"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	DefaultLoginLinkTTL = 15 * time.Minute
	loginTokenBytes     = 32
	minPasswordLength   = 8
	minNameLength       = 2
)

var errBadCredentials = errs.New(errs.KindUnauthenticated, "Invalid email or password")

// Users manages accounts, password logins and login links
type Users struct {
	db      *gorm.DB
	mailer  mail.Mailer
	baseURL string
	linkTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func NewUsers(db *gorm.DB, mailer mail.Mailer, baseURL string, linkTTL time.Duration, logger *slog.Logger) *Users {
	if logger == nil {
		logger = slog.Default()
	}
	if mailer == nil {
		mailer = mail.NewLogMailer(logger)
	}
	if linkTTL <= 0 {
		linkTTL = DefaultLoginLinkTTL
	}
	return &Users{
		db:      db,
		mailer:  mailer,
		baseURL: baseURL,
		linkTTL: linkTTL,
		logger:  logger.With("component", "auth"),
		now:     time.Now,
	}
}

type NewUser struct {
	Email    string
	Password string
	Name     string
	Role     models.Role
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (n *NewUser) validate() error {
	n.Email = normalizeEmail(n.Email)
	n.Name = strings.TrimSpace(n.Name)
	if n.Role == "" {
		n.Role = models.RoleUser
	}
	at := strings.LastIndex(n.Email, "@")
	switch {
	case at < 1 || at == len(n.Email)-1:
		return errs.New(errs.KindValidation, "invalid email")
	case utf8.RuneCountInString(n.Password) < minPasswordLength:
		return errs.New(errs.KindValidation, "password must be at least 8 characters")
	case utf8.RuneCountInString(n.Name) < minNameLength:
		return errs.New(errs.KindValidation, "name must be at least 2 characters")
	case !n.Role.Valid():
		return errs.New(errs.KindValidation, "invalid role")
	}
	return nil
}

// Create adds a user with a bcrypt password hash. A taken email is a Conflict.
func (u *Users) Create(ctx context.Context, n NewUser) (*models.User, error) {
	if err := n.validate(); err != nil {
		return nil, err
	}
	if _, err := u.ByEmail(ctx, n.Email); err == nil {
		return nil, errs.New(errs.KindConflict, "User with this email already exists")
	} else if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(n.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "", err)
	}
	hashStr := string(hash)
	user := models.User{
		Email:        n.Email,
		PasswordHash: &hashStr,
		Name:         n.Name,
		Role:         n.Role,
		CreatedAt:    u.now().UTC(),
	}
	if err = u.db.WithContext(ctx).Create(&user).Error; err != nil {
		if _, lookupErr := u.ByEmail(ctx, n.Email); lookupErr == nil {
			return nil, errs.New(errs.KindConflict, "User with this email already exists")
		}
		return nil, errs.Wrap(errs.KindInternal, "", err)
	}
	u.logger.InfoContext(ctx, "user created", "user", user.ID, "role", user.Role)
	return &user, nil
}

// Register creates a regular user; self-registration never grants admin
func (u *Users) Register(ctx context.Context, email, password, name string) (*models.User, error) {
	return u.Create(ctx, NewUser{Email: email, Password: password, Name: name, Role: models.RoleUser})
}

func (u *Users) Login(ctx context.Context, email, password string) (*models.User, error) {
	user, err := u.ByEmail(ctx, email)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errBadCredentials
	} else if err != nil {
		return nil, err
	}
	if user.PasswordHash == nil || bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)) != nil {
		return nil, errBadCredentials
	}
	return user, nil
}

func (u *Users) ByID(ctx context.Context, id uint64) (*models.User, error) {
	var user models.User
	err := u.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.New(errs.KindNotFound, "User not found")
	} else if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "", err)
	}
	return &user, nil
}

func (u *Users) ByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := u.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.New(errs.KindNotFound, "User not found")
	} else if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "", err)
	}
	return &user, nil
}

func (u *Users) List(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	if err := u.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, errs.Wrap(errs.KindInternal, "", err)
	}
	return users, nil
}

// EligibleForAccess lists regular users. When there are none it falls back
// to every user except the requester.
func (u *Users) EligibleForAccess(ctx context.Context, requester *models.User) ([]models.User, error) {
	users := []models.User{}
	tx := u.db.WithContext(ctx).Order("id")
	if err := tx.Where("role = ?", models.RoleUser).Find(&users).Error; err != nil {
		return nil, errs.Wrap(errs.KindInternal, "", err)
	}
	if len(users) > 0 {
		return users, nil
	}
	q := u.db.WithContext(ctx).Order("id")
	if requester != nil {
		q = q.Where("id <> ?", requester.ID)
	}
	if err := q.Find(&users).Error; err != nil {
		return nil, errs.Wrap(errs.KindInternal, "", err)
	}
	return users, nil
}

// RequestLoginLink stores a fresh single-use token for the user, replacing
// any earlier one, and mails the link
func (u *Users) RequestLoginLink(ctx context.Context, email string) error {
	user, err := u.ByEmail(ctx, email)
	if err != nil {
		return err
	}
	token, err := utils.RandomHex(loginTokenBytes)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "", err)
	}
	expiry := u.now().UTC().Add(u.linkTTL)
	err = u.db.WithContext(ctx).Model(user).Updates(map[string]any{
		"verification_token":        token,
		"verification_token_expiry": expiry,
	}).Error
	if err != nil {
		return errs.Wrap(errs.KindInternal, "", err)
	}
	msg, err := mail.LoginLinkMessage(u.baseURL, user.Email, user.Name, token, u.linkTTL)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "", err)
	}
	if err = u.mailer.Send(ctx, msg); err != nil {
		u.logger.ErrorContext(ctx, "sending login link failed", "user", user.ID, "error", err)
		return errs.Wrap(errs.KindInternal, "Failed to send verification email", err)
	}
	return nil
}

// tokenMatches compares a stored login token in constant time
func tokenMatches(stored *string, token string) bool {
	if stored == nil || *stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*stored), []byte(token)) == 1
}

// Verify consumes a login link token
func (u *Users) Verify(ctx context.Context, email, token string) (*models.User, error) {
	invalid := errs.New(errs.KindUnauthenticated, "Invalid email or verification token")
	if token == "" {
		return nil, invalid
	}
	user, err := u.ByEmail(ctx, email)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, invalid
	} else if err != nil {
		return nil, err
	}
	if !tokenMatches(user.VerificationToken, token) {
		return nil, invalid
	}
	if user.VerificationTokenExpiry == nil || !u.now().Before(*user.VerificationTokenExpiry) {
		return nil, errs.New(errs.KindUnauthenticated, "Verification token has expired")
	}
	// the token condition makes a concurrent second use update nothing
	res := u.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND verification_token = ?", user.ID, token).
		Updates(map[string]any{"verification_token": nil, "verification_token_expiry": nil})
	if res.Error != nil {
		return nil, errs.Wrap(errs.KindInternal, "", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, invalid
	}
	user.VerificationToken = nil
	user.VerificationTokenExpiry = nil
	return user, nil
}

// EnsureAdmin creates the bootstrap admin unless a user with that email exists
func (u *Users) EnsureAdmin(ctx context.Context, email, name, password string) error {
	if strings.TrimSpace(email) == "" {
		return nil
	}
	if _, err := u.ByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	_, err := u.Create(ctx, NewUser{Email: email, Password: password, Name: name, Role: models.RoleAdmin})
	return err
}
