package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"membership-erp/models"
	"membership-erp/utils"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type AuthOptions struct {
	JWTSecret    string
	JWTExpiry    time.Duration
	OTPTTL       time.Duration
	AutoRegister bool
}

// AuthService handles password and one-time-code logins for staff.
type AuthService struct {
	store *Store
	otp   OTPStore
	email EmailSender
	text  TextSender
	opts  AuthOptions
	log   *logrus.Entry
}

func NewAuthService(store *Store, otp OTPStore, email EmailSender, text TextSender, opts AuthOptions, log *logrus.Logger) *AuthService {
	return &AuthService{
		store: store,
		otp:   otp,
		email: email,
		text:  text,
		opts:  opts,
		log:   log.WithField("component", "auth"),
	}
}

// EnsureAdmin seeds the first admin account when no admin exists yet.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	return s.store.Tx(ctx, "seed_admin", func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		hash, err := utils.HashPassword(password)
		if err != nil {
			return err
		}
		admin := models.User{
			Email:    strings.ToLower(email),
			Password: hash,
			Name:     "Administrator",
			Role:     models.RoleAdmin,
			IsActive: true,
		}
		if err := tx.Create(&admin).Error; err != nil {
			return err
		}
		s.log.WithField("email", admin.Email).Warn("seeded default admin account, change its password")
		return nil
	})
}

func (s *AuthService) findUser(ctx context.Context, identifier string) (*models.User, error) {
	var user models.User
	err := s.store.Read(ctx, "find_user", func(db *gorm.DB) error {
		if utils.IsEmail(identifier) {
			return db.Where("email = ?", strings.ToLower(identifier)).First(&user).Error
		}
		return db.Where("phone = ?", utils.NormalizePhone(identifier)).First(&user).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *AuthService) issue(ctx context.Context, user *models.User) (string, error) {
	token, err := utils.GenerateToken(s.opts.JWTSecret, s.opts.JWTExpiry, user.ID, user.Role)
	if err != nil {
		return "", err
	}
	now := time.Now()
	user.LastLogin = &now
	if err := s.store.Tx(ctx, "touch_login", func(tx *gorm.DB) error {
		return tx.Model(user).UpdateColumn("last_login", now).Error
	}); err != nil {
		s.log.WithError(err).Warn("failed to record last login")
	}
	return token, nil
}

// Login checks an email or phone plus password and returns a signed token.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*models.User, string, error) {
	user, err := s.findUser(ctx, strings.TrimSpace(identifier))
	if err != nil {
		if isNotFound(err) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if !user.IsActive || !utils.CheckPasswordHash(password, user.Password) {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.issue(ctx, user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// RequestOTP generates a code and sends it to the identifier: email
// addresses by mail, anything else by SMS.
func (s *AuthService) RequestOTP(ctx context.Context, identifier string) error {
	identifier = strings.TrimSpace(identifier)
	isEmail := utils.IsEmail(identifier)
	if isEmail {
		identifier = strings.ToLower(identifier)
		if err := validate.Var(identifier, "email"); err != nil {
			return &ValidationError{Field: "identifier", Message: "must be a valid email address or phone number"}
		}
	} else {
		identifier = utils.NormalizePhone(identifier)
		if !utils.ValidatePhone(identifier) {
			return &ValidationError{Field: "identifier", Message: "must be a valid email address or phone number"}
		}
	}

	code := utils.GenerateOTP(6)
	if err := s.otp.Save(ctx, identifier, code); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}

	body := fmt.Sprintf("Your login code is %s. It expires in %d minutes.", code, int(s.opts.OTPTTL.Minutes()))
	var err error
	if isEmail {
		if s.email == nil {
			return errors.New("email is not configured")
		}
		err = s.email.SendEmail(ctx, EmailMessage{To: []string{identifier}, Subject: "Your login code", Body: body})
	} else {
		if s.text == nil {
			return ErrSMSDisabled
		}
		_, err = s.text.SendText(ctx, identifier, body, false)
	}
	if err != nil {
		s.log.WithError(err).WithField("identifier", identifier).Error("failed to deliver otp")
		return fmt.Errorf("deliver otp: %w", err)
	}
	return nil
}

// VerifyOTP consumes a code and logs the user in. Unknown email addresses
// get a staff account when auto registration is on.
func (s *AuthService) VerifyOTP(ctx context.Context, identifier, code string) (*models.User, string, error) {
	identifier = strings.TrimSpace(identifier)
	if utils.IsEmail(identifier) {
		identifier = strings.ToLower(identifier)
	} else {
		identifier = utils.NormalizePhone(identifier)
	}

	if err := s.otp.Verify(ctx, identifier, strings.TrimSpace(code)); err != nil {
		if errors.Is(err, ErrOTPInvalid) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	user, err := s.findUser(ctx, identifier)
	switch {
	case err == nil:
	case isNotFound(err) && utils.IsEmail(identifier) && s.opts.AutoRegister:
		user, err = s.createUser(ctx, models.User{
			Email:    identifier,
			Name:     strings.SplitN(identifier, "@", 2)[0],
			Role:     models.RoleStaff,
			IsActive: true,
		}, utils.GenerateRandomString(24))
		if err != nil {
			return nil, "", err
		}
	case isNotFound(err):
		return nil, "", ErrInvalidCredentials
	default:
		return nil, "", err
	}
	if !user.IsActive {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.issue(ctx, user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

type CreateUserInput struct {
	Email    string `validate:"required,email"`
	Name     string `validate:"required"`
	Phone    string
	Password string `validate:"required,min=8"`
	Role     string `validate:"required,oneof=admin staff"`
}

func (s *AuthService) CreateUser(ctx context.Context, input CreateUserInput) (*models.User, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Name = strings.TrimSpace(input.Name)
	if input.Role == "" {
		input.Role = models.RoleStaff
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.Phone != "" {
		input.Phone = utils.NormalizePhone(input.Phone)
		if !utils.ValidatePhone(input.Phone) {
			return nil, &ValidationError{Field: "phone", Message: "invalid phone number format"}
		}
	}
	return s.createUser(ctx, models.User{
		Email:    input.Email,
		Name:     input.Name,
		Phone:    input.Phone,
		Role:     input.Role,
		IsActive: true,
	}, input.Password)
}

func (s *AuthService) createUser(ctx context.Context, user models.User, password string) (*models.User, error) {
	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user.Password = hash
	err = s.store.Tx(ctx, "create_user", func(tx *gorm.DB) error {
		return tx.Create(&user).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, &ConflictError{Message: "email already registered"}
	}
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("user created")
	return &user, nil
}

func (s *AuthService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.store.Read(ctx, "get_user", func(db *gorm.DB) error {
		return db.First(&user, id).Error
	})
	if err != nil {
		if isNotFound(err) {
			return nil, &NotFoundError{Entity: "user", ID: id}
		}
		return nil, err
	}
	return &user, nil
}

func (s *AuthService) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.store.Read(ctx, "list_users", func(db *gorm.DB) error {
		return db.Order("id ASC").Find(&users).Error
	})
	return users, err
}
