package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"ledmkt-backend/internal/config"
	"ledmkt-backend/internal/model"
	"ledmkt-backend/internal/registration"
	"ledmkt-backend/internal/storage"
	"ledmkt-backend/pkg/logger"
)

const (
	DefaultSessionTTL = 24 * time.Hour
	DefaultUserName   = "Usuário"

	msgSessionExpired  = "Sua sessão expirou. Faça login novamente."
	msgPasswordsDiffer = "As senhas não coincidem!"
	msgPasswordShort   = "A senha deve ter pelo menos 6 caracteres!"
	msgInvalidEmail    = "Email inválido!"
	msgMissingFields   = "Preencha todos os campos!"
)

var adminUser = model.User{
	ID:      "admin",
	Name:    "Administrador",
	Email:   "admin@ledmkt.com",
	IsAdmin: true,
}

// UserService keeps the logged-in user and the local account list.
type UserService struct {
	storage     storage.Storage
	notifier    Notifier
	sender      registration.Sender
	validate    *validator.Validate
	adminSecret string
	sessionTTL  time.Duration
	hashCost    int
	now         func() time.Time

	mu   sync.RWMutex
	user *model.User

	// serializes the read-modify-write of the account list
	accountsMu sync.Mutex
}

func NewUserService(store storage.Storage, notifier Notifier, sender registration.Sender, cfg config.AuthConfig) *UserService {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &UserService{
		storage:     store,
		notifier:    notifier,
		sender:      sender,
		validate:    validator.New(),
		adminSecret: cfg.AdminSecret,
		sessionTTL:  ttl,
		hashCost:    bcrypt.DefaultCost,
		now:         time.Now,
	}
}

// WithClock replaces the time source.
func (s *UserService) WithClock(now func() time.Time) *UserService {
	s.now = now
	return s
}

// RestoreSession loads the stored user if the login is younger than the
// session TTL. Anything else clears both session keys.
func (s *UserService) RestoreSession(ctx context.Context) (*model.User, error) {
	var user model.User
	hasUser, userErr := storage.LoadJSON(ctx, s.storage, storage.KeyUser, &user)
	rawTS, tsErr := s.storage.Get(ctx, storage.KeyLoginTimestamp)

	if userErr != nil && !errors.Is(userErr, storage.ErrInvalidData) {
		return nil, userErr
	}
	if tsErr != nil && !errors.Is(tsErr, storage.ErrKeyNotFound) {
		return nil, tsErr
	}

	if !hasUser || errors.Is(tsErr, storage.ErrKeyNotFound) {
		return nil, s.clearSession(ctx)
	}

	loginMillis, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil || userErr != nil {
		logger.Warnf("Discarding corrupt session record: user=%v timestamp=%v", userErr, err)
		return nil, s.clearSession(ctx)
	}

	if s.now().Sub(time.UnixMilli(loginMillis)) > s.sessionTTL {
		if err := s.clearSession(ctx); err != nil {
			return nil, err
		}
		s.notifier.Notify(LevelInfo, msgSessionExpired)
		return nil, nil
	}

	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()

	return s.CurrentUser(), nil
}

func (s *UserService) Register(ctx context.Context, req model.RegisterRequest) (*model.User, error) {
	if err := s.validateRegistration(req); err != nil {
		s.notifier.Notify(LevelError, err.Error())
		return nil, err
	}

	record, err := s.addAccount(ctx, req)
	if errors.Is(err, ErrEmailTaken) {
		s.notifier.Notify(LevelError, ErrEmailTaken.Error())
	}
	if err != nil {
		return nil, err
	}

	user, err := s.login(ctx, model.User{ID: record.ID, Name: record.Name, Email: record.Email})
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(LevelSuccess, fmt.Sprintf("Cadastro realizado com sucesso! Bem-vindo, %s!", req.Name))

	s.forwardRegistration(ctx, record)
	return user, nil
}

// addAccount appends a new account unless its email is already taken.
func (s *UserService) addAccount(ctx context.Context, req model.RegisterRequest) (model.RegisteredUser, error) {
	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()

	users, err := s.registeredUsers(ctx)
	if err != nil {
		return model.RegisteredUser{}, err
	}
	for _, u := range users {
		if u.Email == req.Email {
			return model.RegisteredUser{}, ErrEmailTaken
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return model.RegisteredUser{}, fmt.Errorf("hash password: %w", err)
	}

	record := model.RegisteredUser{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		Whatsapp:     req.Whatsapp,
		Age:          req.Age,
		Gender:       req.Gender,
	}
	users = append(users, record)
	if err := storage.SaveJSON(ctx, s.storage, storage.KeyUsers, users); err != nil {
		return model.RegisteredUser{}, fmt.Errorf("save users: %w", err)
	}
	return record, nil
}

func (s *UserService) forwardRegistration(ctx context.Context, record model.RegisteredUser) {
	if s.sender == nil {
		return
	}
	err := s.sender.Forward(ctx, registration.Data{
		Name:     record.Name,
		Email:    record.Email,
		Whatsapp: record.Whatsapp,
		Age:      record.Age,
		Gender:   record.Gender,
	})
	if err != nil {
		logger.Warnf("Registration notice for %s not delivered: %v", record.Email, err)
	}
}

func (s *UserService) validateRegistration(req model.RegisterRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Message: msgMissingFields}
	}

	message := msgMissingFields
	rank := 0
	for _, fe := range fieldErrs {
		switch {
		case fe.Field() == "ConfirmPassword" && fe.Tag() == "eqfield",
			fe.Field() == "ConfirmPassword" && fe.Tag() == "required" && req.Password != "":
			return &ValidationError{Message: msgPasswordsDiffer}
		case fe.Field() == "Password" && fe.Tag() == "min" && rank < 2:
			message, rank = msgPasswordShort, 2
		case fe.Field() == "Email" && fe.Tag() == "email" && rank < 1:
			message, rank = msgInvalidEmail, 1
		}
	}
	return &ValidationError{Message: message}
}

func (s *UserService) Login(ctx context.Context, email, password string) (*model.User, error) {
	users, err := s.registeredUsers(ctx)
	if err != nil {
		return nil, err
	}

	for _, u := range users {
		if u.Email != email {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
			break
		}

		user, err := s.login(ctx, model.User{ID: u.ID, Name: u.Name, Email: u.Email})
		if err != nil {
			return nil, err
		}
		s.notifier.Notify(LevelSuccess, fmt.Sprintf("Bem-vindo, %s!", u.Name))
		return user, nil
	}

	s.notifier.Notify(LevelError, ErrInvalidCredentials.Error())
	return nil, ErrInvalidCredentials
}

func (s *UserService) LoginAsAdmin(ctx context.Context, secret string) (*model.User, error) {
	if s.adminSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(s.adminSecret)) != 1 {
		s.notifier.Notify(LevelError, ErrInvalidAdminSecret.Error())
		return nil, ErrInvalidAdminSecret
	}

	user, err := s.login(ctx, adminUser)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(LevelSuccess, "Login como administrador realizado com sucesso!")
	return user, nil
}

func (s *UserService) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()

	if err := s.clearSession(ctx); err != nil {
		return err
	}
	s.notifier.Notify(LevelSuccess, "Logout realizado com sucesso!")
	return nil
}

// UpdateUser applies patch to the current user, creating one when nobody is
// logged in.
func (s *UserService) UpdateUser(ctx context.Context, patch model.UserPatch) (*model.User, error) {
	s.mu.Lock()
	if s.user == nil {
		u := &model.User{
			ID:        uuid.New().String(),
			Name:      DefaultUserName,
			CreatedAt: s.now(),
		}
		s.user = u
	}
	if patch.Name != nil && *patch.Name != "" {
		s.user.Name = *patch.Name
	}
	if patch.Email != nil {
		s.user.Email = *patch.Email
	}
	if patch.Avatar != nil {
		s.user.Avatar = *patch.Avatar
	}
	snapshot := *s.user
	s.mu.Unlock()

	if err := s.saveUser(ctx, snapshot, false); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (s *UserService) UpdateAvatar(ctx context.Context, avatarURL string) (*model.User, error) {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	s.user.Avatar = avatarURL
	snapshot := *s.user
	s.mu.Unlock()

	if err := s.saveUser(ctx, snapshot, false); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// CurrentUser returns a copy of the logged-in user, or nil.
func (s *UserService) CurrentUser() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *UserService) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

func (s *UserService) login(ctx context.Context, user model.User) (*model.User, error) {
	user.CreatedAt = s.now()

	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()

	if err := s.saveUser(ctx, user, true); err != nil {
		return nil, err
	}
	return s.CurrentUser(), nil
}

// saveUser writes the user record. The login timestamp is rewritten on a
// fresh login and otherwise only created when missing.
func (s *UserService) saveUser(ctx context.Context, user model.User, freshLogin bool) error {
	if err := storage.SaveJSON(ctx, s.storage, storage.KeyUser, user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}

	if !freshLogin {
		_, err := s.storage.Get(ctx, storage.KeyLoginTimestamp)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrKeyNotFound) {
			return err
		}
	}

	ts := strconv.FormatInt(s.now().UnixMilli(), 10)
	if err := s.storage.Set(ctx, storage.KeyLoginTimestamp, ts); err != nil {
		return fmt.Errorf("save login timestamp: %w", err)
	}
	return nil
}

func (s *UserService) clearSession(ctx context.Context) error {
	if err := s.storage.Remove(ctx, storage.KeyUser); err != nil {
		return err
	}
	return s.storage.Remove(ctx, storage.KeyLoginTimestamp)
}

func (s *UserService) registeredUsers(ctx context.Context) ([]model.RegisteredUser, error) {
	var users []model.RegisteredUser
	if _, err := storage.LoadJSON(ctx, s.storage, storage.KeyUsers, &users); err != nil {
		if errors.Is(err, storage.ErrInvalidData) {
			logger.Errorf("Error loading users: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return users, nil
}
