package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"mutualfund-api/internal/shared/model"
	"mutualfund-api/internal/shared/notify"
	"mutualfund-api/internal/shared/storage"
	"mutualfund-api/pkg/logging"
)

// 密码长度限制，上限取 bcrypt 可处理的字节数，与所选哈希算法无关
const (
	MinPasswordLength = 6
	MaxPasswordBytes  = 72
)

var emailRegex = regexp.MustCompile(`^[\w-]+(\.[\w-]+)*@([\w-]+\.)+[a-zA-Z]{2,7}$`)

// 通知失败策略
const (
	NotifyStrict     = "strict"      // 通知失败即请求失败（状态已提交）
	NotifyBestEffort = "best_effort" // 通知失败只记录日志
)

// Observer 认证事件观察者（指标）
type Observer interface {
	AuthEvent(operation, outcome string)
	Notification(kind, outcome string)
}

type noopObserver struct{}

func (noopObserver) AuthEvent(string, string)    {}
func (noopObserver) Notification(string, string) {}

// ServiceConfig 认证流程配置
type ServiceConfig struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration
	NotifyPolicy    string
}

// DefaultServiceConfig 默认配置：验证令牌 24h，重置令牌 15m
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		VerificationTTL: 24 * time.Hour,
		ResetTTL:        15 * time.Minute,
		NotifyPolicy:    NotifyStrict,
	}
}

// Service 认证生命周期控制器
// 唯一读写凭据存储、唯一使用令牌签发器的组件
type Service struct {
	store    storage.UserStore
	hasher   PasswordHasher
	tokens   *TokenIssuer
	notifier notify.Notifier
	observer Observer
	logger   *logging.Logger
	cfg      ServiceConfig
	now      func() time.Time
}

// Option 服务选项
type Option func(*Service)

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithObserver 设置指标观察者
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithLogger 设置日志器
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService 创建认证服务
func NewService(store storage.UserStore, hasher PasswordHasher, tokens *TokenIssuer, notifier notify.Notifier, cfg ServiceConfig, opts ...Option) *Service {
	s := &Service{
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		notifier: notifier,
		observer: noopObserver{},
		logger:   logging.Default("auth"),
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.VerificationTTL <= 0 {
		s.cfg.VerificationTTL = 24 * time.Hour
	}
	if s.cfg.ResetTTL <= 0 {
		s.cfg.ResetTTL = 15 * time.Minute
	}
	return s
}

// ============================================================================
// 输入/输出
// ============================================================================

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type EmailInput struct {
	Email string `json:"email"`
}

type ResetPasswordInput struct {
	ResetToken  string `json:"resetToken"`
	NewPassword string `json:"newPassword"`
}

// Result 操作结果，User/Token 按操作可能为空
type Result struct {
	Message string
	User    *model.PublicUser
	Token   string
}

// ============================================================================
// 操作
// ============================================================================

// Register 注册：校验 → 查重 → 哈希 → 签发验证令牌 → 持久化 → 发送确认邮件
// 不签发会话令牌
func (s *Service) Register(ctx context.Context, in RegisterInput) (res *Result, err error) {
	defer func() { s.record(ctx, "register", err) }()

	if in.Name == "" || in.Email == "" || in.Password == "" {
		return nil, newError(KindInvalidInput, "Please provide all required fields.")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, newError(KindInvalidInput, "Please provided a valid name.")
	}
	email := normalizeEmail(in.Email)
	if !emailRegex.MatchString(email) {
		return nil, newError(KindInvalidInput, "Please provide a valid email address.")
	}
	if err := checkPasswordLength(in.Password); err != nil {
		return nil, err
	}

	existing, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, internalError("An error occurred while registering.", err)
	}
	if existing != nil {
		return nil, newError(KindConflict, "Email already registered.")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, internalError("An error occurred while registering.", err)
	}
	token, err := NewOpaqueToken()
	if err != nil {
		return nil, internalError("An error occurred while registering.", err)
	}

	now := s.now().UTC()
	user := &model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		ProfilePic:   model.DefaultProfilePic,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	user.SetVerificationToken(token, now.Add(s.cfg.VerificationTTL))

	// 唯一索引是并发注册的串行化点
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, newError(KindConflict, "Email already registered.")
		}
		return nil, internalError("An error occurred while registering.", err)
	}

	if err := s.notify(ctx, notify.KindVerification, func() error {
		return s.notifier.SendVerification(ctx, recipient(user), token)
	}); err != nil {
		return nil, internalError("Failed to send confirmation email.", err)
	}

	return &Result{Message: "User registered successfully.", User: user.Public()}, nil
}

// VerifyEmail 消费验证令牌，成功后发送欢迎邮件并签发会话令牌
func (s *Service) VerifyEmail(ctx context.Context, token string) (res *Result, err error) {
	defer func() { s.record(ctx, "verify_email", err) }()

	if token == "" {
		return nil, newError(KindInvalidInput, "Email verification code is required.")
	}

	user, err := s.lookupToken(ctx, token, s.store.GetUserByVerificationToken)
	if err != nil {
		return nil, s.tokenError(err, "Invalid or expired verification code.")
	}
	if user.IsEmailVerified {
		return nil, newError(KindInvalidInput, "Email is already verified.")
	}
	if err := checkExpiry(user.EmailVerificationExpiry, s.now()); err != nil {
		return nil, &Error{Kind: KindInvalidInput, Message: "Email verification code has expired.", Reason: tokenReason(err)}
	}

	// 并发请求读到同一令牌时只有一个能完成更新
	if err := s.store.ConsumeVerificationToken(ctx, token); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, s.tokenError(ErrTokenNotFound, "Invalid or expired verification code.")
		}
		return nil, internalError("An error occurred while verifying email.", err)
	}
	user.IsEmailVerified = true
	user.ClearVerificationToken()

	if err := s.notify(ctx, notify.KindWelcome, func() error {
		return s.notifier.SendWelcome(ctx, recipient(user))
	}); err != nil {
		return nil, internalError("Failed to send welcome email.", err)
	}

	session, err := s.tokens.IssueSession(user.ID)
	if err != nil {
		return nil, internalError("An error occurred while verifying email.", err)
	}
	return &Result{Message: "Email verified successfully.", User: user.Public(), Token: session}, nil
}

// Login 登录，未验证邮箱的用户无论密码是否正确都被拒绝
func (s *Service) Login(ctx context.Context, in LoginInput) (res *Result, err error) {
	defer func() { s.record(ctx, "login", err) }()

	if in.Email == "" || in.Password == "" {
		return nil, newError(KindInvalidInput, "Please provide both email and password.")
	}

	user, err := s.store.GetUserByEmail(ctx, normalizeEmail(in.Email))
	if err != nil {
		return nil, internalError("An error occurred while logging in.", err)
	}
	if user == nil {
		return nil, newError(KindNotFound, "User not found.")
	}
	if !user.IsEmailVerified {
		return nil, newError(KindForbidden, "Email not verified. Please verify your email first.")
	}

	ok, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		return nil, internalError("An error occurred while logging in.", err)
	}
	if !ok {
		return nil, newError(KindUnauthorized, "Invalid email or password.")
	}

	session, err := s.tokens.IssueSession(user.ID)
	if err != nil {
		return nil, internalError("An error occurred while logging in.", err)
	}
	return &Result{Message: "Login successful.", User: user.Public(), Token: session}, nil
}

// RequestPasswordReset 签发新的重置令牌，覆盖之前未使用的令牌
func (s *Service) RequestPasswordReset(ctx context.Context, in EmailInput) (res *Result, err error) {
	defer func() { s.record(ctx, "request_password_reset", err) }()

	if in.Email == "" {
		return nil, newError(KindInvalidInput, "Email is required.")
	}
	user, err := s.store.GetUserByEmail(ctx, normalizeEmail(in.Email))
	if err != nil {
		return nil, internalError("An error occurred while requesting password reset.", err)
	}
	if user == nil {
		return nil, newError(KindNotFound, "User not found.")
	}

	token, err := NewOpaqueToken()
	if err != nil {
		return nil, internalError("An error occurred while requesting password reset.", err)
	}
	if err := s.store.SetResetToken(ctx, user.ID, token, s.now().UTC().Add(s.cfg.ResetTTL)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newError(KindNotFound, "User not found.")
		}
		return nil, internalError("An error occurred while requesting password reset.", err)
	}

	if err := s.notify(ctx, notify.KindPasswordReset, func() error {
		return s.notifier.SendPasswordReset(ctx, recipient(user), token)
	}); err != nil {
		return nil, internalError("Failed to send password reset email.", err)
	}
	return &Result{Message: "Password reset email sent successfully."}, nil
}

// ResetPassword 消费重置令牌并替换密码哈希，不自动登录
func (s *Service) ResetPassword(ctx context.Context, in ResetPasswordInput) (res *Result, err error) {
	defer func() { s.record(ctx, "reset_password", err) }()

	if in.ResetToken == "" || in.NewPassword == "" {
		return nil, newError(KindInvalidInput, "Reset token and new password are required.")
	}
	if err := checkPasswordLength(in.NewPassword); err != nil {
		return nil, err
	}

	// 每次都按当前存储的令牌查询，被覆盖的旧令牌查不到
	user, err := s.lookupToken(ctx, in.ResetToken, s.store.GetUserByResetToken)
	if err != nil {
		return nil, s.tokenError(err, "Invalid or expired reset token.")
	}
	if err := checkExpiry(user.PasswordResetExpiry, s.now()); err != nil {
		return nil, &Error{Kind: KindInvalidInput, Message: "Reset token has expired.", Reason: tokenReason(err)}
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return nil, internalError("An error occurred while resetting password.", err)
	}
	// 令牌已被并发请求消费或被新令牌覆盖时不写入
	if err := s.store.ConsumeResetToken(ctx, in.ResetToken, hash); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, s.tokenError(ErrTokenNotFound, "Invalid or expired reset token.")
		}
		return nil, internalError("An error occurred while resetting password.", err)
	}
	return &Result{Message: "Password reset successfully."}, nil
}

// ResendVerification 为未验证用户重新签发验证令牌并发送确认邮件
func (s *Service) ResendVerification(ctx context.Context, in EmailInput) (res *Result, err error) {
	defer func() { s.record(ctx, "resend_verification", err) }()

	if in.Email == "" {
		return nil, newError(KindInvalidInput, "Email is required.")
	}
	user, err := s.store.GetUserByEmail(ctx, normalizeEmail(in.Email))
	if err != nil {
		return nil, internalError("An error occurred while resending verification email.", err)
	}
	if user == nil {
		return nil, newError(KindNotFound, "User not found.")
	}
	if user.IsEmailVerified {
		return nil, newError(KindInvalidInput, "Email is already verified.")
	}

	token, err := NewOpaqueToken()
	if err != nil {
		return nil, internalError("An error occurred while resending verification email.", err)
	}
	if err := s.store.SetVerificationToken(ctx, user.ID, token, s.now().UTC().Add(s.cfg.VerificationTTL)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newError(KindInvalidInput, "Email is already verified.")
		}
		return nil, internalError("An error occurred while resending verification email.", err)
	}

	if err := s.notify(ctx, notify.KindVerification, func() error {
		return s.notifier.SendVerification(ctx, recipient(user), token)
	}); err != nil {
		return nil, internalError("Failed to send confirmation email.", err)
	}
	return &Result{Message: "Verification email sent successfully."}, nil
}

// Authenticate 校验会话令牌并加载用户的公开视图
func (s *Service) Authenticate(ctx context.Context, sessionToken string) (_ *model.PublicUser, err error) {
	defer func() {
		if err != nil {
			s.record(ctx, "authenticate", err)
		}
	}()

	claims, err := s.tokens.ParseSession(sessionToken)
	if err != nil {
		return nil, &Error{
			Kind:    KindUnauthorized,
			Message: "Authentication invalid. Token verification failed.",
			Reason:  tokenReason(err),
		}
	}
	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, internalError("An error occurred while authenticating.", err)
	}
	if user == nil {
		return nil, &Error{
			Kind:    KindUnauthorized,
			Message: "Authentication invalid. Token verification failed.",
			Reason:  "user_not_found",
		}
	}
	return user.Public(), nil
}

// Logout 服务端不吊销令牌，只记录事件
func (s *Service) Logout(ctx context.Context) *Result {
	s.record(ctx, "logout", nil)
	return &Result{Message: "User logged out successfully."}
}

// SessionTTL 会话有效期（用于 cookie 过期时间）
func (s *Service) SessionTTL() time.Duration {
	return s.tokens.TTL()
}

// ============================================================================
// 内部函数
// ============================================================================

// lookupToken 校验格式后按令牌查询用户
func (s *Service) lookupToken(ctx context.Context, token string, find func(context.Context, string) (*model.User, error)) (*model.User, error) {
	if !validOpaqueToken(token) {
		return nil, ErrTokenMalformed
	}
	user, err := find(ctx, token)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrTokenNotFound
	}
	return user, nil
}

// tokenError 不存在和格式错误对外统一为 NotFound，日志中区分原因
func (s *Service) tokenError(err error, message string) error {
	if errors.Is(err, ErrTokenNotFound) || errors.Is(err, ErrTokenMalformed) {
		return &Error{Kind: KindNotFound, Message: message, Reason: tokenReason(err)}
	}
	return internalError("An error occurred while checking the token.", err)
}

// notify 执行通知并按策略处理失败
func (s *Service) notify(ctx context.Context, kind notify.Kind, send func() error) error {
	err := send()
	if err == nil {
		s.observer.Notification(string(kind), "sent")
		return nil
	}
	s.observer.Notification(string(kind), "failed")
	s.logger.WithContext(ctx).WithError(err).Error("notification failed", "kind", string(kind), "policy", s.cfg.NotifyPolicy)
	if s.cfg.NotifyPolicy == NotifyBestEffort {
		return nil
	}
	return err
}

// record 记录认证事件日志和指标
func (s *Service) record(ctx context.Context, operation string, err error) {
	outcome, reason := "success", ""
	if err != nil {
		outcome = "rejected"
		var e *Error
		if errors.As(err, &e) {
			reason = e.Reason
			if reason == "" {
				reason = e.Kind.String()
			}
		}
		if KindOf(err) == KindInternal {
			outcome = "error"
		}
	}
	s.observer.AuthEvent(operation, outcome)

	l := s.logger.WithContext(ctx)
	if outcome == "error" {
		l = l.WithError(err)
	}
	l.AuthEventLog(operation, outcome, reason)
}

func checkPasswordLength(password string) error {
	if len(password) < MinPasswordLength {
		return newError(KindInvalidInput, "Password must be at least 6 characters long.")
	}
	if len(password) > MaxPasswordBytes {
		return newError(KindInvalidInput, "Password must be at most 72 bytes long.")
	}
	return nil
}

func recipient(u *model.User) notify.Recipient {
	return notify.Recipient{UserID: u.ID, Name: u.Name, Email: u.Email}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
