package user

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"im-server/internal/model"
	"im-server/internal/repository"
	"im-server/pkg/imerr"
	"im-server/pkg/jwt"
	"im-server/pkg/kv"
	"im-server/pkg/password"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 验证码有效期与发送频率限制
const (
	verifyCodeTTL  = 10 * time.Minute
	verifyRateTTL  = time.Minute
	verifyCodeSize = 6
)

// Service 用户服务
type Service struct {
	repo   *repository.UserRepository
	jwtSvc *jwt.JWTService
	rdb    *redis.Client
	log    *zap.Logger
}

// NewService 创建用户服务
func NewService(repo *repository.UserRepository, jwtSvc *jwt.JWTService, log *zap.Logger) *Service {
	return &Service{repo: repo, jwtSvc: jwtSvc, rdb: kv.Client(), log: log}
}

// Register 注册用户并签发token
func (s *Service) Register(username, email, plainPassword string) (*model.User, string, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || plainPassword == "" {
		return nil, "", imerr.Invalid("用户名和密码不能为空")
	}

	taken, err := s.repo.ExistsByUsernameOrEmail(username, email)
	if err != nil {
		return nil, "", imerr.Storage("查询用户失败", err)
	}
	if taken {
		return nil, "", imerr.New(imerr.CodeUserAlreadyExists, "用户名或邮箱已被占用")
	}

	hash, err := password.Hash(plainPassword)
	if err != nil {
		return nil, "", imerr.Wrap(imerr.CodeUserRegisterFailed, "密码哈希失败", err)
	}

	u := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         "user",
		Approved:     true,
		Status:       "offline",
		LastSeen:     time.Now(),
	}
	if err := s.repo.Create(u); err != nil {
		return nil, "", imerr.Storage("创建用户失败", err)
	}

	token, err := s.issueToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Login 登录校验并签发token，同时写入登录日志
func (s *Service) Login(identifier, plainPassword, ip, device string) (*model.User, string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || plainPassword == "" {
		return nil, "", imerr.Invalid("账号和密码不能为空")
	}

	u, err := s.repo.GetByUsernameOrEmail(identifier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", imerr.New(imerr.CodeUserAuthFailed, "账号或密码错误")
		}
		return nil, "", imerr.Storage("查询用户失败", err)
	}

	ok := password.Verify(plainPassword, u.PasswordHash)

	// 登录日志成败都记
	_ = s.repo.CreateLoginLog(&model.LoginLog{
		UserID:  u.ID,
		IP:      ip,
		Device:  device,
		Success: ok,
	})

	if !ok {
		return nil, "", imerr.New(imerr.CodeUserAuthFailed, "账号或密码错误")
	}
	if !u.Approved {
		return nil, "", imerr.New(imerr.CodeUserNotApproved, "账号待管理员审批")
	}

	token, err := s.issueToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// GetProfile 获取用户资料
func (s *Service) GetProfile(userID uint64) (*model.User, error) {
	u, err := s.repo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, imerr.New(imerr.CodeUserNotFound, "用户不存在")
		}
		return nil, imerr.Storage("查询用户失败", err)
	}
	return u, nil
}

// UpdateProfile 更新昵称和头像
func (s *Service) UpdateProfile(userID uint64, nickname, avatar string) error {
	updates := make(map[string]interface{})
	if nickname != "" {
		updates["nickname"] = nickname
	}
	if avatar != "" {
		updates["avatar"] = avatar
	}
	if len(updates) == 0 {
		return imerr.Invalid("没有需要更新的字段")
	}
	if err := s.repo.UpdateInfo(userID, updates); err != nil {
		return imerr.Storage("更新用户资料失败", err)
	}
	return nil
}

// GetSettings 获取用户设置
func (s *Service) GetSettings(userID uint64) (*model.UserSettings, error) {
	settings, err := s.repo.GetSettings(userID)
	if err != nil {
		return nil, imerr.Storage("查询用户设置失败", err)
	}
	return settings, nil
}

// SaveSettings 保存用户设置
func (s *Service) SaveSettings(settings *model.UserSettings) error {
	if err := s.repo.SaveSettings(settings); err != nil {
		return imerr.Storage("保存用户设置失败", err)
	}
	return nil
}

// Approve 管理员审批用户
func (s *Service) Approve(userID, approverID uint64, approved bool, reason string) error {
	err := s.repo.Approve(userID, approverID, approved, reason)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return imerr.New(imerr.CodeUserNotFound, "用户不存在")
		}
		return imerr.Storage("审批用户失败", err)
	}
	return nil
}

// SendVerificationCode 生成邮箱验证码
// 写入KV并限制发送频率；邮件投递由外部通道负责，这里返回生成的验证码
func (s *Service) SendVerificationCode(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", imerr.Invalid("邮箱不能为空")
	}
	if s.rdb == nil {
		return "", imerr.Cache("redis客户端未初始化", nil)
	}

	ctx := context.Background()

	// 频率限制：1分钟内只允许发送一次
	ok, err := s.rdb.SetNX(ctx, kv.EmailVerifyRateKey(email), 1, verifyRateTTL).Result()
	if err != nil {
		return "", imerr.Cache("检查发送频率失败", err)
	}
	if !ok {
		return "", imerr.New(imerr.CodeRateLimited, "验证码发送过于频繁")
	}

	code, err := randomCode(verifyCodeSize)
	if err != nil {
		return "", imerr.Internal("生成验证码失败")
	}
	if err := s.rdb.Set(ctx, kv.VerificationCodeKey(email), code, verifyCodeTTL).Err(); err != nil {
		return "", imerr.Cache("保存验证码失败", err)
	}

	s.log.Info("验证码已生成", zap.String("email", email))
	return code, nil
}

// VerifyCode 校验邮箱验证码，校验通过后删除
func (s *Service) VerifyCode(email, code string) error {
	if s.rdb == nil {
		return imerr.Cache("redis客户端未初始化", nil)
	}

	ctx := context.Background()
	stored, err := s.rdb.Get(ctx, kv.VerificationCodeKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return imerr.New(imerr.CodeUserVerifyExpired, "验证码不存在或已过期")
		}
		return imerr.Cache("读取验证码失败", err)
	}
	if stored != code {
		return imerr.New(imerr.CodeUserVerifyFailed, "验证码错误")
	}

	_ = s.rdb.Del(ctx, kv.VerificationCodeKey(email)).Err()
	return nil
}

// issueToken 签发访问令牌
func (s *Service) issueToken(u *model.User) (string, error) {
	token, err := s.jwtSvc.GenerateToken(u.ID, map[string]interface{}{
		"username": u.Username,
		"role":     u.Role,
	})
	if err != nil {
		return "", imerr.Wrap(imerr.CodeInternal, "签发token失败", err)
	}
	return token, nil
}

// randomCode 生成指定位数的数字验证码
func randomCode(digits int) (string, error) {
	max := big.NewInt(10)
	var b strings.Builder
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%d", n.Int64())
	}
	return b.String(), nil
}
