package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher 口令哈希
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) (bool, error)
}

// ============================================================================
// bcrypt
// ============================================================================

// BcryptHasher bcrypt 实现
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(b), err
}

func (h BcryptHasher) Verify(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return err == nil, err
}

// ============================================================================
// argon2id (PHC 字符串格式)
// ============================================================================

const argon2Prefix = "$argon2id$"

// Argon2Params argon2id 参数
type Argon2Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params 默认参数（64 MiB, t=1, p=4）
var DefaultArgon2Params = Argon2Params{Memory: 64 * 1024, Time: 1, Parallelism: 4, SaltLength: 16, KeyLength: 32}

// Argon2Hasher argon2id 实现
type Argon2Hasher struct {
	Params Argon2Params
}

func (h Argon2Hasher) Hash(password string) (string, error) {
	p := h.Params
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Parallelism, p.KeyLength)
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version, p.Memory, p.Time, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (h Argon2Hasher) Verify(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, errors.New("invalid argon2id hash")
	}
	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || version != argon2.Version {
		return false, errors.New("unsupported argon2 version")
	}
	var memory, time uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &parallelism); err != nil {
		return false, fmt.Errorf("invalid argon2 params: %w", err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, errors.New("invalid salt encoding")
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false, errors.New("invalid hash encoding")
	}
	got := argon2.IDKey([]byte(password), salt, time, memory, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// ============================================================================
// 组合
// ============================================================================

// hasher 用首选算法生成哈希，按前缀识别已存哈希的算法
type hasher struct {
	primary PasswordHasher
	bcrypt  BcryptHasher
	argon2  Argon2Hasher
}

// NewPasswordHasher 按名称创建哈希器："bcrypt"（默认）或 "argon2id"
// 两种算法生成的哈希都可以被校验，便于切换算法后老用户仍能登录
func NewPasswordHasher(kind string, bcryptCost int) (PasswordHasher, error) {
	if bcryptCost != 0 && (bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost) {
		return nil, fmt.Errorf("bcrypt cost %d out of range", bcryptCost)
	}
	h := &hasher{
		bcrypt: BcryptHasher{Cost: bcryptCost},
		argon2: Argon2Hasher{Params: DefaultArgon2Params},
	}
	switch kind {
	case "", "bcrypt":
		h.primary = h.bcrypt
	case "argon2id":
		h.primary = h.argon2
	default:
		return nil, fmt.Errorf("unknown password hasher %q", kind)
	}
	return h, nil
}

func (h *hasher) Hash(password string) (string, error) {
	return h.primary.Hash(password)
}

func (h *hasher) Verify(password, hash string) (bool, error) {
	if strings.HasPrefix(hash, argon2Prefix) {
		return h.argon2.Verify(password, hash)
	}
	return h.bcrypt.Verify(password, hash)
}
