package otp

import (
	"encoding/base32"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	potp "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	DefaultDigits = 6
	DefaultPeriod = 30

	MinDigits = 6
	MaxDigits = 8
)

var (
	ErrInvalidParams = errors.New("invalid otp parameters")
	ErrInvalidSeed   = errors.New("invalid otp seed")
)

var seedEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Params are the code generation parameters.
type Params struct {
	Digits    int
	Period    int // seconds per step
	Algorithm potp.Algorithm
}

// DefaultParams returns 6 digits, 30 second steps, HMAC-SHA1.
func DefaultParams() Params {
	return Params{Digits: DefaultDigits, Period: DefaultPeriod, Algorithm: potp.AlgorithmSHA1}
}

// Validate rejects parameters outside the supported range. Out-of-range
// values are configuration errors and are never replaced by defaults.
func (p Params) Validate() error {
	if p.Digits < MinDigits || p.Digits > MaxDigits {
		return fmt.Errorf("%w: digits %d not in [%d,%d]", ErrInvalidParams, p.Digits, MinDigits, MaxDigits)
	}
	if p.Period <= 0 {
		return fmt.Errorf("%w: period %d must be positive", ErrInvalidParams, p.Period)
	}
	switch p.Algorithm {
	case potp.AlgorithmSHA1, potp.AlgorithmSHA256, potp.AlgorithmSHA512:
	default:
		return fmt.Errorf("%w: unsupported algorithm %v", ErrInvalidParams, p.Algorithm)
	}
	return nil
}

func (p Params) opts(skew uint) totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(p.Period),
		Skew:      skew,
		Digits:    potp.Digits(p.Digits),
		Algorithm: p.Algorithm,
	}
}

// Code is a generated one-time code.
type Code struct {
	Value string
	// RemainingSeconds is how long Value stays current: period - (t mod period).
	RemainingSeconds int64
}

// FreshFor reports whether the code stays valid for strictly longer than margin.
func (c Code) FreshFor(margin time.Duration) bool {
	return time.Duration(c.RemainingSeconds)*time.Second > margin
}

// Key is a parsed seed together with its parameters.
type Key struct {
	secret string // normalised, unpadded base32
	params Params
}

// NewKey builds a Key from raw seed bytes.
func NewKey(seed []byte, p Params) (Key, error) {
	if len(seed) == 0 {
		return Key{}, fmt.Errorf("%w: empty", ErrInvalidSeed)
	}
	if err := p.Validate(); err != nil {
		return Key{}, err
	}
	return Key{secret: seedEncoding.EncodeToString(seed), params: p}, nil
}

// ParseKey parses a base32 seed or an otpauth://totp/ URI. Parameters not
// given by the URI come from defaults.
func ParseKey(seed string, defaults Params) (Key, error) {
	seed = strings.TrimSpace(seed)
	if strings.HasPrefix(strings.ToLower(seed), "otpauth://") {
		return parseURI(seed, defaults)
	}
	secret, err := normalizeSecret(seed)
	if err != nil {
		return Key{}, err
	}
	if err := defaults.Validate(); err != nil {
		return Key{}, err
	}
	return Key{secret: secret, params: defaults}, nil
}

func parseURI(raw string, p Params) (Key, error) {
	k, err := potp.NewKeyFromURL(raw)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if k.Type() != "totp" {
		return Key{}, fmt.Errorf("%w: unsupported otp type %q", ErrInvalidSeed, k.Type())
	}
	secret, err := normalizeSecret(k.Secret())
	if err != nil {
		return Key{}, err
	}

	// pquerna folds unknown digit counts to 6, so read the raw values.
	u, err := url.Parse(raw)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	q := u.Query()
	if v := q.Get("digits"); v != "" {
		if p.Digits, err = strconv.Atoi(v); err != nil {
			return Key{}, fmt.Errorf("%w: digits %q", ErrInvalidParams, v)
		}
	}
	if v := q.Get("period"); v != "" {
		if p.Period, err = strconv.Atoi(v); err != nil {
			return Key{}, fmt.Errorf("%w: period %q", ErrInvalidParams, v)
		}
	}
	if q.Get("algorithm") != "" {
		p.Algorithm = k.Algorithm()
	}
	if err := p.Validate(); err != nil {
		return Key{}, err
	}
	return Key{secret: secret, params: p}, nil
}

func normalizeSecret(s string) (string, error) {
	s = strings.ToUpper(strings.Join(strings.Fields(s), ""))
	s = strings.TrimRight(s, "=")
	raw, err := seedEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("%w: not base32", ErrInvalidSeed)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: empty", ErrInvalidSeed)
	}
	return s, nil
}

// Params returns the parameters the key generates codes with.
func (k Key) Params() Params {
	return k.params
}

// Generate returns the code for the step containing t.
func (k Key) Generate(t time.Time) (Code, error) {
	value, err := totp.GenerateCodeCustom(k.secret, t, k.params.opts(0))
	if err != nil {
		return Code{}, fmt.Errorf("generate code: %w", err)
	}
	period := int64(k.params.Period)
	return Code{Value: value, RemainingSeconds: period - t.Unix()%period}, nil
}

// Validate reports whether code matches any step in [current-skew, current+skew].
// The comparison is constant time.
func (k Key) Validate(code string, t time.Time, skew uint) bool {
	if len(code) != k.params.Digits {
		return false
	}
	ok, err := totp.ValidateCustom(code, k.secret, t, k.params.opts(skew))
	return err == nil && ok
}

// Generate parses seed with p and returns the code for t.
func Generate(seed string, t time.Time, p Params) (Code, error) {
	k, err := ParseKey(seed, p)
	if err != nil {
		return Code{}, err
	}
	return k.Generate(t)
}

// Validate parses seed with p and checks code against t with the given skew.
func Validate(seed, code string, t time.Time, p Params, skew uint) (bool, error) {
	k, err := ParseKey(seed, p)
	if err != nil {
		return false, err
	}
	return k.Validate(code, t, skew), nil
}
