package account

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"
	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/gatheria/core"
)

var (
	roleTag  = "role"
	roleText = "invalid role"

	phoneTag    = "phone"
	phoneText   = "enter a valid phone number"
	phoneRegion = "KR"

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdComplexityTag  = "pwdcplx"
	pwdComplexityText = "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"
	specialRegex      = regexp.MustCompile("[^A-Za-z0-9]")

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to account attributes"

	pwdNoCommonTag     = "pwdnocommon"
	pwdNoCommonText    = "password is too common"
	commonPasswordsGz  = "assets/common-passwords.txt.gz"
	commonPasswords    []string
	commonPasswordsMux sync.RWMutex
)

// InitValidators registers the account validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator, conf *core.Config) {
	if conf.PhoneRegion != "" {
		phoneRegion = conf.PhoneRegion
	}

	_ = validate.RegisterValidation(roleTag, roleValidation)
	core.RegisterCustomTranslation(validate, translator, roleTag, roleText)

	_ = validate.RegisterValidation(phoneTag, phoneValidation)
	core.RegisterCustomTranslation(validate, translator, phoneTag, phoneText)

	validate.RegisterStructValidation(accountStructValidation, NewAccount{}, SetPassword{})
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(validate, translator, pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(validate, translator, pwdComplexityTag, pwdComplexityText)
	core.RegisterCustomTranslation(validate, translator, pwdAttrSimTag, pwdAttrSimText)
	core.RegisterCustomTranslation(validate, translator, pwdNoCommonTag, pwdNoCommonText)
}

// LoadCommonPasswords loads the gzipped list of common passwords rejected by the password policy.
func LoadCommonPasswords(fsys fs.FS, logger core.Logger) {
	pwds, err := readCommonPasswords(fsys)
	if err != nil {
		logger.Error("loading common passwords", err)
		return
	}
	commonPasswordsMux.Lock()
	commonPasswords = pwds
	commonPasswordsMux.Unlock()
}

func readCommonPasswords(fsys fs.FS) ([]string, error) {
	file, err := fsys.Open(commonPasswordsGz)
	if err != nil {
		return nil, errors.Wrap(err, "opening common passwords")
	}
	defer func() { _ = file.Close() }()

	gzRdr, err := gzip.NewReader(file)
	if err != nil {
		return nil, errors.Wrap(err, "reading common passwords")
	}
	defer func() { _ = gzRdr.Close() }()

	pwds := make([]string, 0, 128)
	scanner := bufio.NewScanner(gzRdr)
	for scanner.Scan() {
		if pwd := strings.TrimSpace(scanner.Text()); pwd != "" {
			pwds = append(pwds, strings.ToLower(pwd))
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scanning common passwords")
	}
	sort.Strings(pwds)
	return pwds, nil
}

func isCommonPassword(pwd string) bool {
	commonPasswordsMux.RLock()
	defer commonPasswordsMux.RUnlock()

	lpwd := strings.ToLower(pwd)
	idx := sort.SearchStrings(commonPasswords, lpwd)
	return idx < len(commonPasswords) && commonPasswords[idx] == lpwd
}

// NormalizePhone parses phone (national numbers are read in the configured region) and formats it as E.164.
func NormalizePhone(phone string) (string, error) {
	num, err := phonenumbers.Parse(phone, phoneRegion)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", errors.New("invalid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Custom Validators

func roleValidation(fl validator.FieldLevel) bool {
	_, ok := ParseRole(fl.Field().String())
	return ok
}

func phoneValidation(fl validator.FieldLevel) bool {
	_, err := NormalizePhone(fl.Field().String())
	return err == nil
}

// accountStructValidation applies the password policy to NewAccount and SetPassword.
func accountStructValidation(sl validator.StructLevel) {
	switch v := sl.Current().Interface().(type) {
	case NewAccount:
		validatePassword(v.Password, sl, v.Name, v.Email)
	case SetPassword:
		validatePassword(v.Password, sl, v.Email)
	}
}

// validatePassword applies the password policy to provided password:
// - minLen: 8
// - no whitespace
// - no all numeric
// - complexity: 1 upper, 1 lower, 1 digit, 1 special
// - no account attrs similarity
// - no common password
func validatePassword(pwd string, sl validator.StructLevel, attrs ...string) {
	if pwd == "" { // reported by `required`
		return
	}
	reportErr := func(tag string) {
		sl.ReportError(pwd, "password", "Password", tag, "")
	}

	var (
		digitCount         int
		hasUpper, hasLower bool
	)

	pwdLen := len([]rune(pwd))
	if pwdLen < pwdMinLen {
		reportErr(pwdMinLenTag)
		return
	}
	for _, char := range pwd {
		if unicode.IsSpace(char) {
			reportErr(pwdNoSpaceTag)
			return
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
		if !hasUpper && unicode.IsUpper(char) {
			hasUpper = true
		}
		if !hasLower && unicode.IsLower(char) {
			hasLower = true
		}
	}

	if digitCount == pwdLen {
		reportErr(pwdNotAllNumTag)
		return
	}

	if !(hasUpper && hasLower && digitCount > 0 && specialRegex.MatchString(pwd)) {
		reportErr(pwdComplexityTag)
		return
	}

	lpwd := strings.ToLower(pwd)
	for _, attr := range attrs {
		if attr == "" {
			continue
		}
		ratio := difflib.NewMatcher(strings.Split(lpwd, ""), strings.Split(strings.ToLower(attr), "")).QuickRatio()
		if ratio >= pwdMaxSim {
			reportErr(pwdAttrSimTag)
			return
		}
	}

	if isCommonPassword(pwd) {
		reportErr(pwdNoCommonTag)
	}
}

// SetPassword is the admin password reset payload.
type SetPassword struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (sp *SetPassword) Validate(validate *validator.Validate) error {
	sp.Email = core.CleanString(sp.Email, true /* lower */)
	return validate.Struct(sp)
}
