package shortlink

import (
	"net/url"
	"regexp"
	"strings"
)

// ValidateURL 校验用户输入的目标地址。
//
// 规则：
// - 不能为空/纯空白
// - 必须是绝对地址，scheme 只能是 http/https
// - host 不能为空，且不能带空白或控制字符
// - 不接受 user:password@host 形式，避免钓鱼链接伪装域名
func ValidateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return ErrInvalidURL
	}
	if raw != strings.TrimSpace(raw) || strings.ContainsAny(raw, " \t\r\n") {
		return ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}
	if !u.IsAbs() {
		return ErrInvalidURL
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrInvalidURL
	}
	if u.Opaque != "" || u.User != nil {
		return ErrInvalidURL
	}
	host := u.Hostname()
	if host == "" || !validHost(host) {
		return ErrInvalidURL
	}
	if port := u.Port(); port != "" && !portRe.MatchString(port) {
		return ErrInvalidURL
	}
	return nil
}

var (
	portRe  = regexp.MustCompile(`^[0-9]{1,5}$`)
	labelRe = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?$`)
)

func validHost(host string) bool {
	// IPv6 字面量已被 Hostname() 去掉了方括号
	if strings.Contains(host, ":") {
		return true
	}
	host = strings.TrimSuffix(host, ".")
	if len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if !labelRe.MatchString(label) {
			return false
		}
	}
	return true
}

// 短码直接出现在 /s/:code 路径里，只允许不需要转义的字符
var codeRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// ValidateCode 校验用户自定义短码：字母、数字、下划线、连字符，1~32 个字符。
// 是否已被占用由存储层判断。
func ValidateCode(code string) error {
	if !codeRe.MatchString(code) {
		return ErrInvalidCode
	}
	return nil
}
