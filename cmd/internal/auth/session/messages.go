package session

import "strings"

// Messages is the catalog of user-facing strings surfaced through Snapshot.Err and Result.Message.
type Messages struct {
	SessionExpired string

	LoginFailed      string
	BadCredentials   string
	EmailNotVerified string
	MalformedLogin   string

	RegisterFailed    string
	RegisterSucceeded string
	MalformedSignup   string
	DuplicateEmail    string
	InvalidCode       string
	MissingCode       string

	VerifyFailed         string
	VerifySucceeded      string
	InvalidVerifyRequest string
	CodeSent             string
}

// EnglishMessages is the default catalog.
func EnglishMessages() Messages {
	return Messages{
		SessionExpired: "Your session has expired. Please log in again.",

		LoginFailed:      "Something went wrong while logging in.",
		BadCredentials:   "Email or password is incorrect.",
		EmailNotVerified: "Your email is not verified yet. Please check your inbox.",
		MalformedLogin:   "The server response has an unexpected format.",

		RegisterFailed:    "Something went wrong while signing up.",
		RegisterSucceeded: "Sign-up complete.",
		MalformedSignup:   "The server did not confirm the sign-up.",
		DuplicateEmail:    "This email is already in use.",
		InvalidCode:       "The verification code is invalid.",
		MissingCode:       "No verification code was entered.",

		VerifyFailed:         "Something went wrong while verifying your email.",
		VerifySucceeded:      "Email verified. Please log in.",
		InvalidVerifyRequest: "Invalid verification request.",
		CodeSent:             "A verification code was sent to your email.",
	}
}

// KoreanMessages is the catalog used by the Korean product.
func KoreanMessages() Messages {
	return Messages{
		SessionExpired: "인증 세션이 만료되었습니다. 다시 로그인해주세요.",

		LoginFailed:      "로그인 중 오류가 발생했습니다.",
		BadCredentials:   "이메일 또는 비밀번호가 올바르지 않습니다.",
		EmailNotVerified: "이메일 인증이 완료되지 않았습니다. 이메일을 확인해주세요.",
		MalformedLogin:   "서버 응답 형식이 잘못되었습니다.",

		RegisterFailed:    "회원가입 중 오류가 발생했습니다.",
		RegisterSucceeded: "회원가입이 완료되었습니다.",
		MalformedSignup:   "서버 응답이 성공 형식이 아닙니다.",
		DuplicateEmail:    "이미 사용 중인 이메일입니다.",
		InvalidCode:       "유효하지 않은 인증 코드입니다.",
		MissingCode:       "인증코드를 입력하지 않았습니다.",

		VerifyFailed:         "이메일 인증 중 오류가 발생했습니다.",
		VerifySucceeded:      "이메일 인증이 완료되었습니다. 로그인해주세요.",
		InvalidVerifyRequest: "잘못된 인증 요청입니다.",
		CodeSent:             "인증 코드가 이메일로 전송되었습니다.",
	}
}

// MessagesFor picks a catalog by locale tag ("ko", "ko-KR", "en", ...). Unknown tags get English.
func MessagesFor(locale string) Messages {
	tag := strings.ToLower(strings.TrimSpace(locale))
	if tag == "ko" || strings.HasPrefix(tag, "ko-") || strings.HasPrefix(tag, "ko_") {
		return KoreanMessages()
	}
	return EnglishMessages()
}
