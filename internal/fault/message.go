package fault

import "golang.org/x/text/language"

var supported = []language.Tag{
	language.English, // first entry is the fallback
	language.Arabic,
}

var matcher = language.NewMatcher(supported)

var catalog = map[language.Tag]map[Kind]string{
	language.English: {
		KindInternal:        "Something went wrong. Please try again later.",
		KindUnauthenticated: "Your session has expired. Please sign in again.",
		KindForbidden:       "You do not have permission to perform this action.",
		KindRateLimited:     "Too many requests. Please wait before trying again.",
		KindValidation:      "Some of the submitted data is invalid.",
		KindConflict:        "This record already exists.",
		KindNotFound:        "The requested resource was not found.",
	},
	language.Arabic: {
		KindInternal:        "حدث خطأ ما. يرجى المحاولة لاحقاً.",
		KindUnauthenticated: "انتهت صلاحية الجلسة. يرجى تسجيل الدخول مرة أخرى.",
		KindForbidden:       "ليست لديك صلاحية لتنفيذ هذا الإجراء.",
		KindRateLimited:     "طلبات كثيرة جداً. يرجى الانتظار قبل المحاولة مرة أخرى.",
		KindValidation:      "بعض البيانات المرسلة غير صالحة.",
		KindConflict:        "هذا السجل موجود بالفعل.",
		KindNotFound:        "المورد المطلوب غير موجود.",
	},
}

// Message returns the user-facing text for k in the best language matching
// acceptLanguage (an Accept-Language header value).
func Message(k Kind, acceptLanguage string) string {
	tag := negotiate(acceptLanguage)
	if msgs, ok := catalog[tag]; ok {
		if m, ok := msgs[k]; ok {
			return m
		}
	}
	return catalog[language.English][k]
}

func negotiate(acceptLanguage string) language.Tag {
	if acceptLanguage == "" {
		return language.English
	}
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return language.English
	}
	_, idx, _ := matcher.Match(prefs...)
	return supported[idx]
}
