package utils

// Server-side messages for fixed keys. Error keys are "error.<code>".

var translations = map[string]map[string]string{
	"en": {
		"health.ok":                            "ok",
		"error.invalid_request":                "The request is invalid.",
		"error.missing_token":                  "A participant token is required.",
		"error.invalid_token":                  "This link is not valid.",
		"error.already_completed":              "You have already completed this questionnaire.",
		"error.incomplete_answers":             "Please answer every question before finishing.",
		"error.concurrent_completion":          "This questionnaire was completed from another window.",
		"error.persistence_failure":            "Your answers could not be saved. Please try again.",
		"error.free_text_persistence_failure":  "Your comment could not be saved. Please try again.",
		"error.completion_persistence_failure": "Completion could not be recorded. Please try again.",
		"error.not_found":                      "Not found.",
		"error.unauthorized":                   "Sign in required.",
		"error.method_not_allowed":             "Method not allowed.",
		"error.too_many_requests":              "Too many requests. Please slow down.",
	},
	"zh": {
		"health.ok":                            "好的",
		"error.invalid_request":                "请求无效。",
		"error.missing_token":                  "缺少参与者令牌。",
		"error.invalid_token":                  "该链接无效。",
		"error.already_completed":              "您已经完成了这份问卷。",
		"error.incomplete_answers":             "请在提交前回答所有问题。",
		"error.concurrent_completion":          "该问卷已在其他窗口中完成。",
		"error.persistence_failure":            "答案保存失败，请重试。",
		"error.free_text_persistence_failure":  "留言保存失败，请重试。",
		"error.completion_persistence_failure": "无法记录完成状态，请重试。",
		"error.not_found":                      "未找到。",
		"error.unauthorized":                   "需要登录。",
		"error.method_not_allowed":             "不支持该请求方法。",
		"error.too_many_requests":              "请求过于频繁，请稍后再试。",
	},
}

// T returns the translated string for key in locale; falls back to English.
func T(locale, key string) string {
	if m, ok := translations[locale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if m, ok := translations["en"]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return key
}
