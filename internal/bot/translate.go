package bot

import "strings"

// Translate maps the upstream model's English refusal phrases (and raw
// policy-rejection payloads) to user-facing Chinese replies. A static
// lookup; unrecognized text passes through untouched.
func Translate(text string) string {
	if text == "" {
		return ""
	}

	if strings.Contains(text, "finishReason") {
		if strings.Contains(text, "IMAGE_SAFETY") {
			return "抱歉，您的请求可能违反了内容安全政策，无法生成或编辑图片。请尝试修改您的描述，提供更为安全、合规的内容。"
		}
		return "抱歉，图片处理失败，请尝试其他描述或稍后再试。"
	}

	if strings.Contains(text, "I'm unable to create this image") {
		switch {
		case strings.Contains(text, "sexually suggestive"):
			return "抱歉，我无法创建这张图片。我不能生成带有性暗示或促进有害刻板印象的内容。请提供其他描述。"
		case strings.Contains(text, "harmful"), strings.Contains(text, "dangerous"):
			return "抱歉，我无法创建这张图片。我不能生成可能有害或危险的内容。请提供其他描述。"
		case strings.Contains(text, "violent"):
			return "抱歉，我无法创建这张图片。我不能生成暴力或血腥的内容。请提供其他描述。"
		default:
			return "抱歉，我无法创建这张图片。请尝试修改您的描述，提供其他内容。"
		}
	}

	if strings.Contains(text, "cannot generate") || strings.Contains(text, "can't generate") {
		return "抱歉，我无法生成符合您描述的图片。请尝试其他描述。"
	}

	if strings.Contains(text, "against our content policy") {
		return "抱歉，您的请求违反了内容政策，无法生成相关图片。请提供其他描述。"
	}

	return text
}
