package bot

import (
	"strings"
	"testing"
)

func TestTranslate(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "empty passes through",
			in:   "",
			want: "",
		},
		{
			name: "safety rejection payload",
			in:   `{"finishReason": "IMAGE_SAFETY"}`,
			want: "内容安全政策",
		},
		{
			name: "other finish reason",
			in:   `{"finishReason": "OTHER"}`,
			want: "图片处理失败",
		},
		{
			name: "suggestive refusal",
			in:   "I'm unable to create this image because it is sexually suggestive.",
			want: "性暗示",
		},
		{
			name: "dangerous refusal",
			in:   "I'm unable to create this image, it could be dangerous.",
			want: "有害或危险",
		},
		{
			name: "violent refusal",
			in:   "I'm unable to create this image. It depicts violent acts.",
			want: "暴力或血腥",
		},
		{
			name: "generic refusal",
			in:   "I'm unable to create this image for you.",
			want: "请尝试修改您的描述",
		},
		{
			name: "cannot generate",
			in:   "Sorry, I cannot generate that.",
			want: "无法生成符合您描述的图片",
		},
		{
			name: "content policy",
			in:   "This request is against our content policy.",
			want: "违反了内容政策",
		},
		{
			name: "ordinary caption untouched",
			in:   "Here is your cat.",
			want: "Here is your cat.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Translate(tc.in)
			if !strings.Contains(got, tc.want) {
				t.Fatalf("Translate(%q) = %q, want it to contain %q", tc.in, got, tc.want)
			}
		})
	}
}
