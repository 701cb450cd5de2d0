package utils

import (
	"github.com/abadojack/whatlanggo"
)

// 低于该置信度时不标注语言
const minLangConfidence = 0.5

// WhatLang returns the ISO 639-3 code of the detected language of text, or
// an empty string when the detector is not confident enough.
func WhatLang(text string) string {
	info := whatlanggo.Detect(text)
	if info.Confidence < minLangConfidence {
		return ""
	}
	return info.Lang.Iso6393()
}
