package llm

import _ "embed"

var (
	//go:embed prompts/enhance_image.txt
	promptImage string
	//go:embed prompts/enhance_video.txt
	promptVideo string
	//go:embed prompts/enhance_audio.txt
	promptAudio string
)

// PromptTemplate returns the system prompt for a media kind and whether the kind was recognized.
func PromptTemplate(kind string) (string, bool) {
	switch kind {
	case "video":
		return promptVideo, true
	case "audio":
		return promptAudio, true
	case "image":
		return promptImage, true
	default:
		return promptImage, false
	}
}
