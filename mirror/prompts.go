package mirror

import "fmt"

const basePrompt = "Generate an ultra-realistic photo based on the provided input image. " +
	"Return image data only, no text."

const keepIdentity = "Keep every person's appearance and identity exactly as in the original, " +
	"and keep the overall composition of the photo."

const keepObjects = "When changing objects, keep each object the same kind of thing (a cup stays a cup, " +
	"a chair stays a chair). Shift colours of clothes and props to nearby hues, never to opposite colours, " +
	"and leave white objects white."

var levelPrompts = map[int]string{
	1: "Pull the camera back so the scene looks shot from about 50% further away, " +
		"fill in the newly visible surroundings naturally, and turn the camera angle slightly.",
	2: "Move the camera about 50% closer, as if zoomed in, and change the camera angle noticeably.",
	3: "Pull the camera back about 50% and fill in the newly visible surroundings, turn the camera angle, " +
		"move and recolour furniture and props naturally, and change each person's pose very slightly. " +
		keepObjects,
}

const fallbackPrompt = "Pull the camera back about 50% and fill in the newly visible surroundings, " +
	"turn the camera angle slightly, move and recolour furniture and props naturally, " +
	"and change each person's pose very slightly. " + keepObjects

// PromptForLevel returns the instruction text for a variation level.
// Levels without a dedicated prompt use a combined one.
func PromptForLevel(level int) string {
	p, ok := levelPrompts[level]
	if !ok {
		p = fallbackPrompt
	}
	return fmt.Sprintf("%s\n\n%s\n%s", basePrompt, keepIdentity, p)
}
